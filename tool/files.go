package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentkernel/internal/util"
)

// Names of the built-in file tools.
const (
	CreateFileName = "create_file"
	WriteCodeName  = "write_code"
	CreateDirName  = "create_dir"
	AppendFileName = "append_file"
)

// Builtins returns the file tools every kernel registers.
func Builtins() []Tool {
	return []Tool{
		NewCreateFileTool(),
		NewWriteCodeTool(),
		NewCreateDirTool(),
		NewAppendFileTool(),
	}
}

// Parameter shapes of the file tools; the schemas are derived from them.
type (
	fileParams struct {
		FilePath string `json:"filePath" description:"Path relative to the working directory"`
		Content  string `json:"content"`
	}
	codeParams struct {
		FilePath string `json:"filePath" description:"Path relative to the working directory"`
		Code     string `json:"code"`
	}
	dirParams struct {
		DirPath string `json:"dirPath" description:"Path relative to the working directory"`
	}
)

// NewCreateFileTool writes content to filePath, creating parent directories.
func NewCreateFileTool() *FunctionTool {
	return NewFunctionToolFromStruct(CreateFileName, "Create a file with the given content", fileParams{},
		func(_ context.Context, tc *Context, p map[string]any) (Result, error) {
			return writeFile(tc, CreateFileName, util.StringParam(p, "filePath"), util.StringParam(p, "content"), false)
		})
}

// NewWriteCodeTool writes source code to filePath, creating parent directories.
func NewWriteCodeTool() *FunctionTool {
	return NewFunctionToolFromStruct(WriteCodeName, "Write source code to a file", codeParams{},
		func(_ context.Context, tc *Context, p map[string]any) (Result, error) {
			return writeFile(tc, WriteCodeName, util.StringParam(p, "filePath"), util.StringParam(p, "code"), false)
		})
}

// NewAppendFileTool appends content to filePath, creating it when missing.
func NewAppendFileTool() *FunctionTool {
	return NewFunctionToolFromStruct(AppendFileName, "Append content to a file", fileParams{},
		func(_ context.Context, tc *Context, p map[string]any) (Result, error) {
			return writeFile(tc, AppendFileName, util.StringParam(p, "filePath"), util.StringParam(p, "content"), true)
		})
}

// NewCreateDirTool creates dirPath and any missing parents.
func NewCreateDirTool() *FunctionTool {
	return NewFunctionToolFromStruct(CreateDirName, "Create a directory", dirParams{},
		func(_ context.Context, tc *Context, p map[string]any) (Result, error) {
			rel := util.StringParam(p, "dirPath")

			dir, err := Resolve(workingPath(tc), rel)
			if err != nil {
				return Result{}, InvalidParameters(CreateDirName, "%v", err)
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Result{}, ExecutionFailed(CreateDirName, err)
			}

			return Result{
				Success:     true,
				Output:      fmt.Sprintf("Created directory %s", rel),
				SideEffects: []string{"created directory " + rel},
			}, nil
		})
}

func writeFile(tc *Context, name, rel, body string, appendMode bool) (Result, error) {
	path, err := Resolve(workingPath(tc), rel)
	if err != nil {
		return Result{}, InvalidParameters(name, "%v", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Result{}, ExecutionFailed(name, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	verb := "wrote"

	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		verb = "appended to"
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return Result{}, ExecutionFailed(name, err)
	}

	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return Result{}, ExecutionFailed(name, err)
	}

	if err := f.Close(); err != nil {
		return Result{}, ExecutionFailed(name, err)
	}

	tc.Log().Debug("file.written", "path", rel, "bytes", len(body), "append", appendMode)

	return Result{
		Success:     true,
		Output:      fmt.Sprintf("%s %d bytes %s", strings.ToUpper(verb[:1])+verb[1:], len(body), rel),
		SideEffects: []string{fmt.Sprintf("%s %s", verb, rel)},
	}, nil
}

func workingPath(tc *Context) string {
	if tc == nil || tc.WorkingPath == "" {
		return "."
	}

	return tc.WorkingPath
}

// Resolve joins rel onto root and rejects paths that escape root.
func Resolve(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("empty path")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	target := rel
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, rel)
	}

	target = filepath.Clean(target)

	r, err := filepath.Rel(absRoot, target)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes working directory", rel)
	}

	return target, nil
}
