package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTools(t *testing.T) {
	dir := t.TempDir()
	tc := &Context{WorkingPath: dir}
	r := NewRegistry(Builtins()...)
	ctx := context.Background()

	res, err := r.Execute(ctx, CreateDirName, tc, map[string]any{"dirPath": "pkg/sub"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.DirExists(t, filepath.Join(dir, "pkg", "sub"))

	res, err = r.Execute(ctx, WriteCodeName, tc, map[string]any{"filePath": "pkg/main.go", "code": "package main\n"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wrote pkg/main.go"}, res.SideEffects)

	_, err = r.Execute(ctx, AppendFileName, tc, map[string]any{"filePath": "pkg/main.go", "content": "// end\n"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "pkg", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main\n// end\n", string(data))

	_, err = r.Execute(ctx, CreateFileName, tc, map[string]any{"filePath": "notes/README.md", "content": "# hi"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "notes", "README.md"))
}

func TestFileTools_MissingParameter(t *testing.T) {
	_, err := NewCreateFileTool().Execute(context.Background(), &Context{WorkingPath: t.TempDir()}, map[string]any{"filePath": "a.txt"})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestFileTools_RejectsEscape(t *testing.T) {
	_, err := NewCreateFileTool().Execute(context.Background(), &Context{WorkingPath: t.TempDir()},
		map[string]any{"filePath": "../outside.txt", "content": "x"})
	assert.ErrorIs(t, err, core.ErrInvalidParameters)
}

func TestResolve(t *testing.T) {
	root := t.TempDir()

	p, err := Resolve(root, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), p)

	_, err = Resolve(root, "a/../../b.txt")
	assert.Error(t, err)

	_, err = Resolve(root, " ")
	assert.Error(t, err)
}

func TestBuiltins_Schemas(t *testing.T) {
	want := map[string][]string{
		CreateFileName: {"filePath", "content"},
		WriteCodeName:  {"filePath", "code"},
		AppendFileName: {"filePath", "content"},
		CreateDirName:  {"dirPath"},
	}

	for _, tl := range Builtins() {
		assert.ElementsMatch(t, want[tl.Name()], util.RequiredFields(tl.Parameters()), tl.Name())
	}
}
