package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/agentkernel/core"
	"github.com/hupe1980/agentkernel/tool"
)

// DefaultPriority is used when a line's priority cannot be parsed.
const DefaultPriority = 0.5

var (
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
	listMarker = regexp.MustCompile(`^(?:[-*]|\d+[.)])\s+`)
)

// TaskID returns the id of the n-th planned task (1-based).
func TaskID(n int) string { return fmt.Sprintf("task_%d", n) }

// ParseTasks reads planner output. Batch-local references task_1..task_N are
// renumbered to start after offset; other dependency ids are kept only when
// listed in known.
func ParseTasks(text string, offset int, known ...string) []*core.Task {
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}

	var (
		tasks []*core.Task
		local = map[string]string{} // line-local id -> assigned id
	)

	for _, raw := range strings.Split(text, "\n") {
		line := listMarker.ReplaceAllString(strings.TrimSpace(raw), "")
		if line == "" {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}

		desc := strings.TrimSpace(parts[0])
		if desc == "" || isExample(desc) {
			continue
		}

		prio, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			prio = DefaultPriority
		}

		n := len(tasks) + 1
		id := TaskID(offset + n)

		var deps []string

		if len(parts) > 2 {
			for _, d := range strings.Split(parts[2], ",") {
				d = strings.TrimSpace(d)
				if d == "" {
					continue
				}

				if mapped, ok := local[d]; ok {
					deps = appendUnique(deps, mapped)
				} else if _, ok := knownSet[d]; ok {
					deps = appendUnique(deps, d)
				}
			}
		}

		toolName := ""
		if len(parts) > 3 {
			toolName = strings.TrimSpace(parts[3])
		}

		if toolName == "" {
			toolName = InferTool(desc)
		}

		path := ""
		if len(parts) > 4 {
			path = strings.TrimSpace(parts[4])
		}

		t := core.NewTask(id, desc, prio, deps...)
		t.WithTool(toolName, Parameters(toolName, desc, path))
		tasks = append(tasks, t)

		local[TaskID(n)] = id
	}

	return tasks
}

func isExample(desc string) bool {
	l := strings.ToLower(desc)
	return strings.HasPrefix(l, "example") || strings.Contains(l, "example:") || strings.Contains(desc, "示例")
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}

	return append(list, s)
}

// InferTool picks a tool from keywords in the description. It is the only
// place in the kernel that maps free text to a tool; everything downstream
// dispatches on Task.Tool.
func InferTool(desc string) string {
	l := strings.ToLower(desc)

	switch {
	case containsAny(l, "directory", "folder", "mkdir", "scaffold"):
		return tool.CreateDirName
	case containsAny(l, "append", "log entry", "todo list", "prediction"):
		return tool.AppendFileName
	case containsAny(l, "readme", "document", "report", "config", "package.json", ".md", "notes"):
		return tool.CreateFileName
	default:
		return tool.WriteCodeName
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}

// Slug turns a description into a file-name friendly token.
func Slug(desc string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(desc), "-"), "-")
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}

	if s == "" {
		s = "task"
	}

	return s
}

// Parameters derives the tool parameters for a planned task. path overrides
// the location derived from the description.
func Parameters(toolName, desc, path string) map[string]any {
	slug := Slug(desc)

	switch toolName {
	case tool.CreateDirName:
		if path == "" {
			path = slug
		}

		return map[string]any{"dirPath": path}
	case tool.WriteCodeName:
		if path == "" {
			path = "src/" + slug + ".txt"
		}

		return map[string]any{"filePath": path, "code": desc + "\n"}
	case tool.CreateFileName, tool.AppendFileName:
		if path == "" {
			path = "docs/" + slug + ".md"
		}

		return map[string]any{"filePath": path, "content": fmt.Sprintf("# %s\n", desc)}
	default:
		return map[string]any{}
	}
}
