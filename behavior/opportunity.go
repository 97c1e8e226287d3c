package behavior

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Opportunity kinds found by Discover.
const (
	KindDocGap = "documentation_gap"
	KindTodo   = "todo"
)

// Scoring defaults.
const (
	Epsilon                   = 0.1
	DefaultThreshold          = 0.3
	DefaultMaxActionsPerCycle = 3
)

// Opportunity is an improvement the proactive loops may act on.
type Opportunity struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Description  string    `json:"description"`
	Path         string    `json:"path,omitempty"`
	Value        float64   `json:"value"`
	Cost         float64   `json:"cost"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Score is Value/(Cost+Epsilon).
func (o Opportunity) Score() float64 {
	return o.Value / (o.Cost + Epsilon)
}

// Triage returns at most limit opportunities scoring above threshold, best
// first. Equal scores keep their backlog order.
func Triage(backlog []Opportunity, threshold float64, limit int) []Opportunity {
	out := make([]Opportunity, 0, len(backlog))

	for _, o := range backlog {
		if o.Score() > threshold {
			out = append(out, o)
		}
	}

	slices.SortStableFunc(out, func(a, b Opportunity) int {
		return cmp.Compare(b.Score(), a.Score())
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

var codeExtensions = []string{".go", ".ts", ".js", ".py", ".java"}

var skipDirs = []string{"node_modules", ".git", "dist", "vendor"}

const docGapMinLines = 20

// SourceFile is a scanned code file.
type SourceFile struct {
	Path    string
	Lines   int
	Content string
}

// ScanSources returns the code files below root as slash paths relative to
// root. A missing root yields no files.
func ScanSources(root string) ([]SourceFile, error) {
	var out []SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if d.IsDir() {
			if path != root && (slices.Contains(skipDirs, d.Name()) || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}

			return nil
		}

		if !slices.Contains(codeExtensions, filepath.Ext(path)) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		content := string(data)

		out = append(out, SourceFile{
			Path:    filepath.ToSlash(rel),
			Lines:   strings.Count(content, "\n") + 1,
			Content: content,
		})

		return nil
	})

	return out, err
}

// DocGaps reports files longer than 20 lines without a leading comment.
func DocGaps(files []SourceFile) []Opportunity {
	var out []Opportunity

	for _, f := range files {
		if f.Lines <= docGapMinLines || hasLeadingComment(f.Content) {
			continue
		}

		out = append(out, Opportunity{
			Kind:         KindDocGap,
			Description:  f.Path + " lacks documentation",
			Path:         f.Path,
			Value:        0.6,
			Cost:         0.3,
			DiscoveredAt: time.Now(),
		})
	}

	return out
}

// Todos reports one opportunity per file carrying TODO or FIXME markers.
func Todos(files []SourceFile) []Opportunity {
	var out []Opportunity

	for _, f := range files {
		n := strings.Count(f.Content, "TODO") + strings.Count(f.Content, "FIXME")
		if n == 0 {
			continue
		}

		out = append(out, Opportunity{
			Kind:         KindTodo,
			Description:  fmt.Sprintf("resolve %d TODO/FIXME marker(s) in %s", n, f.Path),
			Path:         f.Path,
			Value:        0.5,
			Cost:         0.2,
			DiscoveredAt: time.Now(),
		})
	}

	return out
}

func hasLeadingComment(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#!") {
			continue
		}

		for _, p := range []string{"//", "/*", "#", `"""`, "'''"} {
			if strings.HasPrefix(line, p) {
				return true
			}
		}

		return false
	}

	return false
}
