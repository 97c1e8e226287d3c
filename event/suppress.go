package event

import (
	"path/filepath"
	"sync"
	"time"
)

// DefaultSuppressionWindow is how long a self-authored path stays muted.
const DefaultSuppressionWindow = 2 * time.Second

// Suppressor remembers paths the agent wrote itself so the sensor does not
// report them back as external changes.
type Suppressor struct {
	mu     sync.Mutex
	window time.Duration
	until  map[string]time.Time
	now    func() time.Time
}

// NewSuppressor creates a suppressor with the given grace window. A zero
// window uses DefaultSuppressionWindow.
func NewSuppressor(window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultSuppressionWindow
	}

	return &Suppressor{window: window, until: make(map[string]time.Time), now: time.Now}
}

// Mark mutes path for the grace window.
func (s *Suppressor) Mark(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.until[normalize(path)] = s.now().Add(s.window)
}

// Suppressed reports whether path is currently muted. Expired marks are
// dropped.
func (s *Suppressor) Suppressed(path string) bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalize(path)

	deadline, ok := s.until[key]
	if !ok {
		return false
	}

	if s.now().After(deadline) {
		delete(s.until, key)
		return false
	}

	return true
}

func normalize(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func (s *Suppressor) markIfSet(path string) {
	if s != nil {
		s.Mark(path)
	}
}
