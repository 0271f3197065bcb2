package monitor

import (
	"sync"
	"time"

	"go.klb.dev/clipring/internal/content"
)

// DefaultSuppressWindow is how long an expected self-write stays live.
const DefaultSuppressWindow = time.Second

// Suppressor remembers clipboard writes the daemon is about to make so the
// monitor does not record them as new copies. A token lives for one window
// and is consumed by the next observed change.
type Suppressor struct {
	mu     sync.Mutex
	window time.Duration
	tokens map[content.Fingerprint]time.Time
	now    func() time.Time
}

// NewSuppressor returns a Suppressor whose tokens expire after window.
func NewSuppressor(window time.Duration) *Suppressor {
	if window <= 0 {
		window = DefaultSuppressWindow
	}
	return &Suppressor{
		window: window,
		tokens: make(map[content.Fingerprint]time.Time),
		now:    time.Now,
	}
}

// Window returns the token lifetime.
func (s *Suppressor) Window() time.Duration { return s.window }

// Expect registers an upcoming self-write of content with fingerprint fp.
func (s *Suppressor) Expect(fp content.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, k)
		}
	}
	s.tokens[fp] = now.Add(s.window)
}

// Observe is called for every clipboard change. It reports whether fp had a
// live token and clears all tokens: a token only covers the next change.
func (s *Suppressor) Observe(fp content.Fingerprint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[fp]
	clear(s.tokens)
	return ok && s.now().Before(exp)
}

// Cancel drops the token for fp, used when the write never happened.
func (s *Suppressor) Cancel(fp content.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, fp)
}

// Pending returns the number of live tokens.
func (s *Suppressor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, exp := range s.tokens {
		if now.Before(exp) {
			n++
		}
	}
	return n
}
