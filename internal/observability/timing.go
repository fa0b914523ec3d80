package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const timerSessionKey ctxKey = "timer_session"

// Timing is one recorded step: its delta since the previous step and the
// total elapsed since the session started.
type Timing struct {
	Name  string
	Delta time.Duration
	Total time.Duration
	At    time.Time
}

// TimerSession collects named steps for one logical request. Sessions are
// carried in the request context, never shared between requests; AddStep
// call sites reach the session ambiently and concurrent requests record
// into independent sessions. Instrumentation failures never propagate.
type TimerSession struct {
	mu      sync.Mutex
	timings []Timing
	ended   bool
}

// BeginSession starts a session and returns a context carrying it. The
// first entry is always a synthetic start record with zero deltas.
func BeginSession(ctx context.Context) (context.Context, *TimerSession) {
	session := &TimerSession{
		timings: []Timing{{Name: "start", At: time.Now()}},
	}
	return context.WithValue(ctx, timerSessionKey, session), session
}

func SessionFromContext(ctx context.Context) *TimerSession {
	session, ok := ctx.Value(timerSessionKey).(*TimerSession)
	if !ok {
		return nil
	}
	return session
}

// AddStep records a step against whatever session the context carries. With
// no active session it does nothing; it is never an error.
func AddStep(ctx context.Context, name string) {
	session := SessionFromContext(ctx)
	if session == nil {
		return
	}
	session.AddStep(name)
}

func (s *TimerSession) AddStep(name string) Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(name)
}

// End appends the final step. Idempotent, so it is safe to defer on every
// exit path including failure.
func (s *TimerSession) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.addLocked("end")
}

func (s *TimerSession) Timings() []Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timing, len(s.timings))
	copy(out, s.timings)
	return out
}

// ServerTimings renders the session as a single header value: every
// intermediate delta as `name;dur=<ms>` followed by a final `total;dur=`
// entry, milliseconds with one decimal. Ends the session if needed.
func (s *TimerSession) ServerTimings() string {
	s.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	parts := make([]string, 0, len(s.timings)-1)
	for _, timing := range s.timings[1 : len(s.timings)-1] {
		parts = append(parts, fmt.Sprintf("%s;dur=%.1f", timing.Name, millis(timing.Delta)))
	}
	last := s.timings[len(s.timings)-1]
	parts = append(parts, fmt.Sprintf("total;dur=%.1f", millis(last.Total)))
	return strings.Join(parts, ", ")
}

func (s *TimerSession) addLocked(name string) Timing {
	now := time.Now()
	last := s.timings[len(s.timings)-1]
	rec := Timing{
		Name:  name,
		Delta: now.Sub(last.At),
		Total: now.Sub(s.timings[0].At),
		At:    now,
	}
	s.timings = append(s.timings, rec)
	return rec
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
