package services

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ghuser/bookreader/pkg/events"
	"github.com/ghuser/bookreader/services/library/domain"
)

type phase int

const (
	phaseInit phase = iota
	phaseAwaitingParse
	phaseWorking // an outcome claimed the upload; no handlers are registered
	phaseAwaitingReparse
	phaseResolved
	phaseFailed
	phaseTimedOut
)

func (p phase) String() string {
	switch p {
	case phaseInit:
		return "init"
	case phaseAwaitingParse:
		return "awaiting_parse"
	case phaseWorking:
		return "working"
	case phaseAwaitingReparse:
		return "awaiting_reparse"
	case phaseResolved:
		return "resolved"
	case phaseFailed:
		return "failed"
	case phaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

func (p phase) terminal() bool {
	return p >= phaseResolved
}

type registration struct {
	kind    events.Kind
	handler *events.Handler
}

// uploadState is one upload conversation with the parser. Every outcome
// handler of the upload receives it; only the handler that claims the
// current phase may act, and the result is assigned exactly once.
type uploadState struct {
	requestID string
	userID    uuid.UUID
	req       UploadRequest

	mu         sync.Mutex
	phase      phase
	handlers   []registration
	reparseFor string // source ID whose re-parse claim this upload holds

	tracking sync.WaitGroup // registrations started before settlement

	once sync.Once
	done chan struct{}
	view *SessionView
	err  error
}

func newUploadState(requestID string, userID uuid.UUID, req UploadRequest) *uploadState {
	return &uploadState{
		requestID: requestID,
		userID:    userID,
		req:       req,
		done:      make(chan struct{}),
	}
}

func (s *uploadState) matches(e events.Correlated) bool {
	return e.CorrelationID() == s.requestID
}

func (s *uploadState) current() phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// transition moves the upload from one phase to another. It reports false
// when the upload is not in from, which is how racing outcomes lose.
func (s *uploadState) transition(from, to phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		return false
	}
	s.phase = to
	return true
}

// claim takes the upload out of an awaiting phase for the calling handler.
func (s *uploadState) claim(from phase) bool {
	return s.transition(from, phaseWorking)
}

// add records h before it is registered with the listener. It fails once the
// upload has settled so nothing new is registered after cleanup. A successful
// add must be paired with doneTracking.
func (s *uploadState) add(kind events.Kind, h *events.Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.terminal() {
		return false
	}
	s.tracking.Add(1)
	s.handlers = append(s.handlers, registration{kind: kind, handler: h})
	return true
}

func (s *uploadState) doneTracking() {
	s.tracking.Done()
}

// holds reports whether h is still recorded, i.e. was not taken by release.
func (s *uploadState) holds(h *events.Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.handlers {
		if r.handler == h {
			return true
		}
	}
	return false
}

func (s *uploadState) remove(h *events.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.handlers {
		if r.handler == h {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// release empties the handler set and returns what was in it.
func (s *uploadState) release() []registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.handlers
	s.handlers = nil
	return out
}

func (s *uploadState) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// holdReparse remembers that this upload owns the re-parse claim of sourceID.
func (s *uploadState) holdReparse(sourceID string) {
	s.mu.Lock()
	s.reparseFor = sourceID
	s.mu.Unlock()
}

// dropReparse returns and forgets the held re-parse claim, if any.
func (s *uploadState) dropReparse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.reparseFor
	s.reparseFor = ""
	return id
}

// settle assigns the result. The first call wins; later calls report false
// and change nothing. cleanup, if set, runs after the upload is terminal and
// before waiters are released.
func (s *uploadState) settle(view *SessionView, err error, cleanup func()) bool {
	won := false
	s.once.Do(func() {
		won = true
		s.mu.Lock()
		switch {
		case err == nil:
			s.phase = phaseResolved
		case errors.Is(err, domain.ErrUploadTimedOut):
			s.phase = phaseTimedOut
		default:
			s.phase = phaseFailed
		}
		s.view, s.err = view, err
		s.mu.Unlock()
		if cleanup != nil {
			cleanup()
		}
		close(s.done)
	})
	return won
}

// result blocks until the upload settles and every registration it started
// has finished.
func (s *uploadState) result() (*SessionView, error) {
	<-s.done
	s.tracking.Wait()
	return s.view, s.err
}
