package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"triage-client/internal/domain"
	"triage-client/internal/logging"
	"triage-client/internal/usecase"
)

const (
	defaultMaxRetries = 3
	archiveTimeout    = 10 * time.Second
)

var (
	ErrEmptyInput      = errors.New("handler: input must not be empty")
	ErrBusy            = errors.New("handler: a request is already in progress")
	ErrConcluded       = errors.New("handler: session has concluded")
	ErrRetriesExceeded = errors.New("handler: retry limit reached")
)

// Session is the state machine the handler presents.
type Session interface {
	Start(ctx context.Context, symptoms string) (<-chan usecase.Snapshot, error)
	Submit(ctx context.Context, answer string) (<-chan usecase.Snapshot, error)
	Retry(ctx context.Context) (<-chan usecase.Snapshot, error)
	Reset() usecase.Snapshot
	Snapshot() usecase.Snapshot
	Subscribe(fn func(usecase.Snapshot)) func()
}

// Archiver stores concluded sessions.
type Archiver interface {
	ArchiveSession(ctx context.Context, sessionID string, transcript []domain.TranscriptEntry, verdict domain.Verdict) error
}

// Prompt describes the input field shown for the current phase.
type Prompt struct {
	Label       string
	Placeholder string
}

var (
	startPrompt  = Prompt{Label: "What are your symptoms?", Placeholder: "Describe your symptoms..."}
	answerPrompt = Prompt{Label: "Answer the question", Placeholder: "Your answer..."}
)

// View is everything the presentation layer needs to draw the conversation.
type View struct {
	Phase           usecase.Phase
	SessionID       string
	Transcript      []domain.TranscriptEntry
	PendingQuestion string
	Verdict         *domain.Verdict
	LastError       string
	Prompt          Prompt
	// Busy is true while a request is in flight; input is disabled.
	Busy        bool
	CanSubmit   bool
	CanRetry    bool
	RetriesLeft int
}

// Handler adapts a Session for an interactive front end: one submit
// capability interpreted by phase, plus a bounded retry policy.
type Handler struct {
	session    Session
	archiver   Archiver
	logger     *slog.Logger
	maxRetries int

	mu          sync.Mutex
	retries     int
	archived    map[string]bool
	unsubscribe func()
	archiving   sync.WaitGroup
}

type Option func(*Handler)

func WithArchiver(a Archiver) Option {
	return func(h *Handler) {
		h.archiver = a
	}
}

// WithMaxRetries bounds consecutive retries of one failed step. Values below
// zero fall back to the default; zero disables retries.
func WithMaxRetries(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.maxRetries = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(s Session, opts ...Option) (*Handler, error) {
	if s == nil {
		return nil, errors.New("handler: session must not be nil")
	}
	h := &Handler{
		session:    s,
		logger:     logging.NewNop(),
		maxRetries: defaultMaxRetries,
		archived:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.unsubscribe = s.Subscribe(h.onTransition)
	return h, nil
}

// Close detaches the handler from its session and waits for archive writes
// already started.
func (h *Handler) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.archiving.Wait()
}

func (h *Handler) View() View {
	return h.render(h.session.Snapshot())
}

// Submit routes text to start or answer depending on the phase. Empty input is
// refused while trimmed text is forwarded.
func (h *Handler) Submit(ctx context.Context, text string) (<-chan usecase.Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	snap := h.session.Snapshot()
	var (
		done <-chan usecase.Snapshot
		err  error
	)
	switch snap.Phase {
	case usecase.PhaseStarting, usecase.PhaseSubmitting:
		return nil, ErrBusy
	case usecase.PhaseConcluded:
		return nil, ErrConcluded
	case usecase.PhaseIdle:
		done, err = h.session.Start(ctx, text)
	case usecase.PhaseAwaitingAnswer:
		done, err = h.session.Submit(ctx, text)
	case usecase.PhaseErrored:
		// Only a failed answer leaves a session id behind.
		if snap.HasSession() {
			done, err = h.session.Submit(ctx, text)
		} else {
			done, err = h.session.Start(ctx, text)
		}
	default:
		return nil, errors.New("handler: unknown phase " + string(snap.Phase))
	}
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.retries = 0
	h.mu.Unlock()
	return done, nil
}

// Retry re-issues the failed request while the retry budget allows it.
func (h *Handler) Retry(ctx context.Context) (<-chan usecase.Snapshot, error) {
	h.mu.Lock()
	if h.retries >= h.maxRetries {
		h.mu.Unlock()
		return nil, ErrRetriesExceeded
	}
	// Counted before dispatch so a fast success can zero it afterwards.
	h.retries++
	h.mu.Unlock()

	done, err := h.session.Retry(ctx)
	if err != nil {
		h.mu.Lock()
		h.retries--
		h.mu.Unlock()
		return nil, err
	}
	return done, nil
}

func (h *Handler) Reset() View {
	snap := h.session.Reset()
	h.mu.Lock()
	h.retries = 0
	h.mu.Unlock()
	return h.render(snap)
}

func (h *Handler) render(snap usecase.Snapshot) View {
	h.mu.Lock()
	retriesLeft := h.maxRetries - h.retries
	h.mu.Unlock()
	if retriesLeft < 0 {
		retriesLeft = 0
	}

	v := View{
		Phase:           snap.Phase,
		SessionID:       snap.SessionID,
		Transcript:      snap.Transcript,
		PendingQuestion: snap.PendingQuestion,
		Verdict:         snap.Verdict,
		LastError:       snap.LastError,
		Busy:            snap.Phase.InFlight(),
		RetriesLeft:     retriesLeft,
	}
	switch snap.Phase {
	case usecase.PhaseIdle:
		v.Prompt = startPrompt
		v.CanSubmit = true
	case usecase.PhaseAwaitingAnswer:
		v.Prompt = answerPrompt
		v.CanSubmit = true
	case usecase.PhaseErrored:
		v.Prompt = startPrompt
		if snap.HasSession() {
			v.Prompt = answerPrompt
		}
		v.CanSubmit = true
		v.CanRetry = retriesLeft > 0
	case usecase.PhaseStarting:
		v.Prompt = startPrompt
	case usecase.PhaseSubmitting:
		v.Prompt = answerPrompt
	case usecase.PhaseConcluded:
	}
	return v
}

func (h *Handler) onTransition(snap usecase.Snapshot) {
	switch snap.Phase {
	case usecase.PhaseAwaitingAnswer, usecase.PhaseConcluded:
		h.mu.Lock()
		h.retries = 0
		h.mu.Unlock()
	}
	if snap.Phase == usecase.PhaseConcluded && snap.Verdict != nil {
		h.archive(snap)
	}
}

// archive stores a concluded session once, in the background so the write
// never delays the session's completion path.
func (h *Handler) archive(snap usecase.Snapshot) {
	if h.archiver == nil {
		return
	}
	h.mu.Lock()
	if h.archived[snap.SessionID] {
		h.mu.Unlock()
		return
	}
	h.archived[snap.SessionID] = true
	h.archiving.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := h.archiver.ArchiveSession(ctx, snap.SessionID, snap.Transcript, *snap.Verdict); err != nil {
			h.logger.Warn("failed to archive concluded session", "session_id", snap.SessionID, "err", err)
			return
		}
		h.logger.Debug("archived concluded session", "session_id", snap.SessionID, "turns", len(snap.Transcript))
	}()
}
