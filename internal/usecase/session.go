package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"triage-client/internal/domain"
	"triage-client/internal/logging"
)

// TriageAPI is the remote assessment service.
type TriageAPI interface {
	Start(ctx context.Context, symptoms string) (domain.TriageReply, error)
	Answer(ctx context.Context, sessionID, answer string) (domain.TriageReply, error)
}

// Session drives one triage conversation against the service.
//
// The user's contribution is appended to the transcript before its request is
// sent, so the dialogue reads naturally while a request is outstanding. A
// failed request never removes that entry; only the control fields move to
// the errored phase. Retrying re-sends the same input without appending again.
//
// At most one request is in flight at a time. Start, Submit and Retry return
// as soon as the request is issued; the returned channel yields the snapshot
// taken after resolution and is then closed.
type Session struct {
	api    TriageAPI
	logger *slog.Logger

	mu          sync.Mutex
	state       state
	transcript  []domain.TranscriptEntry
	version     uint64
	generation  uint64
	subscribers map[int]func(Snapshot)
	nextSubID   int

	notifyMu sync.Mutex
	inflight sync.WaitGroup
}

type SessionOption func(*Session)

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSession(api TriageAPI, opts ...SessionOption) (*Session, error) {
	if api == nil {
		return nil, errors.New("usecase: triage api must not be nil")
	}
	s := &Session{
		api:         api,
		logger:      logging.NewNop(),
		state:       idleState{},
		subscribers: map[int]func(Snapshot){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start opens a new session with the initial symptom description. It is
// accepted from the idle phase and after a failed start; in the latter case
// the previous attempt's transcript is discarded.
func (s *Session) Start(ctx context.Context, symptoms string) (<-chan Snapshot, error) {
	if strings.TrimSpace(symptoms) == "" {
		return nil, usageError("empty_symptoms", "Please describe your symptoms.")
	}

	s.mu.Lock()
	switch st := s.state.(type) {
	case idleState:
	case erroredState:
		if st.failed.kind != RequestStart {
			s.mu.Unlock()
			return nil, usageError("session_active", "Answer the current question or start over.")
		}
		s.transcript = nil
	case startingState, submittingState:
		s.mu.Unlock()
		return nil, usageError("request_in_flight", "Please wait for the current request to finish.")
	case awaitingState, concludedState:
		s.mu.Unlock()
		return nil, usageError("session_active", "A session is already in progress. Start over to begin a new one.")
	default:
		s.mu.Unlock()
		panic("usecase: unhandled session state")
	}

	req := pendingRequest{kind: RequestStart, input: symptoms}
	s.appendLocked(domain.RoleUser, symptoms)
	s.state = startingState{req: req}
	gen, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return s.dispatch(ctx, gen, req), nil
}

// Submit answers the pending question. It is accepted while a question is
// pending and after a failed answer; the question counts as used as soon as
// the answer is sent.
func (s *Session) Submit(ctx context.Context, answer string) (<-chan Snapshot, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, usageError("empty_answer", "Please enter an answer.")
	}

	s.mu.Lock()
	var sessionID string
	switch st := s.state.(type) {
	case awaitingState:
		sessionID = st.sessionID
	case erroredState:
		if st.failed.kind != RequestAnswer {
			s.mu.Unlock()
			return nil, usageError("no_pending_question", "There is no question to answer yet.")
		}
		sessionID = st.failed.sessionID
	case idleState:
		s.mu.Unlock()
		return nil, usageError("no_active_session", "Describe your symptoms to start a session.")
	case startingState, submittingState:
		s.mu.Unlock()
		return nil, usageError("request_in_flight", "Please wait for the current request to finish.")
	case concludedState:
		s.mu.Unlock()
		return nil, usageError("session_concluded", "This session has concluded. Start over to begin a new one.")
	default:
		s.mu.Unlock()
		panic("usecase: unhandled session state")
	}
	if sessionID == "" {
		s.mu.Unlock()
		return nil, usageError("no_active_session", "Describe your symptoms to start a session.")
	}

	req := pendingRequest{kind: RequestAnswer, sessionID: sessionID, input: answer}
	s.appendLocked(domain.RoleUser, answer)
	s.state = submittingState{req: req}
	gen, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return s.dispatch(ctx, gen, req), nil
}

// Retry re-issues the request that failed, with the same input.
func (s *Session) Retry(ctx context.Context) (<-chan Snapshot, error) {
	s.mu.Lock()
	st, ok := s.state.(erroredState)
	if !ok {
		s.mu.Unlock()
		return nil, usageError("nothing_to_retry", "There is nothing to retry.")
	}

	req := st.failed
	switch req.kind {
	case RequestStart:
		s.state = startingState{req: req}
	case RequestAnswer:
		s.state = submittingState{req: req}
	default:
		s.mu.Unlock()
		panic("usecase: unhandled request kind")
	}
	gen, snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return s.dispatch(ctx, gen, req), nil
}

// Reset discards all session state and returns to idle. A request still in
// flight resolves into the void.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	s.generation++
	s.state = idleState{}
	s.transcript = nil
	_, snap := s.commitLocked()
	s.mu.Unlock()

	s.logger.Debug("triage session reset")
	s.notify(snap)
	return snap
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive every snapshot produced by a transition.
// Snapshots may arrive from the request goroutine; compare Version to drop
// stale ones. fn must not call Start, Submit, Retry or Reset.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Wait blocks until every issued request has resolved.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) dispatch(ctx context.Context, gen uint64, req pendingRequest) <-chan Snapshot {
	done := make(chan Snapshot, 1)
	// Requests are never cancelled by the caller; transport timeouts surface
	// as ordinary failures.
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)

		reply, err := s.send(ctx, req)
		snap, applied := s.resolve(gen, req, reply, err)
		if applied {
			s.notify(snap)
		}
		done <- snap
	}()
	return done
}

func (s *Session) send(ctx context.Context, req pendingRequest) (domain.TriageReply, error) {
	switch req.kind {
	case RequestStart:
		return s.api.Start(ctx, req.input)
	case RequestAnswer:
		return s.api.Answer(ctx, req.sessionID, req.input)
	default:
		return domain.TriageReply{}, errors.New("usecase: unknown request kind")
	}
}

func (s *Session) resolve(gen uint64, req pendingRequest, reply domain.TriageReply, err error) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.logger.Debug("discarding response for reset session", "request", req.kind)
		return s.snapshotLocked(), false
	}

	if err == nil {
		err = validateReply(reply)
	}
	if err != nil {
		terr := transportError(err)
		s.logger.Warn("triage request failed",
			"request", req.kind,
			"session_id", req.sessionID,
			"reason", terr.Reason,
			"err", err,
		)
		s.state = erroredState{failed: req, message: terr.Message}
		_, snap := s.commitLocked()
		return snap, true
	}

	sessionID := reply.SessionID
	if sessionID == "" {
		sessionID = req.sessionID
	}
	switch reply.Type {
	case domain.ReplyTriage:
		s.state = concludedState{sessionID: sessionID, verdict: reply.Verdict.Clone()}
	case domain.ReplyAsk:
		s.state = awaitingState{sessionID: sessionID, question: reply.Question}
		s.appendLocked(domain.RoleAssistant, reply.Question)
	}
	if reply.Message != "" {
		s.logger.Info("triage service message", "session_id", sessionID, "message", reply.Message)
	}
	_, snap := s.commitLocked()
	s.logger.Debug("triage session transition", "phase", snap.Phase, "session_id", sessionID)
	return snap, true
}

func validateReply(reply domain.TriageReply) error {
	switch reply.Type {
	case domain.ReplyTriage:
		if reply.Verdict == nil {
			return errors.New("usecase: triage reply without verdict")
		}
	case domain.ReplyAsk:
		if strings.TrimSpace(reply.Question) == "" {
			return errors.New("usecase: ask reply without question")
		}
	default:
		return errors.New("usecase: unknown reply type " + string(reply.Type))
	}
	return nil
}

func (s *Session) appendLocked(role domain.Role, text string) {
	s.transcript = append(s.transcript, domain.TranscriptEntry{Role: role, Text: text})
}

// commitLocked records a transition and returns the current generation with
// the resulting snapshot.
func (s *Session) commitLocked() (uint64, Snapshot) {
	s.version++
	return s.generation, s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := project(s.state)
	snap.Version = s.version
	snap.Transcript = make([]domain.TranscriptEntry, len(s.transcript))
	copy(snap.Transcript, s.transcript)
	return snap
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}
