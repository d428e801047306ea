package usecase

import "triage-client/internal/domain"

// Phase is the externally visible position of a session in its lifecycle.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseStarting       Phase = "starting"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseSubmitting     Phase = "submitting"
	PhaseConcluded      Phase = "concluded"
	PhaseErrored        Phase = "errored"
)

// InFlight reports whether a request is outstanding in this phase.
func (p Phase) InFlight() bool {
	return p == PhaseStarting || p == PhaseSubmitting
}

// Request names the kind of round-trip a session issues.
type Request string

const (
	RequestStart  Request = "start"
	RequestAnswer Request = "answer"
)

// pendingRequest is everything needed to (re)issue a round-trip.
type pendingRequest struct {
	kind      Request
	sessionID string
	input     string
}

// state is the tagged variant holding the control fields of a session. Each
// variant carries only the fields that are legal in its phase, so a pending
// question and a verdict can never coexist.
type state interface {
	phase() Phase
}

type idleState struct{}

type startingState struct {
	req pendingRequest
}

type awaitingState struct {
	sessionID string
	question  string
}

type submittingState struct {
	req pendingRequest
}

type concludedState struct {
	sessionID string
	verdict   domain.Verdict
}

type erroredState struct {
	failed  pendingRequest
	message string
}

func (idleState) phase() Phase       { return PhaseIdle }
func (startingState) phase() Phase   { return PhaseStarting }
func (awaitingState) phase() Phase   { return PhaseAwaitingAnswer }
func (submittingState) phase() Phase { return PhaseSubmitting }
func (concludedState) phase() Phase  { return PhaseConcluded }
func (erroredState) phase() Phase    { return PhaseErrored }

// Snapshot is a read-only copy of a session for the presentation layer.
// Empty strings and a nil Verdict mean "absent".
type Snapshot struct {
	Version         uint64
	Phase           Phase
	SessionID       string
	PendingQuestion string
	Verdict         *domain.Verdict
	LastError       string
	// Retry is the request kind a retry would re-issue. Set only when errored.
	Retry      Request
	Transcript []domain.TranscriptEntry
}

// HasSession reports whether the service has issued a session id.
func (s Snapshot) HasSession() bool {
	return s.SessionID != ""
}

func project(st state) Snapshot {
	snap := Snapshot{Phase: st.phase()}
	switch v := st.(type) {
	case idleState:
	case startingState:
	case awaitingState:
		snap.SessionID = v.sessionID
		snap.PendingQuestion = v.question
	case submittingState:
		snap.SessionID = v.req.sessionID
	case concludedState:
		verdict := v.verdict.Clone()
		snap.SessionID = v.sessionID
		snap.Verdict = &verdict
	case erroredState:
		snap.SessionID = v.failed.sessionID
		snap.LastError = v.message
		snap.Retry = v.failed.kind
	default:
		panic("usecase: unhandled session state")
	}
	return snap
}
