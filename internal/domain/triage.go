package domain

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one turn of the conversation as shown to the user.
type TranscriptEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UrgencyLevel is the triage category returned by the service. Values outside
// the known set are kept verbatim.
type UrgencyLevel string

const (
	UrgencyCall911  UrgencyLevel = "call_911"
	UrgencyUrgentGP UrgencyLevel = "urgent_gp"
	UrgencySeeGP    UrgencyLevel = "see_gp"
	UrgencyStayHome UrgencyLevel = "stay_home"
)

// Known reports whether the level is one of the recognised categories.
func (l UrgencyLevel) Known() bool {
	switch l {
	case UrgencyCall911, UrgencyUrgentGP, UrgencySeeGP, UrgencyStayHome:
		return true
	default:
		return false
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Verdict is the terminal triage outcome of a session.
type Verdict struct {
	UrgencyLevel       UrgencyLevel `json:"level"`
	Confidence         Confidence   `json:"confidence"`
	RecommendedActions []string     `json:"what_to_do"`
	WarningSigns       []string     `json:"watch_for"`
}

// Clone returns a deep copy so callers cannot mutate a received verdict. The
// lists of the copy are never nil.
func (v Verdict) Clone() Verdict {
	out := v
	out.RecommendedActions = append(make([]string, 0, len(v.RecommendedActions)), v.RecommendedActions...)
	out.WarningSigns = append(make([]string, 0, len(v.WarningSigns)), v.WarningSigns...)
	return out
}

// ReplyType discriminates the service response union.
type ReplyType string

const (
	ReplyTriage ReplyType = "triage"
	ReplyAsk    ReplyType = "ask"
)

// TriageReply is a decoded start or answer response. Exactly one of Verdict
// and Question is meaningful, selected by Type.
type TriageReply struct {
	SessionID string
	Type      ReplyType
	Verdict   *Verdict
	Question  string
	Message   string
}

// SessionStatus is the service-side view of a session.
type SessionStatus struct {
	SessionID string   `json:"session_id"`
	Completed bool     `json:"completed"`
	Result    *Verdict `json:"result"`
	History   string   `json:"history"`
}

// Health is the service root response.
type Health struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
