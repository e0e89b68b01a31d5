package models

// SessionStatus is the backend status of a participant's latest diagnostic run.
type SessionStatus string

const (
	StatusNew       SessionStatus = "new"
	StatusPending   SessionStatus = "pending"
	StatusCancelled SessionStatus = "cancelled"
	StatusSuspended SessionStatus = "suspended"
	StatusDone      SessionStatus = "done"
)

// EligibilityReason explains an eligibility decision.
type EligibilityReason string

const (
	ReasonNew       EligibilityReason = "new"
	ReasonDone      EligibilityReason = "termine"
	ReasonPending   EligibilityReason = "en_attente"
	ReasonCancelled EligibilityReason = "annule"
	ReasonSuspended EligibilityReason = "suspendu"
)

// Reason maps a run status onto the reason reported to the client.
func (s SessionStatus) Reason() EligibilityReason {
	switch s {
	case StatusPending:
		return ReasonPending
	case StatusCancelled:
		return ReasonCancelled
	case StatusSuspended:
		return ReasonSuspended
	case StatusDone:
		return ReasonDone
	default:
		return ReasonNew
	}
}

// BlockedBy names what matched a previous run.
type BlockedBy string

const (
	BlockedByNone  BlockedBy = "none"
	BlockedByEmail BlockedBy = "email"
	BlockedByIP    BlockedBy = "ip"
)

// Eligibility is the payload of GET /diagnostic-sessions/eligibility.
type Eligibility struct {
	AllowNew  bool              `json:"allowNew"`
	Reason    EligibilityReason `json:"reason"`
	BlockedBy BlockedBy         `json:"blockedBy"`
}
