package careerquest

import (
	"bytes"
	"encoding/json"

	"github.com/maconsulting/parcours/internal/models"
)

// OutcomeKind says what the server answered.
type OutcomeKind int

const (
	// OutcomeAccepted: a PUT was stored; Snapshot.Revision is the new revision.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeConflict: a PUT was rejected with 409; Snapshot is authoritative.
	OutcomeConflict
	// OutcomeRemote: a GET returned the server copy.
	OutcomeRemote
)

// Outcome is one server answer to reconcile against the local copy.
type Outcome struct {
	Kind     OutcomeKind
	Snapshot models.QuestSnapshot
}

// Action reports what Reconcile did.
type Action int

const (
	ActionNone Action = iota
	ActionBumpRevision
	ActionReplaced
)

func (a Action) String() string {
	switch a {
	case ActionBumpRevision:
		return "bump-revision"
	case ActionReplaced:
		return "replaced"
	default:
		return "none"
	}
}

// Reconcile folds a server outcome into local. It never merges fields: the
// result is either local, local with a new revision, or the server copy.
func Reconcile(local Progress, o Outcome) (Progress, Action) {
	switch o.Kind {
	case OutcomeAccepted:
		if o.Snapshot.Revision == local.Revision {
			return local, ActionNone
		}
		local.Revision = clamp(o.Snapshot.Revision, 0, MaxCounter)
		return local, ActionBumpRevision
	case OutcomeConflict:
		return replaceWith(local, FromSnapshot(o.Snapshot))
	case OutcomeRemote:
		if !o.Snapshot.UpdatedAt.After(local.UpdatedAt) {
			return local, ActionNone
		}
		return replaceWith(local, FromSnapshot(o.Snapshot))
	}
	return local, ActionNone
}

func replaceWith(local, server Progress) (Progress, Action) {
	if sameProgress(local, server) {
		return local, ActionNone
	}
	return server, ActionReplaced
}

func sameProgress(a, b Progress) bool {
	ja, errA := json.Marshal(a.Normalize())
	jb, errB := json.Marshal(b.Normalize())
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}
