// Package careerquest is the gamified Career Quest: the locally cached
// progress document and its sync with the server, the leveling rules and the
// task catalog.
package careerquest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/models"
)

// Bounds applied by Coerce.
const (
	MaxLevel   = 99
	MaxCounter = 9_999_999
)

// ProofSubmission records how a task was completed. It is written once.
type ProofSubmission struct {
	SubmittedAt time.Time       `json:"submittedAt"`
	AIScore     *int            `json:"aiScore,omitempty"`
	AILabel     string          `json:"aiLabel,omitempty"`
	AITips      []string        `json:"aiTips,omitempty"`
	AIMeta      json.RawMessage `json:"aiMeta,omitempty"`
	AnalyzedAt  *time.Time      `json:"analyzedAt,omitempty"`
}

// Progress is a participant's game state.
type Progress struct {
	Level            int                        `json:"level"`
	XP               int                        `json:"xp"`
	Coins            int                        `json:"coins"`
	Gems             int                        `json:"gems"`
	CompletedTaskIDs []string                   `json:"completedTaskIds"`
	Proofs           map[string]ProofSubmission `json:"proofs"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
	Revision         int                        `json:"revision"`
}

// NewProgress is the state of a fresh player.
func NewProgress() Progress {
	return Progress{Level: 1, CompletedTaskIDs: []string{}, Proofs: map[string]ProofSubmission{}}
}

// Coerce decodes a stored document. Anything unreadable yields NewProgress;
// readable documents are clamped into range.
func Coerce(raw []byte) Progress {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NewProgress()
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return NewProgress()
	}
	return p.Normalize()
}

// Normalize clamps counters, dedupes task ids and drops empty keys.
func (p Progress) Normalize() Progress {
	p.Level = clamp(p.Level, 1, MaxLevel)
	p.XP = clamp(p.XP, 0, MaxCounter)
	p.Coins = clamp(p.Coins, 0, MaxCounter)
	p.Gems = clamp(p.Gems, 0, MaxCounter)
	p.Revision = clamp(p.Revision, 0, MaxCounter)

	seen := make(map[string]bool, len(p.CompletedTaskIDs))
	ids := make([]string, 0, len(p.CompletedTaskIDs))
	for _, id := range p.CompletedTaskIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	p.CompletedTaskIDs = ids

	proofs := make(map[string]ProofSubmission, len(p.Proofs))
	for id, pr := range p.Proofs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if pr.AIScore != nil {
			v := clamp(*pr.AIScore, 0, 100)
			pr.AIScore = &v
		}
		proofs[id] = pr
	}
	p.Proofs = proofs
	if !p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.UpdatedAt.UTC().Round(0)
	}
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clone returns a deep copy.
func (p Progress) Clone() Progress {
	p.CompletedTaskIDs = append([]string(nil), p.CompletedTaskIDs...)
	proofs := make(map[string]ProofSubmission, len(p.Proofs))
	for k, v := range p.Proofs {
		v.AITips = append([]string(nil), v.AITips...)
		proofs[k] = v
	}
	p.Proofs = proofs
	return p
}

// IsCompleted reports whether taskID was already completed.
func (p Progress) IsCompleted(taskID string) bool {
	for _, id := range p.CompletedTaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// CompletedSet returns the completed ids as a set.
func (p Progress) CompletedSet() map[string]bool {
	set := make(map[string]bool, len(p.CompletedTaskIDs))
	for _, id := range p.CompletedTaskIDs {
		set[id] = true
	}
	return set
}

// Signature identifies a synced state: updatedAt::revision.
func (p Progress) Signature() string {
	return p.UpdatedAt.UTC().Format(time.RFC3339Nano) + "::" + strconv.Itoa(p.Revision)
}

// FromSnapshot turns a server snapshot into a Progress. The snapshot's
// revision and timestamp win over the ones inside the document.
func FromSnapshot(s models.QuestSnapshot) Progress {
	p := Coerce(s.Progress)
	p.Revision = clamp(s.Revision, 0, MaxCounter)
	if !s.UpdatedAt.IsZero() {
		p.UpdatedAt = s.UpdatedAt.UTC().Round(0)
	}
	return p
}

// LoadLocal reads the cached progress for a session. Missing or corrupt
// entries yield NewProgress.
func LoadLocal(ctx context.Context, store kvstore.Store, sessionID string) (Progress, error) {
	raw, err := store.Get(ctx, kvstore.ProgressKey(sessionID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return NewProgress(), nil
	}
	if err != nil {
		return NewProgress(), err
	}
	return Coerce(raw), nil
}

// SaveLocal writes the cached progress for a session.
func SaveLocal(ctx context.Context, store kvstore.Store, sessionID string, p Progress) error {
	return kvstore.SetJSON(ctx, store, kvstore.ProgressKey(sessionID), p)
}
