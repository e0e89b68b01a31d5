package careerquest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maconsulting/parcours/internal/models"
)

func snapshotOf(t *testing.T, p Progress) models.QuestSnapshot {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return models.QuestSnapshot{Progress: raw, Revision: p.Revision, UpdatedAt: p.UpdatedAt}
}

func TestReconcile_Accepted(t *testing.T) {
	local := Progress{Level: 2, Revision: 3}
	got, action := Reconcile(local, Outcome{Kind: OutcomeAccepted, Snapshot: models.QuestSnapshot{Revision: 4}})
	assert.Equal(t, ActionBumpRevision, action)
	assert.Equal(t, 4, got.Revision)
	assert.Equal(t, 2, got.Level)

	got, action = Reconcile(got, Outcome{Kind: OutcomeAccepted, Snapshot: models.QuestSnapshot{Revision: 4}})
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, 4, got.Revision)
}

func TestReconcile_ConflictTakesServerCopy(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	local := NewProgress()
	local.Level, local.XP, local.Revision, local.UpdatedAt = 5, 300, 7, t0.Add(time.Hour)
	local.CompletedTaskIDs = []string{"p0-avatar", "local-only"}

	server := NewProgress()
	server.Level, server.XP, server.Coins, server.Revision, server.UpdatedAt = 4, 120, 900, 9, t0
	server.CompletedTaskIDs = []string{"p0-avatar"}

	got, action := Reconcile(local, Outcome{Kind: OutcomeConflict, Snapshot: snapshotOf(t, server)})
	assert.Equal(t, ActionReplaced, action)
	assert.Equal(t, 9, got.Revision)
	if diff := cmp.Diff(server.Normalize(), got); diff != "" {
		t.Fatalf("state is not the server copy (-want +got):\n%s", diff)
	}

	again, action := Reconcile(got, Outcome{Kind: OutcomeConflict, Snapshot: snapshotOf(t, server)})
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, got, again)
}

func TestReconcile_RemoteNewerWins(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	local := NewProgress()
	local.Level, local.UpdatedAt = 3, t0

	older := NewProgress()
	older.Level, older.UpdatedAt = 8, t0.Add(-time.Minute)
	got, action := Reconcile(local, Outcome{Kind: OutcomeRemote, Snapshot: snapshotOf(t, older)})
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, 3, got.Level)

	same := older
	same.UpdatedAt = t0
	_, action = Reconcile(local, Outcome{Kind: OutcomeRemote, Snapshot: snapshotOf(t, same)})
	assert.Equal(t, ActionNone, action)

	newer := older
	newer.UpdatedAt = t0.Add(time.Second)
	got, action = Reconcile(local, Outcome{Kind: OutcomeRemote, Snapshot: snapshotOf(t, newer)})
	assert.Equal(t, ActionReplaced, action)
	assert.Equal(t, 8, got.Level)

	_, action = Reconcile(local, Outcome{Kind: OutcomeRemote, Snapshot: models.QuestSnapshot{}})
	assert.Equal(t, ActionNone, action)
}

func TestReconcile_Idempotent(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	server := NewProgress()
	server.Level, server.Revision, server.UpdatedAt = 6, 12, t0
	snap := snapshotOf(t, server)

	for _, kind := range []OutcomeKind{OutcomeAccepted, OutcomeConflict, OutcomeRemote} {
		once, _ := Reconcile(NewProgress(), Outcome{Kind: kind, Snapshot: snap})
		twice, action := Reconcile(once, Outcome{Kind: kind, Snapshot: snap})
		assert.Equal(t, once, twice, "kind %d", kind)
		assert.Equal(t, ActionNone, action, "kind %d", kind)
	}
}
