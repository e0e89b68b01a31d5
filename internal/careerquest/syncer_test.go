package careerquest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/models"
)

// memRemote is an in-memory server enforcing the revision check.
type memRemote struct {
	mu       sync.Mutex
	snap     models.QuestSnapshot
	pushes   []Progress
	fetchErr error
	pushErr  error
	clock    time.Time
}

func (m *memRemote) Fetch(ctx context.Context) (models.QuestSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.fetchErr
}

func (m *memRemote) Push(ctx context.Context, progress json.RawMessage, revision int) (models.QuestSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, Coerce(progress))
	if m.pushErr != nil {
		return models.QuestSnapshot{}, m.pushErr
	}
	if revision != m.snap.Revision {
		return models.QuestSnapshot{}, &ConflictError{Snapshot: m.snap}
	}
	m.clock = m.clock.Add(time.Second)
	m.snap = models.QuestSnapshot{Progress: progress, Revision: revision + 1, UpdatedAt: m.clock}
	return m.snap, nil
}

func (m *memRemote) pushed() []Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Progress(nil), m.pushes...)
}

// manualClock hands out strictly increasing timestamps.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// manualTimers records armed callbacks; only the newest one stays live.
type manualTimers struct {
	mu    sync.Mutex
	armed int
	fire  func()
}

func (m *manualTimers) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed++
	var once sync.Once
	live := true
	var liveMu sync.Mutex
	m.fire = func() {
		liveMu.Lock()
		ok := live
		liveMu.Unlock()
		if ok {
			once.Do(f)
		}
	}
	return func() bool {
		liveMu.Lock()
		defer liveMu.Unlock()
		was := live
		live = false
		return was
	}
}

func (m *manualTimers) elapse() {
	m.mu.Lock()
	f := m.fire
	m.mu.Unlock()
	if f != nil {
		f()
	}
}

func newSyncer(t *testing.T, remote *memRemote, opts ...SyncOption) (*Syncer, kvstore.Store, *manualTimers) {
	t.Helper()
	timers := &manualTimers{}
	clock := &manualClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	store := kvstore.NewMemory()
	opts = append([]SyncOption{WithScheduler(timers.schedule), WithClock(clock.now)}, opts...)
	s := NewSyncer(store, remote, "sess-1", opts...)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, store, timers
}

func addCoins(n int) func(*Progress) error {
	return func(p *Progress) error {
		p.Coins += n
		return nil
	}
}

func TestSyncer_MutationPersistsImmediately(t *testing.T) {
	remote := &memRemote{}
	s, store, _ := newSyncer(t, remote)
	ctx := context.Background()

	p, err := s.Mutate(ctx, addCoins(5))
	require.NoError(t, err)
	assert.False(t, p.UpdatedAt.IsZero())

	saved, err := LoadLocal(ctx, store, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Coins)
	assert.Empty(t, remote.pushed())
}

func TestSyncer_DebounceCoalesces(t *testing.T) {
	remote := &memRemote{}
	s, _, timers := newSyncer(t, remote)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := s.Mutate(ctx, addCoins(1))
		require.NoError(t, err)
	}
	assert.Equal(t, 10, timers.armed)
	assert.Empty(t, remote.pushed())

	timers.elapse()
	pushes := remote.pushed()
	require.Len(t, pushes, 1)
	assert.Equal(t, 10, pushes[0].Coins)
	assert.Equal(t, 1, s.Progress().Revision)
}

func TestSyncer_FailedMutationChangesNothing(t *testing.T) {
	remote := &memRemote{}
	s, _, timers := newSyncer(t, remote)
	boom := errors.New("boom")
	_, err := s.Mutate(context.Background(), func(p *Progress) error {
		p.Coins = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.Progress().Coins)
	assert.Zero(t, timers.armed)
}

func TestSyncer_DedupSignature(t *testing.T) {
	remote := &memRemote{}
	s, _, _ := newSyncer(t, remote)
	ctx := context.Background()

	_, err := s.Mutate(ctx, addCoins(1))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Flush(ctx))
	assert.Len(t, remote.pushed(), 1)

	_, err = s.Mutate(ctx, addCoins(1))
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	pushes := remote.pushed()
	require.Len(t, pushes, 2)
	assert.Equal(t, 1, pushes[1].Revision)
	assert.Equal(t, 2, s.Progress().Revision)
}

func TestSyncer_ConflictReplacesAndNotifies(t *testing.T) {
	serverState := NewProgress()
	serverState.Level, serverState.Coins = 4, 777
	serverState.CompletedTaskIDs = []string{"p0-avatar"}
	raw, _ := json.Marshal(serverState)
	remote := &memRemote{snap: models.QuestSnapshot{
		Progress:  raw,
		Revision:  5,
		UpdatedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}}

	var notes []string
	s, store, _ := newSyncer(t, remote, WithNotify(func(m string) { notes = append(notes, m) }))
	ctx := context.Background()

	// Local is at revision 3, the server has moved to 5.
	_, err := s.Mutate(ctx, func(p *Progress) error {
		p.Revision = 3
		p.Coins = 1
		p.CompletedTaskIDs = append(p.CompletedTaskIDs, "local-only")
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))

	got := s.Progress()
	assert.Equal(t, 5, got.Revision)
	assert.Equal(t, 777, got.Coins)
	assert.Equal(t, []string{"p0-avatar"}, got.CompletedTaskIDs)
	assert.Equal(t, []string{ConflictMessage}, notes)

	saved, err := LoadLocal(ctx, store, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 777, saved.Coins)

	// The server copy is already synced: nothing more to send.
	require.NoError(t, s.Flush(ctx))
	assert.Len(t, remote.pushed(), 1)
}

func TestSyncer_PushErrorKeepsLocal(t *testing.T) {
	remote := &memRemote{pushErr: errors.New("offline")}
	s, _, _ := newSyncer(t, remote)
	ctx := context.Background()
	_, err := s.Mutate(ctx, addCoins(3))
	require.NoError(t, err)
	assert.Error(t, s.Flush(ctx))
	assert.Equal(t, 3, s.Progress().Coins)

	remote.mu.Lock()
	remote.pushErr = nil
	remote.mu.Unlock()
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 1, s.Progress().Revision)
}

func TestSyncer_Load(t *testing.T) {
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	local := NewProgress()
	local.Level, local.UpdatedAt = 2, old.Add(time.Hour)

	t.Run("local newer", func(t *testing.T) {
		remoteState := NewProgress()
		remoteState.Level = 9
		raw, _ := json.Marshal(remoteState)
		remote := &memRemote{snap: models.QuestSnapshot{Progress: raw, Revision: 1, UpdatedAt: old}}
		s, store, _ := newSyncer(t, remote)
		require.NoError(t, SaveLocal(ctx, store, "sess-1", local))

		p, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, p.Level)
	})

	t.Run("remote newer", func(t *testing.T) {
		remoteState := NewProgress()
		remoteState.Level = 9
		raw, _ := json.Marshal(remoteState)
		remote := &memRemote{snap: models.QuestSnapshot{Progress: raw, Revision: 4, UpdatedAt: old.Add(2 * time.Hour)}}
		s, store, _ := newSyncer(t, remote)
		require.NoError(t, SaveLocal(ctx, store, "sess-1", local))

		p, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, p.Level)
		assert.Equal(t, 4, p.Revision)
		saved, _ := LoadLocal(ctx, store, "sess-1")
		assert.Equal(t, 9, saved.Level)

		require.NoError(t, s.Flush(ctx))
		assert.Empty(t, remote.pushed())
	})

	t.Run("remote down", func(t *testing.T) {
		remote := &memRemote{fetchErr: errors.New("down")}
		s, store, _ := newSyncer(t, remote)
		require.NoError(t, SaveLocal(ctx, store, "sess-1", local))

		p, err := s.Load(ctx)
		assert.Error(t, err)
		assert.Equal(t, 2, p.Level)
		assert.Equal(t, 2, s.Progress().Level)
	})
}

func TestSyncer_CloseFlushesAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := &memRemote{}
	store := kvstore.NewMemory()
	s := NewSyncer(store, remote, "sess-1", WithDebounce(time.Hour))
	ctx := context.Background()

	_, err := s.Mutate(ctx, addCoins(2))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))
	require.Len(t, remote.pushed(), 1)

	_, err = s.Mutate(ctx, addCoins(1))
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, s.Close(ctx))
	assert.Len(t, remote.pushed(), 1)
}

func TestSyncer_WallClockDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)
	remote := &memRemote{}
	s := NewSyncer(kvstore.NewMemory(), remote, "sess-1", WithDebounce(20*time.Millisecond))
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Mutate(ctx, addCoins(1))
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(remote.pushed()) > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Close(ctx))
	pushes := remote.pushed()
	assert.Equal(t, 5, pushes[len(pushes)-1].Coins)
}
