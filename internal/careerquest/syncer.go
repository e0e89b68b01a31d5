package careerquest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/kvstore"
	"github.com/maconsulting/parcours/internal/logging"
)

// ConflictMessage is shown when the server overwrote local progress.
const ConflictMessage = "Conflit de progression — rechargée depuis le serveur"

// DefaultDebounce is the quiet window before local changes are pushed.
const DefaultDebounce = 900 * time.Millisecond

// ErrClosed is returned by Mutate after Close.
var ErrClosed = errors.New("careerquest: syncer closed")

// Syncer owns the local progress copy: every mutation is saved to the
// store at once and pushed to the server after a quiet window.
type Syncer struct {
	store     kvstore.Store
	remote    Remote
	sessionID string
	log       *zap.Logger
	notify    func(string)
	now       func() time.Time
	debounce  time.Duration
	schedule  async.Scheduler

	baseCtx context.Context
	cancel  context.CancelFunc
	deb     *async.Debouncer

	mu       sync.Mutex
	progress Progress
	lastSig  string

	pushMu sync.Mutex
	closed atomic.Bool
}

type SyncOption func(*Syncer)

func WithDebounce(d time.Duration) SyncOption {
	return func(s *Syncer) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithScheduler replaces the wall-clock timer.
func WithScheduler(fn async.Scheduler) SyncOption {
	return func(s *Syncer) { s.schedule = fn }
}

// WithNotify receives user-facing advisories such as ConflictMessage.
func WithNotify(fn func(string)) SyncOption {
	return func(s *Syncer) { s.notify = fn }
}

func WithClock(now func() time.Time) SyncOption {
	return func(s *Syncer) { s.now = now }
}

func WithSyncLogger(l *zap.Logger) SyncOption {
	return func(s *Syncer) { s.log = logging.OrNop(l) }
}

// NewSyncer starts with a fresh progress; call Load to read the caches.
func NewSyncer(store kvstore.Store, remote Remote, sessionID string, opts ...SyncOption) *Syncer {
	s := &Syncer{
		store:     store,
		remote:    remote,
		sessionID: sessionID,
		log:       zap.NewNop(),
		notify:    func(string) {},
		now:       func() time.Time { return time.Now().UTC() },
		debounce:  DefaultDebounce,
		progress:  NewProgress(),
	}
	for _, o := range opts {
		o(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.deb = async.NewDebouncer(s.debounce, s.onTimer, s.schedule)
	return s
}

// Progress returns a copy of the current state.
func (s *Syncer) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Clone()
}

// Load reads the local copy, then the server copy, keeping whichever has the
// newer updatedAt. A server failure is returned alongside the local state,
// which stays usable.
func (s *Syncer) Load(ctx context.Context) (Progress, error) {
	local, err := LoadLocal(ctx, s.store, s.sessionID)
	if err != nil {
		s.log.Warn("local progress unreadable", zap.Error(err))
	}
	s.mu.Lock()
	s.progress = local
	s.mu.Unlock()

	snap, err := s.remote.Fetch(ctx)
	if err != nil {
		return local.Clone(), fmt.Errorf("fetch remote progress: %w", err)
	}

	s.mu.Lock()
	next, action := Reconcile(s.progress, Outcome{Kind: OutcomeRemote, Snapshot: snap})
	s.progress = next
	if action == ActionReplaced {
		s.lastSig = next.Signature()
	}
	s.mu.Unlock()

	if action == ActionReplaced {
		s.log.Info("remote progress is newer, replacing local", zap.Int("revision", next.Revision))
		if err := SaveLocal(ctx, s.store, s.sessionID, next); err != nil {
			return next.Clone(), fmt.Errorf("save progress: %w", err)
		}
	}
	return next.Clone(), nil
}

// Mutate applies fn to a copy of the progress, stamps updatedAt, saves it
// locally and schedules a push. When fn fails nothing changes.
func (s *Syncer) Mutate(ctx context.Context, fn func(*Progress) error) (Progress, error) {
	if s.closed.Load() {
		return Progress{}, ErrClosed
	}

	s.mu.Lock()
	next := s.progress.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return Progress{}, err
	}
	next.UpdatedAt = s.now()
	next = next.Normalize()
	s.progress = next
	s.mu.Unlock()

	if err := SaveLocal(ctx, s.store, s.sessionID, next); err != nil {
		return next.Clone(), fmt.Errorf("save progress: %w", err)
	}
	s.deb.Trigger()
	return next.Clone(), nil
}

// Flush pushes pending changes now.
func (s *Syncer) Flush(ctx context.Context) error {
	s.deb.Cancel()
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.closed.Load() {
		return nil
	}
	return s.push(ctx)
}

// Close flushes and stops the syncer. Later mutations fail with ErrClosed.
func (s *Syncer) Close(ctx context.Context) error {
	s.deb.Stop()
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.closed.Load() {
		return nil
	}
	err := s.push(ctx)
	s.closed.Store(true)
	s.cancel()
	return err
}

func (s *Syncer) onTimer() {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	if s.closed.Load() {
		return
	}
	if err := s.push(s.baseCtx); err != nil {
		s.log.Warn("progress sync failed", zap.Error(err))
	}
}

// push sends the current progress unless it was already synced. pushMu must
// be held.
func (s *Syncer) push(ctx context.Context) error {
	s.mu.Lock()
	sent := s.progress.Clone()
	skip := sent.Signature() == s.lastSig
	s.mu.Unlock()
	if skip {
		return nil
	}

	raw, err := json.Marshal(sent)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	snap, err := s.remote.Push(ctx, raw, sent.Revision)

	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		s.mu.Lock()
		next, _ := Reconcile(s.progress, Outcome{Kind: OutcomeConflict, Snapshot: conflict.Snapshot})
		s.progress = next
		s.lastSig = next.Signature()
		s.mu.Unlock()
		s.log.Warn("progress conflict, server copy kept",
			zap.Int("sent_revision", sent.Revision), zap.Int("server_revision", next.Revision))
		if err := SaveLocal(ctx, s.store, s.sessionID, next); err != nil {
			s.log.Warn("save progress after conflict", zap.Error(err))
		}
		s.notify(ConflictMessage)
		return nil
	case err != nil:
		return fmt.Errorf("push progress: %w", err)
	}

	s.mu.Lock()
	next, action := Reconcile(s.progress, Outcome{Kind: OutcomeAccepted, Snapshot: snap})
	s.progress = next
	sent.Revision = next.Revision
	s.lastSig = sent.Signature()
	s.mu.Unlock()

	if action == ActionBumpRevision {
		if err := SaveLocal(ctx, s.store, s.sessionID, next); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
	}
	s.log.Debug("progress synced", zap.Int("revision", next.Revision), zap.Stringer("action", action))
	return nil
}
