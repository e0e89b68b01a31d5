// Package service1 drives the Service 1 coaching wizard: phases 0 to 5 and
// the final synthesis, each backed by a server-side state document.
package service1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/eligibility"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
)

// PhaseKey names a tab of the wizard.
type PhaseKey string

const (
	Phase0     PhaseKey = "0"
	Phase1     PhaseKey = "1"
	Phase2     PhaseKey = "2"
	Phase3     PhaseKey = "3"
	Phase4     PhaseKey = "4"
	Phase5     PhaseKey = "5"
	PhaseFinal PhaseKey = "final"
)

// Phases is the fixed tab order.
var Phases = []PhaseKey{Phase0, Phase1, Phase2, Phase3, Phase4, Phase5, PhaseFinal}

// ParsePhaseKey accepts "0".."5", "phase3" or "final".
func ParsePhaseKey(s string) (PhaseKey, error) {
	if len(s) == len("phase0") && s[:5] == "phase" {
		s = s[5:]
	}
	for _, k := range Phases {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

func (k PhaseKey) field() string { return "phase" + string(k) }

func (k PhaseKey) path(action string) string {
	return "/diagnostic-sessions/service1/" + k.field() + "/" + action
}

var (
	// ErrPrerequisite means the action's required upstream artifact is missing.
	ErrPrerequisite = errors.New("prerequisite not met")
	// ErrUnknownPhase is returned for keys outside Phases.
	ErrUnknownPhase = errors.New("unknown phase")
)

func prerequisite(msg string) error {
	return fmt.Errorf("%w: %s", ErrPrerequisite, msg)
}

// computeAction is the generation endpoint fired when a phase is empty.
var computeAction = map[PhaseKey]string{
	Phase0: "compute",
	Phase1: "compute",
	Phase2: "generate-scenarios",
	Phase3: "generate-paths",
	Phase4: "generate-plan",
	Phase5: "aggregate",
}

// Controller holds one participant's wizard state. It is safe for concurrent
// use; network calls run without holding the lock.
type Controller struct {
	client *apiclient.Client
	email  string
	log    *zap.Logger
	poll   async.RetryPolicy

	mu       sync.Mutex
	current  PhaseKey
	states   map[PhaseKey]any
	autoDone map[PhaseKey]bool
	errs     map[PhaseKey]string

	analyzing     async.Guard
	interviewBusy async.Guard
	actionLoading async.Guard
	grandBusy     async.Guard
}

type Option func(*Controller)

// WithPollPolicy overrides the cadrage note poll.
func WithPollPolicy(p async.RetryPolicy) Option {
	return func(c *Controller) { c.poll = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = logging.OrNop(l) }
}

// NewController binds a controller to a participant email.
func NewController(client *apiclient.Client, email string, opts ...Option) (*Controller, error) {
	e, err := eligibility.NormalizeAndValidate(email)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		client:   client,
		email:    e,
		log:      zap.NewNop(),
		poll:     async.CadragePolicy,
		states:   map[PhaseKey]any{},
		autoDone: map[PhaseKey]bool{},
		errs:     map[PhaseKey]string{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Controller) Email() string { return c.email }

// Current returns the selected tab, empty before the first Select.
func (c *Controller) Current() PhaseKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Err returns the banner message for a phase, empty when the last attempt
// succeeded.
func (c *Controller) Err(key PhaseKey) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[key]
}

// Tabs lists the visible tabs. Final appears once phase 5 is completed.
func (c *Controller) Tabs() []PhaseKey {
	tabs := append([]PhaseKey(nil), Phases[:6]...)
	if p5 := c.Phase5(); p5.IsCompleted() {
		tabs = append(tabs, PhaseFinal)
	}
	return tabs
}

// Select moves to key, loads its state and, when the state is still empty,
// fires the phase's generation call once for this visit.
func (c *Controller) Select(ctx context.Context, key PhaseKey) error {
	if _, ok := computeAction[key]; !ok && key != PhaseFinal {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, key)
	}
	if err := c.checkEntry(ctx, key); err != nil {
		return err
	}

	c.mu.Lock()
	if c.current != key {
		c.autoDone[key] = false
	}
	c.current = key
	c.mu.Unlock()

	if key == PhaseFinal {
		_, err := c.Final(ctx)
		return err
	}

	st, err := c.fetch(ctx, key)
	if err != nil {
		return err
	}
	if !isEmpty(st) {
		return nil
	}

	c.mu.Lock()
	if c.autoDone[key] {
		c.mu.Unlock()
		return nil
	}
	c.autoDone[key] = true
	c.mu.Unlock()

	c.log.Debug("phase empty, generating", zap.String("phase", string(key)))
	_, err = c.post(ctx, key, computeAction[key], c.body())
	return err
}

// checkEntry blocks tabs whose upstream selection is missing.
func (c *Controller) checkEntry(ctx context.Context, key PhaseKey) error {
	switch key {
	case Phase4:
		p3, err := ensure[models.Phase3State](ctx, c, Phase3)
		if err != nil {
			return err
		}
		if p3.SelectedGrowthPath == nil {
			return prerequisite("phase 3 growth path not selected")
		}
	case PhaseFinal:
		p5, err := ensure[models.Phase5State](ctx, c, Phase5)
		if err != nil {
			return err
		}
		if !p5.IsCompleted() {
			return prerequisite("phase 5 not completed")
		}
	}
	return nil
}

// isEmpty reports whether a phase still needs its generation call.
func isEmpty(state any) bool {
	switch s := state.(type) {
	case *models.Phase0State:
		return s.Status == "" && s.CV == nil && s.Interview == nil
	case *models.Phase1State:
		return s.Status == "" && s.ReportMarkdown == ""
	case *models.Phase2State:
		return len(s.Scenarios) != 3 && s.ReportMarkdown == ""
	case *models.Phase3State:
		return len(s.Paths) != 3 && s.SelectedGrowthPath == nil
	case *models.Phase4State:
		return s.Note == "" || len(s.Planning) == 0 || len(s.Roadmap3Months) == 0
	case *models.Phase5State:
		return s.AggregatedProfile == nil || s.SnapshotAt == nil
	default:
		return false
	}
}

func newState(key PhaseKey) any {
	switch key {
	case Phase0:
		return &models.Phase0State{}
	case Phase1:
		return &models.Phase1State{}
	case Phase2:
		return &models.Phase2State{}
	case Phase3:
		return &models.Phase3State{}
	case Phase4:
		return &models.Phase4State{}
	case Phase5:
		return &models.Phase5State{}
	}
	return nil
}

func (c *Controller) body() models.Service1Request {
	return models.Service1Request{Email: c.email}
}

// fetch loads and caches a phase state.
func (c *Controller) fetch(ctx context.Context, key PhaseKey) (any, error) {
	c.clearErr(key)
	var env models.Envelope[map[string]json.RawMessage]
	err := c.client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   key.path("state"),
		Query:  apiclient.EmailQuery(c.email),
	}, &env)
	if err != nil {
		return nil, c.fail(key, fmt.Errorf("load phase %s: %w", key, err))
	}
	return c.replace(key, env.Data)
}

// post runs a phase action; its response fully replaces the cached state.
func (c *Controller) post(ctx context.Context, key PhaseKey, action string, body any) (any, error) {
	c.clearErr(key)
	var env models.Envelope[map[string]json.RawMessage]
	err := c.client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   key.path(action),
		Body:   body,
	}, &env)
	if err != nil {
		return nil, c.fail(key, fmt.Errorf("phase %s %s: %w", key, action, err))
	}
	return c.replace(key, env.Data)
}

func (c *Controller) replace(key PhaseKey, data map[string]json.RawMessage) (any, error) {
	st := newState(key)
	if raw, ok := data[key.field()]; ok && len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, c.fail(key, &apiclient.NetworkError{Op: "decode " + key.field(), Err: err})
		}
	}
	c.mu.Lock()
	c.states[key] = st
	c.mu.Unlock()
	return st, nil
}

func (c *Controller) clearErr(key PhaseKey) {
	c.mu.Lock()
	delete(c.errs, key)
	c.mu.Unlock()
}

func (c *Controller) fail(key PhaseKey, err error) error {
	c.mu.Lock()
	c.errs[key] = apiclient.UserMessage(err)
	c.mu.Unlock()
	c.log.Warn("service1 call failed", zap.String("phase", string(key)), zap.Error(err))
	return err
}

// cached returns the typed state for key, or nil.
func cached[T any](c *Controller, key PhaseKey) *T {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, _ := c.states[key].(*T)
	return st
}

// ensure returns the cached state, fetching it first when absent.
func ensure[T any](ctx context.Context, c *Controller, key PhaseKey) (*T, error) {
	if st := cached[T](c, key); st != nil {
		return st, nil
	}
	st, err := c.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return st.(*T), nil
}

func (c *Controller) Phase0() *models.Phase0State { return cached[models.Phase0State](c, Phase0) }
func (c *Controller) Phase1() *models.Phase1State { return cached[models.Phase1State](c, Phase1) }
func (c *Controller) Phase2() *models.Phase2State { return cached[models.Phase2State](c, Phase2) }
func (c *Controller) Phase3() *models.Phase3State { return cached[models.Phase3State](c, Phase3) }
func (c *Controller) Phase4() *models.Phase4State { return cached[models.Phase4State](c, Phase4) }
func (c *Controller) Phase5() *models.Phase5State { return cached[models.Phase5State](c, Phase5) }

// Final loads the final synthesis. Phase 5 must be completed.
func (c *Controller) Final(ctx context.Context) (*models.FinalSynthesis, error) {
	if err := c.checkEntry(ctx, PhaseFinal); err != nil {
		return nil, err
	}
	c.clearErr(PhaseFinal)
	fs, err := apiclient.Get[models.FinalSynthesis](ctx, c.client, "/diagnostic-sessions/service1/final", apiclient.EmailQuery(c.email), nil)
	if err != nil {
		return nil, c.fail(PhaseFinal, fmt.Errorf("load final synthesis: %w", err))
	}
	return &fs, nil
}
