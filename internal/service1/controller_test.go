package service1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/models"
)

const prefix = "/diagnostic-sessions/service1/"

// fakeBackend serves canned phase documents. get holds successive GET
// answers per phase field (the last one repeats); post maps "phaseN/action"
// to the document it returns, which also becomes the phase's GET answer.
type fakeBackend struct {
	mu     sync.Mutex
	get    map[string][]string
	post   map[string]string
	fail   map[string]int
	calls  map[string]int
	bodies map[string]models.Service1Request
	block  map[string]chan struct{}
	final  string
}

func newFake() *fakeBackend {
	return &fakeBackend{
		get:    map[string][]string{},
		post:   map[string]string{},
		fail:   map[string]int{},
		calls:  map[string]int{},
		bodies: map[string]models.Service1Request{},
		block:  map[string]chan struct{}{},
	}
}

func (f *fakeBackend) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeBackend) body(rest string) models.Service1Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[rest]
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	call := r.Method + " " + rest

	f.mu.Lock()
	f.calls[call]++
	status := f.fail[call]
	wait := f.block[rest]
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}
	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"message":"échec %s"}`, rest)
		return
	}
	if rest == "final" {
		fmt.Fprint(w, f.final)
		return
	}

	field, _, _ := strings.Cut(rest, "/")
	f.mu.Lock()
	defer f.mu.Unlock()
	var doc string
	if r.Method == http.MethodGet {
		seq := f.get[field]
		switch len(seq) {
		case 0:
			doc = "{}"
		case 1:
			doc = seq[0]
		default:
			doc = seq[0]
			f.get[field] = seq[1:]
		}
	} else {
		var ok bool
		doc, ok = f.post[rest]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body models.Service1Request
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.bodies[rest] = body
		} else {
			_, _ = io.Copy(io.Discard, r.Body)
		}
		f.get[field] = []string{doc}
	}
	fmt.Fprintf(w, `{"data":{%q:%s}}`, field, doc)
}

func newController(t *testing.T, f *fakeBackend) *Controller {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewController(apiclient.New(srv.URL), " Ana@Example.fr ",
		WithPollPolicy(async.RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond}))
	require.NoError(t, err)
	return c
}

func TestNewController_ValidatesEmail(t *testing.T) {
	_, err := NewController(apiclient.New("http://unused"), "nope")
	var ve *apiclient.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestParsePhaseKey(t *testing.T) {
	for in, want := range map[string]PhaseKey{"0": Phase0, "phase3": Phase3, "final": PhaseFinal} {
		got, err := ParsePhaseKey(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePhaseKey("phase9")
	assert.Error(t, err)
}

func TestIsEmpty(t *testing.T) {
	now := time.Now()
	three := []models.Scenario{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	paths := []models.GrowthPath{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	cases := []struct {
		name  string
		state any
		want  bool
	}{
		{"p0 blank", &models.Phase0State{}, true},
		{"p0 cv only", &models.Phase0State{CV: &models.CVAnalysis{}}, false},
		{"p1 blank", &models.Phase1State{}, true},
		{"p1 report", &models.Phase1State{ReportMarkdown: "# r"}, false},
		{"p2 two scenarios", &models.Phase2State{Scenarios: three[:2]}, true},
		{"p2 three scenarios", &models.Phase2State{Scenarios: three}, false},
		{"p2 report only", &models.Phase2State{ReportMarkdown: "x"}, false},
		{"p3 blank", &models.Phase3State{}, true},
		{"p3 selected", &models.Phase3State{SelectedGrowthPath: &paths[0]}, false},
		{"p3 paths", &models.Phase3State{Paths: paths}, false},
		{"p4 missing roadmap", &models.Phase4State{Note: "n", Planning: []models.PlanningItem{{Week: 1}}}, true},
		{"p4 full", &models.Phase4State{Note: "n", Planning: []models.PlanningItem{{Week: 1}}, Roadmap3Months: []models.RoadmapMonth{{Month: 1}}}, false},
		{"p5 no snapshot", &models.Phase5State{AggregatedProfile: &models.AggregatedProfile{}}, true},
		{"p5 full", &models.Phase5State{AggregatedProfile: &models.AggregatedProfile{}, SnapshotAt: &now}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isEmpty(tc.state), tc.name)
	}
}

func TestSelect_AutoComputeOncePerVisit(t *testing.T) {
	f := newFake()
	// The compute answer is still empty, so only the visit flag stops a loop.
	f.post["phase0/compute"] = `{}`
	f.post["phase1/compute"] = `{}`
	c := newController(t, f)
	ctx := context.Background()

	require.NoError(t, c.Select(ctx, Phase1))
	require.NoError(t, c.Select(ctx, Phase1))
	assert.Equal(t, 2, f.count("GET phase1/state"))
	assert.Equal(t, 1, f.count("POST phase1/compute"))
	assert.Equal(t, "ana@example.fr", f.body("phase1/compute").Email)

	require.NoError(t, c.Select(ctx, Phase0))
	assert.Equal(t, 1, f.count("POST phase0/compute"))
	require.NoError(t, c.Select(ctx, Phase1))
	assert.Equal(t, 2, f.count("POST phase1/compute"))
	assert.Equal(t, Phase1, c.Current())
}

func TestSelect_NoComputeWhenFilled(t *testing.T) {
	f := newFake()
	f.get["phase1"] = []string{`{"status":"ready","reportMarkdown":"# Profil"}`}
	c := newController(t, f)

	require.NoError(t, c.Select(context.Background(), Phase1))
	assert.Zero(t, f.count("POST phase1/compute"))
	assert.Equal(t, "# Profil", c.Phase1().ReportMarkdown)
}

func TestPostReplacesState(t *testing.T) {
	f := newFake()
	f.get["phase3"] = []string{`{"status":"generated","paths":[{"id":"a"},{"id":"b"},{"id":"c"}]}`}
	f.post["phase3/select"] = `{"status":"selected","selectedGrowthPath":{"id":"b","title":"B"}}`
	c := newController(t, f)
	ctx := context.Background()

	require.NoError(t, c.Select(ctx, Phase3))
	require.Len(t, c.Phase3().Paths, 3)

	st, err := c.SelectPath(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", st.SelectedGrowthPath.ID)
	// No merge: paths absent from the response are gone.
	assert.Empty(t, c.Phase3().Paths)
	assert.Equal(t, "b", f.body("phase3/select").PathID)
}

func TestSelect_Phase4RequiresGrowthPath(t *testing.T) {
	f := newFake()
	f.get["phase3"] = []string{`{"paths":[{"id":"a"},{"id":"b"},{"id":"c"}]}`}
	f.post["phase4/generate-plan"] = `{"note":"n","planning":[{"week":1,"title":"t"}],"roadmap3Months":[{"month":1,"focus":"f"}]}`
	c := newController(t, f)
	ctx := context.Background()

	err := c.Select(ctx, Phase4)
	assert.ErrorIs(t, err, ErrPrerequisite)
	assert.Zero(t, f.count("GET phase4/state"))
	_, err = c.GeneratePlan(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)
	assert.Zero(t, f.count("POST phase4/generate-plan"))

	f.mu.Lock()
	f.get["phase3"] = []string{`{"selectedGrowthPath":{"id":"a"}}`}
	f.mu.Unlock()
	_, err = c.fetch(ctx, Phase3)
	require.NoError(t, err)

	require.NoError(t, c.Select(ctx, Phase4))
	assert.Equal(t, 1, f.count("POST phase4/generate-plan"))
	assert.Equal(t, "n", c.Phase4().Note)
}

func TestTabs_FinalOnlyWhenCompleted(t *testing.T) {
	f := newFake()
	f.get["phase5"] = []string{`{"status":"awaiting_grand_answer","aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z"}`}
	f.final = `{"data":{"markdown":"# Synthèse"}}`
	c := newController(t, f)
	ctx := context.Background()

	require.NoError(t, c.Select(ctx, Phase5))
	assert.NotContains(t, c.Tabs(), PhaseFinal)
	assert.ErrorIs(t, c.Select(ctx, PhaseFinal), ErrPrerequisite)

	for _, doc := range []string{
		`{"status":"completed","aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z"}`,
		`{"status":"awaiting_grand_answer","completed":true,"aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z"}`,
	} {
		f.mu.Lock()
		f.get["phase5"] = []string{doc}
		f.mu.Unlock()
		require.NoError(t, c.Select(ctx, Phase5))
		assert.Contains(t, c.Tabs(), PhaseFinal)
	}

	require.NoError(t, c.Select(ctx, PhaseFinal))
	fs, err := c.Final(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# Synthèse", fs.Markdown)
}

func TestErrors_PhaseScopedAndCleared(t *testing.T) {
	f := newFake()
	f.fail["GET phase2/state"] = http.StatusInternalServerError
	c := newController(t, f)
	ctx := context.Background()

	err := c.Select(ctx, Phase2)
	he, ok := apiclient.AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, he.Status)
	assert.Equal(t, "échec phase2/state", c.Err(Phase2))
	assert.Empty(t, c.Err(Phase1))

	f.mu.Lock()
	delete(f.fail, "GET phase2/state")
	f.get["phase2"] = []string{`{"reportMarkdown":"ok"}`}
	f.mu.Unlock()
	require.NoError(t, c.Select(ctx, Phase2))
	assert.Empty(t, c.Err(Phase2))
}

func TestErrors_NetworkMessage(t *testing.T) {
	srv := httptest.NewServer(newFake())
	url := srv.URL
	srv.Close()
	c, err := NewController(apiclient.New(url), "a@b.fr")
	require.NoError(t, err)

	err = c.Select(context.Background(), Phase1)
	var ne *apiclient.NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, apiclient.NetworkMessage, c.Err(Phase1))
}

func TestAnswerInterview_PollsCadrageNote(t *testing.T) {
	f := newFake()
	f.get["phase0"] = []string{`{"status":"interview","cv":{"fileName":"cv.pdf","summary":"s"},"interview":{"questions":[{"id":"q1","text":"?"},{"id":"q2","text":"?"}],"answers":[{"questionId":"q1","answer":"a"}]}}`}
	f.post["phase0/interview/answer"] = `{"status":"interview_done","cv":{"fileName":"cv.pdf","summary":"s"},"interview":{"questions":[{"id":"q1"},{"id":"q2"}],"completed":true}}`
	c := newController(t, f)
	ctx := context.Background()

	require.NoError(t, c.Select(ctx, Phase0))

	st, err := c.AnswerInterview(ctx, "ma réponse")
	require.NoError(t, err)
	assert.Equal(t, "q2", f.body("phase0/interview/answer").QuestionID)
	assert.True(t, st.Interview.Completed)
	// The fake never produces a note: the poll gives up after five tries.
	assert.Empty(t, st.CadrageNote)
	assert.Equal(t, 1+5, f.count("GET phase0/state"))
}

func TestAnswerInterview_StopsPollingOnNote(t *testing.T) {
	f := newFake()
	base := `"cv":{"fileName":"cv.pdf","summary":"s"},"interview":{"questions":[{"id":"q1"}],"completed":%s}`
	f.get["phase0"] = []string{`{` + fmt.Sprintf(base, "false") + `}`}
	f.post["phase0/interview/answer"] = `{` + fmt.Sprintf(base, "true") + `}`
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase0))

	_, err := c.AnswerInterview(ctx, "réponse")
	require.NoError(t, err)
	polls := f.count("GET phase0/state") - 1
	assert.Equal(t, 5, polls)

	f.mu.Lock()
	f.get["phase0"] = []string{
		`{` + fmt.Sprintf(base, "true") + `}`,
		`{"cadrageNote":"# Note",` + fmt.Sprintf(base, "true") + `}`,
	}
	f.mu.Unlock()
	st, err := c.pollCadrage(ctx, c.Phase0())
	require.NoError(t, err)
	assert.Equal(t, "# Note", st.CadrageNote)
	assert.Equal(t, 1+5+2, f.count("GET phase0/state"))
}

func TestInterviewPrerequisites(t *testing.T) {
	f := newFake()
	f.get["phase0"] = []string{`{"status":"awaiting_cv"}`}
	f.post["phase0/analyze-cv"] = `{"status":"cv_done","cv":{"fileName":"cv.pdf","summary":"s"}}`
	f.post["phase0/interview/start"] = `{"status":"interview","cv":{"fileName":"cv.pdf"},"interview":{"questions":[{"id":"q1"}]}}`
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase0))

	_, err := c.StartInterview(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)
	_, err = c.AnswerInterview(ctx, "x")
	assert.ErrorIs(t, err, ErrPrerequisite)

	st, err := c.AnalyzeCV(ctx, "cv.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "cv.pdf", st.CV.FileName)

	st, err = c.StartInterview(ctx)
	require.NoError(t, err)
	q, ok := st.Interview.NextQuestion()
	require.True(t, ok)
	assert.Equal(t, "q1", q.ID)
}

func TestPhase2Actions(t *testing.T) {
	f := newFake()
	f.get["phase2"] = []string{`{"scenarios":[{"id":"s1"},{"id":"s2"},{"id":"s3"}]}`}
	f.post["phase2/answer"] = `{"scenarios":[{"id":"s1"},{"id":"s2"},{"id":"s3"}],"answers":{"s1":"a","s2":"b","s3":"c"}}`
	f.post["phase2/generate-report"] = `{"status":"report","reportMarkdown":"# R"}`
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase2))

	_, err := c.GenerateReport(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)

	var ve *apiclient.ValidationError
	_, err = c.AnswerScenarios(ctx, map[string]string{"s1": "a", "s2": " "})
	assert.True(t, errors.As(err, &ve))
	assert.Zero(t, f.count("POST phase2/answer"))

	_, err = c.AnswerScenarios(ctx, map[string]string{"s1": "a", "s2": "b", "s3": "c"})
	require.NoError(t, err)
	st, err := c.GenerateReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# R", st.ReportMarkdown)
}

func TestPhase5Chain(t *testing.T) {
	f := newFake()
	snap := `"aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z"`
	f.get["phase5"] = []string{`{"status":"awaiting_self_description",` + snap + `}`}
	f.post["phase5/self-description"] = `{"status":"awaiting_action_choice",` + snap + `,"selfAwareness":{"score":70,"feedback":"f"}}`
	f.post["phase5/final-actions"] = `{"status":"awaiting_action_choice",` + snap + `,"selfAwareness":{"score":70},"finalActions":[{"id":"fa1","title":"T","pressure":"high"}]}`
	f.post["phase5/select-action"] = `{"status":"awaiting_grand_simulation",` + snap + `,"selectedFinalAction":{"id":"fa1"}}`
	f.post["phase5/skill-gap"] = `{"status":"awaiting_grand_simulation",` + snap + `,"selectedFinalAction":{"id":"fa1"},"skillGap":{"skill":"x","microActions":["m1"]}}`
	f.post["phase5/grand-simulation"] = `{"status":"awaiting_grand_answer",` + snap + `,"selectedFinalAction":{"id":"fa1"},"grandSimulation":{"scenario":"sc","question":"q"}}`
	f.post["phase5/grand-answer"] = `{"status":"awaiting_grand_answer",` + snap + `,"selectedFinalAction":{"id":"fa1"},"grandSimulation":{"scenario":"sc"},"grandAnswer":"ans"}`
	f.post["phase5/evaluate"] = `{"status":"awaiting_grand_answer",` + snap + `,"grandAnswer":"ans","evaluation":{"score":80,"verdict":"ok"}}`
	f.post["phase5/handover"] = `{"status":"completed",` + snap + `,"grandAnswer":"ans","handover":"h","completed":true}`
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase5))
	assert.Zero(t, f.count("POST phase5/aggregate"))

	_, err := c.GenerateFinalActions(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)
	_, err = c.SelectFinalAction(ctx, "fa1")
	assert.ErrorIs(t, err, ErrPrerequisite)
	_, err = c.StartGrandSimulation(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)
	_, err = c.SubmitGrandAnswer(ctx, "ans")
	assert.ErrorIs(t, err, ErrPrerequisite)
	_, err = c.Evaluate(ctx)
	assert.ErrorIs(t, err, ErrPrerequisite)

	_, err = c.SubmitSelfDescription(ctx, "Je suis curieuse.")
	require.NoError(t, err)
	_, err = c.GenerateFinalActions(ctx)
	require.NoError(t, err)
	_, err = c.SelectFinalAction(ctx, "zz")
	var ve *apiclient.ValidationError
	assert.True(t, errors.As(err, &ve))
	_, err = c.SelectFinalAction(ctx, "fa1")
	require.NoError(t, err)
	st, err := c.GenerateSkillGap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, st.SkillGap.MicroActions)
	_, err = c.StartGrandSimulation(ctx)
	require.NoError(t, err)
	_, err = c.SubmitGrandAnswer(ctx, "ans")
	require.NoError(t, err)
	st, err = c.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, st.Evaluation.Score)
	_, err = c.Handover(ctx)
	require.NoError(t, err)
	assert.Contains(t, c.Tabs(), PhaseFinal)
}

func TestSubmitGrandAnswer_SingleFlight(t *testing.T) {
	f := newFake()
	f.get["phase5"] = []string{`{"aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z","grandSimulation":{"scenario":"sc"}}`}
	f.post["phase5/grand-answer"] = `{"grandAnswer":"a"}`
	release := make(chan struct{})
	f.block["phase5/grand-answer"] = release
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase5))

	first := make(chan error, 1)
	go func() {
		_, err := c.SubmitGrandAnswer(ctx, "a")
		first <- err
	}()
	require.Eventually(t, c.grandBusy.Busy, time.Second, time.Millisecond)

	_, err := c.SubmitGrandAnswer(ctx, "b")
	assert.ErrorIs(t, err, async.ErrBusy)

	close(release)
	require.NoError(t, <-first)
	assert.False(t, c.grandBusy.Busy())
	assert.Equal(t, 1, f.count("POST phase5/grand-answer"))
}

func TestSubmitGrandAnswer_ReleasesOnFailure(t *testing.T) {
	f := newFake()
	f.get["phase5"] = []string{`{"aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z","grandSimulation":{"scenario":"sc"}}`}
	f.post["phase5/grand-answer"] = `{}`
	f.fail["POST phase5/grand-answer"] = http.StatusBadGateway
	c := newController(t, f)
	ctx := context.Background()
	require.NoError(t, c.Select(ctx, Phase5))

	_, err := c.SubmitGrandAnswer(ctx, "a")
	require.Error(t, err)
	assert.False(t, c.grandBusy.Busy())
	assert.Equal(t, "échec phase5/grand-answer", c.Err(Phase5))
}

func TestOverview(t *testing.T) {
	f := newFake()
	f.get["phase1"] = []string{`{"status":"ready","reportMarkdown":"x"}`}
	f.get["phase5"] = []string{`{"status":"completed","aggregatedProfile":{"summary":"s"},"snapshotAt":"2026-01-02T00:00:00Z"}`}
	c := newController(t, f)

	sum, err := c.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, sum, 6)
	assert.True(t, sum[0].Empty)
	assert.Equal(t, "ready", sum[1].Status)
	assert.False(t, sum[1].Empty)
	assert.Equal(t, "completed", sum[5].Status)
	for _, k := range Phases[:6] {
		assert.Zero(t, f.count("POST "+k.field()+"/"+computeAction[k]))
	}
	assert.Contains(t, c.Tabs(), PhaseFinal)

	f.mu.Lock()
	f.fail["GET phase3/state"] = http.StatusInternalServerError
	f.mu.Unlock()
	_, err = c.Overview(context.Background())
	assert.Error(t, err)
}
