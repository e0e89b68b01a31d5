package careerquest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/apiclient"
	"github.com/maconsulting/parcours/internal/async"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrPhaseLocked = errors.New("phase locked")
)

// Screenshot is an optional proof image sent for AI scoring.
type Screenshot struct {
	FileName string
	Content  io.Reader
}

// CompleteResult describes a completion attempt.
type CompleteResult struct {
	Task     QuestTask
	Progress Progress
	// LevelsGained counts level-ups caused by this task.
	LevelsGained int
	// OutOfOrder is set when the task was not the current one. The
	// completion still counts.
	OutOfOrder bool
	// AlreadyCompleted means nothing changed.
	AlreadyCompleted bool
	// ScoreErr is set when screenshot scoring failed; the task is still
	// completed, without AI fields.
	ScoreErr error
}

// Quest ties a player's synced progress to their catalog.
type Quest struct {
	syncer  *Syncer
	catalog Catalog
	client  *apiclient.Client
	session models.QuestSession
	log     *zap.Logger
	now     func() time.Time
	scoring async.Guard
}

func NewQuest(syncer *Syncer, catalog Catalog, client *apiclient.Client, session models.QuestSession, log *zap.Logger) *Quest {
	return &Quest{
		syncer:  syncer,
		catalog: catalog,
		client:  client,
		session: session,
		log:     logging.OrNop(log),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (q *Quest) Catalog() Catalog { return q.catalog }

func (q *Quest) Progress() Progress { return q.syncer.Progress() }

func (q *Quest) Syncer() *Syncer { return q.syncer }

// Load restores progress; see Syncer.Load.
func (q *Quest) Load(ctx context.Context) (Progress, error) {
	return q.syncer.Load(ctx)
}

// Close flushes pending progress and stops syncing.
func (q *Quest) Close(ctx context.Context) error {
	return q.syncer.Close(ctx)
}

// CurrentTask is the suggested next mission.
func (q *Quest) CurrentTask() (QuestTask, int, bool) {
	return q.catalog.CurrentTask(q.Progress().CompletedSet())
}

// PhaseUnlocked reports whether phase i is open for the current progress.
func (q *Quest) PhaseUnlocked(i int) bool {
	return q.catalog.PhaseUnlocked(i, q.Progress().CompletedSet())
}

// CompleteTask completes a task without a screenshot.
func (q *Quest) CompleteTask(ctx context.Context, taskID string) (CompleteResult, error) {
	return q.SubmitProof(ctx, taskID, nil)
}

// SubmitProof completes taskID, pays its reward and records a proof. A
// screenshot, when given, is scored first.
func (q *Quest) SubmitProof(ctx context.Context, taskID string, shot *Screenshot) (CompleteResult, error) {
	task, phase, ok := q.catalog.Task(taskID)
	if !ok {
		return CompleteResult{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	current := q.Progress()
	res := CompleteResult{Task: task, Progress: current}
	if current.IsCompleted(taskID) {
		res.AlreadyCompleted = true
		return res, nil
	}
	completed := current.CompletedSet()
	if !q.catalog.PhaseUnlocked(phase, completed) {
		return CompleteResult{}, fmt.Errorf("%w: %s", ErrPhaseLocked, q.catalog.Phases[phase].ID)
	}
	if cur, _, ok := q.catalog.CurrentTask(completed); ok && cur.ID != taskID {
		res.OutOfOrder = true
	}

	proof := ProofSubmission{SubmittedAt: q.now()}
	if shot != nil {
		score, err := q.scoreScreenshot(ctx, task, *shot)
		if err != nil {
			q.log.Warn("proof scoring failed", zap.String("task", taskID), zap.Error(err))
			res.ScoreErr = err
		} else {
			analyzed := q.now()
			proof.AIScore = &score.Score
			proof.AILabel = score.Label
			proof.AITips = score.Tips
			proof.AIMeta = score.Meta
			proof.AnalyzedAt = &analyzed
		}
	}

	next, err := q.syncer.Mutate(ctx, func(p *Progress) error {
		if p.IsCompleted(taskID) {
			res.AlreadyCompleted = true
			return nil
		}
		before := p.Level
		*p = ApplyReward(*p, task.Reward)
		res.LevelsGained = p.Level - before
		p.CompletedTaskIDs = append(p.CompletedTaskIDs, taskID)
		p.Proofs[taskID] = proof
		return nil
	})
	if err != nil {
		return CompleteResult{}, err
	}
	res.Progress = next
	q.log.Info("task completed",
		zap.String("task", taskID),
		zap.Int("level", next.Level),
		zap.Int("xp", next.XP),
		zap.Bool("out_of_order", res.OutOfOrder))
	return res, nil
}

func (q *Quest) scoreScreenshot(ctx context.Context, task QuestTask, shot Screenshot) (models.ProofScore, error) {
	if shot.Content == nil || strings.TrimSpace(shot.FileName) == "" {
		return models.ProofScore{}, apiclient.NewValidationError("screenshot", "Capture d'écran requise")
	}
	return async.Exclusive(&q.scoring, func() (models.ProofScore, error) {
		body := &apiclient.MultipartBody{
			Fields: map[string]string{
				"taskId":    task.ID,
				"taskTitle": task.Title,
				"objective": task.Objective,
			},
			Files: []apiclient.FilePart{{Field: "screenshot", FileName: shot.FileName, Content: shot.Content}},
		}
		score, err := apiclient.Send[models.ProofScore](ctx, q.client, http.MethodPost,
			"/career-quest/proof-score-screenshot", body, sessionHeader(q.session))
		if err != nil {
			return models.ProofScore{}, fmt.Errorf("score proof: %w", err)
		}
		score.Score = clamp(score.Score, 0, 100)
		return score, nil
	})
}

// Coach asks the AI coach a question in the context of the current task.
func (q *Quest) Coach(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apiclient.NewValidationError("question", "Question requise")
	}
	req := models.CoachRequest{Question: question, Level: q.Progress().Level}
	if t, _, ok := q.CurrentTask(); ok {
		req.TaskID = t.ID
	}
	reply, err := apiclient.Send[models.CoachReply](ctx, q.client, http.MethodPost, "/career-quest/coach", req, sessionHeader(q.session))
	if err != nil {
		return "", fmt.Errorf("coach: %w", err)
	}
	return reply.Answer, nil
}
