package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/careerquest"
)

// openQuest opens the stored session's quest and loads its progress. The
// caller must Close the quest so pending progress is pushed.
func (a *app) openQuest(ctx context.Context, personalize bool) (*careerquest.Quest, error) {
	sess, err := careerquest.LoadSession(ctx, a.store)
	if errors.Is(err, careerquest.ErrNoSession) {
		return nil, errors.New("not logged in, run `parcours quest login <email> <code>`")
	}
	if err != nil {
		return nil, err
	}
	if careerquest.Expired(sess, time.Now()) {
		return nil, errors.New("session expired, log in again")
	}

	var profile careerquest.Profile
	if personalize {
		c, err := a.controller(sess.Email)
		if err != nil {
			return nil, err
		}
		if _, err := c.Overview(ctx); err != nil {
			a.log.Warn("service1 profile unavailable, using the static catalog", zap.Error(err))
		} else {
			profile = careerquest.ProfileFromPhase5(c.Phase5())
		}
	}
	catalog, err := careerquest.BuildCatalog(profile)
	if err != nil {
		return nil, err
	}

	debounce, _ := a.cfg.SyncDebounce()
	syncer := careerquest.NewSyncer(a.store, careerquest.NewRemote(a.client, sess), sess.SessionID,
		careerquest.WithDebounce(debounce),
		careerquest.WithSyncLogger(a.log),
		careerquest.WithNotify(func(msg string) { a.printf("! %s\n", msg) }))
	q := careerquest.NewQuest(syncer, catalog, a.client, sess, a.log)
	if _, err := q.Load(ctx); err != nil {
		a.log.Warn("server progress unavailable, working offline", zap.Error(err))
	}
	return q, nil
}

func newQuestCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quest",
		Short: "Career Quest missions and progress",
	}
	var personalize bool
	cmd.PersistentFlags().BoolVar(&personalize, "personalize", false, "add tasks from the Service 1 results")

	login := &cobra.Command{
		Use:   "login <email> <code>",
		Short: "Open a Career Quest session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := careerquest.Login(cmd.Context(), a.client, a.store, args[0], args[1])
			if err != nil {
				return err
			}
			a.printf("Logged in as %s until %s\n", sess.Email, sess.ExpiresAt.Local().Format(time.DateTime))
			return nil
		},
	}

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return careerquest.Logout(cmd.Context(), a.store)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show level, rewards and the current mission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			q, err := a.openQuest(cmd.Context(), personalize)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, q.Close(cmd.Context())) }()
			p := q.Progress()
			return a.emit(p, func() {
				have, need := careerquest.LevelProgress(p)
				a.printf("Level %d  XP %d/%d  coins %d  gems %d  missions %d\n",
					p.Level, have, need, p.Coins, p.Gems, len(p.CompletedTaskIDs))
				if t, phase, ok := q.CurrentTask(); ok {
					a.printf("Current mission [%s] %s: %s\n", q.Catalog().Phases[phase].ID, t.ID, t.Title)
				} else {
					a.printf("All missions completed\n")
				}
			})
		},
	}

	missions := &cobra.Command{
		Use:   "missions",
		Short: "List phases and missions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			q, err := a.openQuest(cmd.Context(), personalize)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, q.Close(cmd.Context())) }()
			done := q.Progress().CompletedSet()
			return a.emit(q.Catalog(), func() {
				for i, ph := range q.Catalog().Phases {
					lock := ""
					if !q.PhaseUnlocked(i) {
						lock = " (locked)"
					}
					a.printf("%s %s%s\n", ph.ID, ph.Title, lock)
					for _, t := range ph.Tasks {
						mark := " "
						if done[t.ID] {
							mark = "x"
						}
						prio := ""
						if t.Priority {
							prio = " *"
						}
						a.printf("  [%s] %-16s %s (%d xp)%s\n", mark, t.ID, t.Title, t.Reward.XP, prio)
					}
				}
			})
		},
	}

	var screenshot string
	complete := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a mission, optionally with a proof screenshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			q, err := a.openQuest(cmd.Context(), personalize)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, q.Close(cmd.Context())) }()

			var shot *careerquest.Screenshot
			if screenshot != "" {
				f, err := os.Open(screenshot)
				if err != nil {
					return err
				}
				defer f.Close()
				shot = &careerquest.Screenshot{FileName: filepath.Base(screenshot), Content: f}
			}
			res, err := q.SubmitProof(cmd.Context(), args[0], shot)
			if err != nil {
				return err
			}
			return a.emit(res, func() { a.printCompletion(res) })
		},
	}
	complete.Flags().StringVar(&screenshot, "screenshot", "", "proof image to score")

	coach := &cobra.Command{
		Use:   "coach <question>",
		Short: "Ask the coach about the current mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			q, err := a.openQuest(cmd.Context(), personalize)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, q.Close(cmd.Context())) }()
			answer, err := q.Coach(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", answer)
			return nil
		},
	}

	cmd.AddCommand(login, logout, status, missions, complete, coach)
	return cmd
}

func (a *app) printCompletion(res careerquest.CompleteResult) {
	if res.AlreadyCompleted {
		a.printf("%s was already completed\n", res.Task.ID)
		return
	}
	a.printf("Completed %s (+%d xp, +%d coins)\n", res.Task.ID, res.Task.Reward.XP, res.Task.Reward.Coins)
	if res.OutOfOrder {
		a.printf("Note: this was not the current mission\n")
	}
	if res.LevelsGained > 0 {
		a.printf("Level up! Now level %d\n", res.Progress.Level)
	}
	if proof, ok := res.Progress.Proofs[res.Task.ID]; ok && proof.AIScore != nil {
		a.printf("Proof score %d/100: %s\n", *proof.AIScore, proof.AILabel)
		for _, tip := range proof.AITips {
			a.printf("  - %s\n", tip)
		}
	}
	if res.ScoreErr != nil {
		a.printf("Proof scoring failed: %v\n", res.ScoreErr)
	}
}

