package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/maconsulting/parcours/internal/models"
)

type QuestStore interface {
	FindQuestAccount(email string) (*QuestAccount, error)
	UpsertQuestAccount(a *QuestAccount) error
	AddQuestSession(s *QuestSessionRecord) error
	GetQuestSession(id string) (*QuestSessionRecord, error)
	GetQuestProgress(email string) (*QuestProgressRecord, error)
	// SwapQuestProgress stores rec when the stored revision equals expected
	// (0 with no stored record). It reports false otherwise.
	SwapQuestProgress(rec *QuestProgressRecord, expected int) (bool, error)
}

type QuestTokenSigner func(sessionID, email string, ttl time.Duration) (string, error)

// ProgressConflictError is returned by PutProgress on a stale revision.
type ProgressConflictError struct {
	Snapshot models.QuestSnapshot
}

func (e *ProgressConflictError) Error() string {
	return fmt.Sprintf("progress conflict: revision %d", e.Snapshot.Revision)
}

type QuestService struct {
	store     QuestStore
	now       func() time.Time
	idGen     func() string
	signToken QuestTokenSigner
	tokenTTL  time.Duration
}

func NewQuestService(store QuestStore, signer QuestTokenSigner) *QuestService {
	return &QuestService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return "cq_" + shortID(16) },
		signToken: signer,
		tokenTTL:  7 * 24 * time.Hour,
	}
}

// GrantAccess sets the access code for email.
func (s *QuestService) GrantAccess(email, code string) error {
	e, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return NewInvalidError("code required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(code)), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpsertQuestAccount(&QuestAccount{Email: e, CodeHash: hash, CreatedAt: s.now()})
}

func (s *QuestService) Login(email, code string) (*models.QuestSession, error) {
	e, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, NewInvalidError("code required")
	}
	acc, err := s.store.FindQuestAccount(e)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(acc.CodeHash, []byte(code)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	now := s.now()
	rec := &QuestSessionRecord{ID: s.idGen(), Email: e, CreatedAt: now, ExpiresAt: now.Add(s.tokenTTL)}
	if err := s.store.AddQuestSession(rec); err != nil {
		return nil, err
	}
	token, err := s.signToken(rec.ID, e, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &models.QuestSession{SessionID: rec.ID, Email: e, Token: token, ExpiresAt: rec.ExpiresAt}, nil
}

// Session resolves a session id whose token was already verified. It returns
// the owning email.
func (s *QuestService) Session(id, tokenEmail string) (string, error) {
	rec, err := s.store.GetQuestSession(id)
	if err != nil {
		return "", err
	}
	if rec == nil || !s.now().Before(rec.ExpiresAt) || (tokenEmail != "" && rec.Email != tokenEmail) {
		return "", NewUnauthorizedError("session invalid")
	}
	return rec.Email, nil
}

func (s *QuestService) GetProgress(email string) (models.QuestSnapshot, error) {
	rec, err := s.store.GetQuestProgress(email)
	if err != nil || rec == nil {
		return models.QuestSnapshot{}, err
	}
	return rec.Snapshot(), nil
}

// PutProgress stores progress when revision matches the stored one and
// returns the new snapshot at revision+1. The snapshot's updatedAt is the
// progress document's own updatedAt when it carries one.
func (s *QuestService) PutProgress(email string, req models.QuestPutRequest) (models.QuestSnapshot, error) {
	var doc struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if len(req.Progress) == 0 || json.Unmarshal(req.Progress, &doc) != nil {
		return models.QuestSnapshot{}, NewInvalidError("progress must be a JSON object")
	}
	if req.Revision < 0 {
		return models.QuestSnapshot{}, NewInvalidError("revision must be >= 0")
	}
	updated := doc.UpdatedAt.UTC()
	if updated.IsZero() {
		updated = s.now()
	}
	rec := &QuestProgressRecord{Email: email, Progress: req.Progress, Revision: req.Revision + 1, UpdatedAt: updated}
	ok, err := s.store.SwapQuestProgress(rec, req.Revision)
	if err != nil {
		return models.QuestSnapshot{}, err
	}
	if !ok {
		current, err := s.GetProgress(email)
		if err != nil {
			return models.QuestSnapshot{}, err
		}
		return models.QuestSnapshot{}, &ProgressConflictError{Snapshot: current}
	}
	return rec.Snapshot(), nil
}

// ProofInput is a screenshot submitted as task proof.
type ProofInput struct {
	TaskID    string
	TaskTitle string
	Objective string
	FileName  string
	Size      int
}

// ScoreProof grades a proof screenshot. The grade only depends on the
// submission metadata.
func (s *QuestService) ScoreProof(in ProofInput) (models.ProofScore, error) {
	if strings.TrimSpace(in.TaskID) == "" {
		return models.ProofScore{}, NewInvalidError("taskId required")
	}
	if in.Size == 0 {
		return models.ProofScore{}, NewInvalidError("screenshot required")
	}
	score := 55
	if in.Size >= 20*1024 {
		score += 20
	}
	if strings.TrimSpace(in.Objective) != "" {
		score += 10
	}
	ext := strings.ToLower(in.FileName[strings.LastIndex(in.FileName, ".")+1:])
	if ext == "png" || ext == "jpg" || ext == "jpeg" || ext == "webp" {
		score += 10
	}
	label := "À compléter"
	switch {
	case score >= 85:
		label = "Excellent"
	case score >= 70:
		label = "Validé"
	}
	var tips []string
	if in.Size < 20*1024 {
		tips = append(tips, "Ajoute une capture plus lisible")
	}
	if strings.TrimSpace(in.Objective) != "" {
		tips = append(tips, "Montre clairement : "+in.Objective)
	}
	meta, _ := json.Marshal(map[string]any{"engine": "rules-v1", "bytes": in.Size})
	return models.ProofScore{Score: min(score, 100), Label: label, Tips: tips, Meta: meta}, nil
}

// Coach answers a player's question.
func (s *QuestService) Coach(req models.CoachRequest) (models.CoachReply, error) {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return models.CoachReply{}, NewInvalidError("question required")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Niveau %d : ", max(req.Level, 1))
	if req.TaskID != "" {
		fmt.Fprintf(&b, "concentre-toi sur la mission %s. ", req.TaskID)
	}
	switch {
	case strings.Contains(strings.ToLower(q), "preuve"):
		b.WriteString("Une bonne preuve montre le résultat et la date.")
	case strings.HasSuffix(q, "?"):
		b.WriteString("Découpe la mission en une première action de 15 minutes.")
	default:
		b.WriteString("Note ce que tu as appris et passe à l'étape suivante.")
	}
	return models.CoachReply{Answer: b.String()}, nil
}
