package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/api"
	"github.com/maconsulting/parcours/internal/logging"
	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

var _ api.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB, log *zap.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, log: logging.OrNop(log)}, nil
}

// Open opens (creating when needed) the sqlite file at path and migrates it.
func Open(path, migrationsDir string, log *zap.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SwapQuestProgress serialized.
	sqlDB.SetMaxOpenConns(1)
	if err := RunMigrations(sqlDB, migrationsDir, log); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	store, err := NewSQLiteStore(sqlDB, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		s.log.Warn("sqlite store: "+prefix, zap.Error(err))
	}
}

func contextBg() context.Context { return context.Background() }

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Diagnostic runs

const runColumns = `id, email, ip, participant, status, responses, scores, metadata, total, orientation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*services.DiagnosticRun, error) {
	var (
		r                                      services.DiagnosticRun
		status, participant, responses, scores string
		metadata, createdAt, updatedAt         string
	)
	err := row.Scan(&r.ID, &r.Email, &r.IP, &participant, &status, &responses, &scores, &metadata,
		&r.Total, &r.Orientation, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = models.SessionStatus(status)
	r.CreatedAt, r.UpdatedAt = parseTime(createdAt), parseTime(updatedAt)
	cols := []struct {
		raw string
		dst any
	}{{participant, &r.Participant}, {responses, &r.Responses}, {scores, &r.Scores}, {metadata, &r.Metadata}}
	for _, c := range cols {
		if err := json.Unmarshal([]byte(c.raw), c.dst); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func runArgs(r *services.DiagnosticRun) ([]any, error) {
	participant, err := encodeJSON(r.Participant)
	if err != nil {
		return nil, err
	}
	responses, err := encodeJSON(r.Responses)
	if err != nil {
		return nil, err
	}
	scores, err := encodeJSON(r.Scores)
	if err != nil {
		return nil, err
	}
	metadata, err := encodeJSON(r.Metadata)
	if err != nil {
		return nil, err
	}
	return []any{r.ID, r.Email, r.IP, participant, string(r.Status), responses, scores, metadata,
		r.Total, r.Orientation, formatTime(r.CreatedAt), formatTime(r.UpdatedAt)}, nil
}

func (s *SQLiteStore) AddRun(r *services.DiagnosticRun) error {
	args, err := runArgs(r)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.db.ExecContext(contextBg(), `INSERT INTO diagnostic_runs(`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

func (s *SQLiteStore) GetRun(id string) (*services.DiagnosticRun, error) {
	r, err := scanRun(s.db.QueryRowContext(contextBg(), `SELECT `+runColumns+` FROM diagnostic_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) UpdateRun(r *services.DiagnosticRun) error {
	args, err := runArgs(r)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	res, err := s.db.ExecContext(contextBg(), `UPDATE diagnostic_runs SET email = ?, ip = ?, participant = ?, status = ?,
		responses = ?, scores = ?, metadata = ?, total = ?, orientation = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args[1:], r.ID)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("diagnostic not found")
	}
	return nil
}

// latestRun relies on rowid growing with insertion order.
func (s *SQLiteStore) latestRun(column, value string) (*services.DiagnosticRun, error) {
	r, err := scanRun(s.db.QueryRowContext(contextBg(),
		`SELECT `+runColumns+` FROM diagnostic_runs WHERE `+column+` = ? ORDER BY rowid DESC LIMIT 1`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) LatestRunByEmail(email string) (*services.DiagnosticRun, error) {
	return s.latestRun("email", email)
}

func (s *SQLiteStore) LatestRunByIP(ip string) (*services.DiagnosticRun, error) {
	if ip == "" {
		return nil, nil
	}
	return s.latestRun("ip", ip)
}

func (s *SQLiteStore) ListRuns() ([]*services.DiagnosticRun, error) {
	rows, err := s.db.QueryContext(contextBg(), `SELECT `+runColumns+` FROM diagnostic_runs ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.DiagnosticRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAudit(e services.AuditEntry) {
	_, err := s.db.ExecContext(contextBg(), `INSERT INTO audit_log(time, actor, action, target, note) VALUES (?,?,?,?,?)`,
		formatTime(e.Time), e.Actor, e.Action, e.Target, e.Note)
	s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.QueryContext(contextBg(), `SELECT time, actor, action, target, note FROM audit_log ORDER BY id`)
	if err != nil {
		s.logErr("list audit", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var (
			e  services.AuditEntry
			ts string
		)
		if err := rows.Scan(&ts, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.logErr("scan audit", err)
			return out
		}
		e.Time = parseTime(ts)
		out = append(out, e)
	}
	s.logErr("iterate audit", rows.Err())
	return out
}

// Service 1 phase documents

func (s *SQLiteStore) GetPhaseDoc(email, phase string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(contextBg(), `SELECT doc FROM service1_phases WHERE email = ? AND phase = ?`, email, phase).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (s *SQLiteStore) PutPhaseDoc(email, phase string, doc []byte) error {
	_, err := s.db.ExecContext(contextBg(), `INSERT INTO service1_phases(email, phase, doc, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(email, phase) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		email, phase, string(doc), formatTime(time.Now()))
	return err
}

// Career Quest

func (s *SQLiteStore) FindQuestAccount(email string) (*services.QuestAccount, error) {
	var (
		a  services.QuestAccount
		ts string
	)
	err := s.db.QueryRowContext(contextBg(), `SELECT email, code_hash, created_at FROM quest_accounts WHERE email = ?`, email).
		Scan(&a.Email, &a.CodeHash, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(ts)
	return &a, nil
}

func (s *SQLiteStore) UpsertQuestAccount(a *services.QuestAccount) error {
	_, err := s.db.ExecContext(contextBg(), `INSERT INTO quest_accounts(email, code_hash, created_at) VALUES (?,?,?)
		ON CONFLICT(email) DO UPDATE SET code_hash = excluded.code_hash`,
		a.Email, a.CodeHash, formatTime(a.CreatedAt))
	return err
}

func (s *SQLiteStore) AddQuestSession(r *services.QuestSessionRecord) error {
	_, err := s.db.ExecContext(contextBg(), `INSERT INTO quest_sessions(id, email, created_at, expires_at) VALUES (?,?,?,?)`,
		r.ID, r.Email, formatTime(r.CreatedAt), formatTime(r.ExpiresAt))
	return err
}

func (s *SQLiteStore) GetQuestSession(id string) (*services.QuestSessionRecord, error) {
	var (
		r                services.QuestSessionRecord
		created, expires string
	)
	err := s.db.QueryRowContext(contextBg(), `SELECT id, email, created_at, expires_at FROM quest_sessions WHERE id = ?`, id).
		Scan(&r.ID, &r.Email, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt, r.ExpiresAt = parseTime(created), parseTime(expires)
	return &r, nil
}

func (s *SQLiteStore) GetQuestProgress(email string) (*services.QuestProgressRecord, error) {
	var (
		r        services.QuestProgressRecord
		progress string
		ts       string
	)
	err := s.db.QueryRowContext(contextBg(), `SELECT email, progress, revision, updated_at FROM quest_progress WHERE email = ?`, email).
		Scan(&r.Email, &progress, &r.Revision, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Progress, r.UpdatedAt = json.RawMessage(progress), parseTime(ts)
	return &r, nil
}

// SwapQuestProgress compares and stores inside one transaction.
func (s *SQLiteStore) SwapQuestProgress(rec *services.QuestProgressRecord, expected int) (bool, error) {
	tx, err := s.db.BeginTx(contextBg(), nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	current := 0
	err = tx.QueryRow(`SELECT revision FROM quest_progress WHERE email = ?`, rec.Email).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if current != expected {
		return false, nil
	}
	_, err = tx.Exec(`INSERT INTO quest_progress(email, progress, revision, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(email) DO UPDATE SET progress = excluded.progress, revision = excluded.revision, updated_at = excluded.updated_at`,
		rec.Email, string(rec.Progress), rec.Revision, formatTime(rec.UpdatedAt))
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Commercial deals

const dealColumns = `id, partner_email, company, contact, amount, status, commission_rate, notes, created_at, updated_at`

func scanDeal(row rowScanner) (*models.Deal, error) {
	var (
		d                        models.Deal
		status, created, updated string
	)
	err := row.Scan(&d.ID, &d.PartnerEmail, &d.Company, &d.Contact, &d.Amount, &status, &d.CommissionRate,
		&d.Notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.Status = models.DealStatus(status)
	d.CreatedAt, d.UpdatedAt = parseTime(created), parseTime(updated)
	return &d, nil
}

func (s *SQLiteStore) InsertDeal(d *models.Deal) error {
	_, err := s.db.ExecContext(contextBg(), `INSERT INTO commercial_deals(`+dealColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.PartnerEmail, d.Company, d.Contact, d.Amount, string(d.Status), d.CommissionRate, d.Notes,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt))
	return err
}

func (s *SQLiteStore) UpdateDeal(d *models.Deal) error {
	res, err := s.db.ExecContext(contextBg(), `UPDATE commercial_deals SET company = ?, contact = ?, amount = ?, status = ?,
		commission_rate = ?, notes = ?, updated_at = ? WHERE id = ?`,
		d.Company, d.Contact, d.Amount, string(d.Status), d.CommissionRate, d.Notes, formatTime(d.UpdatedAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("deal not found")
	}
	return nil
}

func (s *SQLiteStore) GetDeal(id string) (*models.Deal, error) {
	d, err := scanDeal(s.db.QueryRowContext(contextBg(), `SELECT `+dealColumns+` FROM commercial_deals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) DeleteDeal(id string) (bool, error) {
	res, err := s.db.ExecContext(contextBg(), `DELETE FROM commercial_deals WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ListDeals(q services.DealQuery) ([]models.Deal, int, error) {
	where := `partner_email = ?`
	args := []any{q.Partner}
	if q.Status != "" {
		where += ` AND status = ?`
		args = append(args, string(q.Status))
	}
	if q.Search != "" {
		where += ` AND instr(lower(company || ' ' || contact), ?) > 0`
		args = append(args, q.Search)
	}

	var total int
	if err := s.db.QueryRowContext(contextBg(), `SELECT COUNT(1) FROM commercial_deals WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(contextBg(), `SELECT `+dealColumns+` FROM commercial_deals WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}
