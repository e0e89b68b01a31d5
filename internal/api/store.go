package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/maconsulting/parcours/internal/models"
	"github.com/maconsulting/parcours/internal/services"
)

// MemoryStore keeps everything in process. Records are copied on the way in
// and out.
type MemoryStore struct {
	mu       sync.RWMutex
	runs     []*services.DiagnosticRun
	phases   map[string][]byte
	accounts map[string]*services.QuestAccount
	sessions map[string]*services.QuestSessionRecord
	progress map[string]*services.QuestProgressRecord
	deals    map[string]*models.Deal
	audit    []services.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		phases:   map[string][]byte{},
		accounts: map[string]*services.QuestAccount{},
		sessions: map[string]*services.QuestSessionRecord{},
		progress: map[string]*services.QuestProgressRecord{},
		deals:    map[string]*models.Deal{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func cloneRun(r *services.DiagnosticRun) *services.DiagnosticRun {
	c := *r
	c.Responses = append([]models.DiagnosticResponse(nil), r.Responses...)
	c.Scores = make(map[string]int, len(r.Scores))
	for k, v := range r.Scores {
		c.Scores[k] = v
	}
	c.Metadata = make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

func (s *MemoryStore) AddRun(r *services.DiagnosticRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, cloneRun(r))
	return nil
}

func (s *MemoryStore) GetRun(id string) (*services.DiagnosticRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs {
		if r.ID == id {
			return cloneRun(r), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateRun(r *services.DiagnosticRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, old := range s.runs {
		if old.ID == r.ID {
			s.runs[i] = cloneRun(r)
			return nil
		}
	}
	return services.NewNotFoundError("diagnostic not found")
}

func (s *MemoryStore) latestRun(match func(*services.DiagnosticRun) bool) *services.DiagnosticRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if match(s.runs[i]) {
			return cloneRun(s.runs[i])
		}
	}
	return nil
}

func (s *MemoryStore) LatestRunByEmail(email string) (*services.DiagnosticRun, error) {
	return s.latestRun(func(r *services.DiagnosticRun) bool { return r.Email == email }), nil
}

func (s *MemoryStore) LatestRunByIP(ip string) (*services.DiagnosticRun, error) {
	return s.latestRun(func(r *services.DiagnosticRun) bool { return ip != "" && r.IP == ip }), nil
}

func (s *MemoryStore) ListRuns() ([]*services.DiagnosticRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*services.DiagnosticRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, cloneRun(r))
	}
	return out, nil
}

func (s *MemoryStore) AddAudit(e services.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
}

func (s *MemoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]services.AuditEntry(nil), s.audit...)
}

func phaseKey(email, phase string) string { return email + "\x00" + phase }

func (s *MemoryStore) GetPhaseDoc(email, phase string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.phases[phaseKey(email, phase)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

func (s *MemoryStore) PutPhaseDoc(email, phase string, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[phaseKey(email, phase)] = append([]byte(nil), doc...)
	return nil
}

func (s *MemoryStore) FindQuestAccount(email string) (*services.QuestAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[email]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) UpsertQuestAccount(a *services.QuestAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *a
	s.accounts[a.Email] = &c
	return nil
}

func (s *MemoryStore) AddQuestSession(r *services.QuestSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.sessions[r.ID] = &c
	return nil
}

func (s *MemoryStore) GetQuestSession(id string) (*services.QuestSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.sessions[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) GetQuestProgress(email string) (*services.QuestProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.progress[email]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) SwapQuestProgress(rec *services.QuestProgressRecord, expected int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := 0
	if r, ok := s.progress[rec.Email]; ok {
		current = r.Revision
	}
	if current != expected {
		return false, nil
	}
	c := *rec
	s.progress[rec.Email] = &c
	return true, nil
}

func (s *MemoryStore) InsertDeal(d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.deals[d.ID] = &c
	return nil
}

func (s *MemoryStore) UpdateDeal(d *models.Deal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deals[d.ID]; !ok {
		return services.NewNotFoundError("deal not found")
	}
	c := *d
	s.deals[d.ID] = &c
	return nil
}

func (s *MemoryStore) GetDeal(id string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.deals[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeleteDeal(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deals[id]
	delete(s.deals, id)
	return ok, nil
}

// ListDeals orders by creation time, newest first.
func (s *MemoryStore) ListDeals(q services.DealQuery) ([]models.Deal, int, error) {
	s.mu.RLock()
	var all []models.Deal
	for _, d := range s.deals {
		if d.PartnerEmail != q.Partner || (q.Status != "" && d.Status != q.Status) {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(d.Company+" "+d.Contact), q.Search) {
			continue
		}
		all = append(all, *d)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := len(all)
	if q.Offset >= total {
		return nil, total, nil
	}
	return all[q.Offset:min(q.Offset+q.Limit, total)], total, nil
}
