package api

import "github.com/maconsulting/parcours/internal/services"

// Store is everything the backend persists. The memory store and the sqlite
// store both implement it.
type Store interface {
	services.DiagnosticStore
	services.PhaseStore
	services.QuestStore
	services.DealStore

	ListRuns() ([]*services.DiagnosticRun, error)

	ListAudit() []services.AuditEntry
	Close() error
}

var _ Store = (*MemoryStore)(nil)
