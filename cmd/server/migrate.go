package main

import (
	"strings"

	"go.uber.org/zap"

	"github.com/maconsulting/parcours/internal/api"
	dbstore "github.com/maconsulting/parcours/internal/db"
	"github.com/maconsulting/parcours/internal/services"
)

// openStore returns the sqlite store at dbPath, migrated, or the memory
// store when dbPath is empty.
func openStore(dbPath, migrationsDir string, log *zap.Logger) (api.Store, error) {
	if dbPath == "" {
		log.Warn("PARCOURS_DB_PATH not set, data is kept in memory")
		return api.NewMemoryStore(), nil
	}
	store, err := dbstore.Open(dbPath, migrationsDir, log)
	if err != nil {
		return nil, err
	}
	log.Info("sqlite store ready", zap.String("path", dbPath))
	return store, nil
}

// seedQuestCodes grants Career Quest access from "email:code,email:code".
func seedQuestCodes(quest *services.QuestService, codes string, log *zap.Logger) error {
	for _, pair := range strings.Split(codes, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, code, ok := strings.Cut(pair, ":")
		if !ok {
			log.Warn("ignoring malformed quest code entry")
			continue
		}
		if err := quest.GrantAccess(email, code); err != nil {
			return err
		}
		log.Info("quest access granted", zap.String("email", strings.TrimSpace(email)))
	}
	return nil
}
