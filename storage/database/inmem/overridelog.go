package inmemdb

import (
	"context"

	"github.com/trezcool/formify/core/group"
)

type overrideLogRepository struct {
	db *overrideLogTable
}

var _ group.OverrideLogRepository = (*overrideLogRepository)(nil) // interface compliance check

func NewOverrideLogRepository(db *DB) *overrideLogRepository {
	return &overrideLogRepository{db: db.overrideLog}
}

func (repo *overrideLogRepository) CreateOverrideLog(_ context.Context, log group.OverrideLog) (group.OverrideLog, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table = append(repo.db.table, log)
	return log, nil
}

func (repo *overrideLogRepository) ListOverrideLogs(_ context.Context, limit int) ([]group.OverrideLog, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	logs := make([]group.OverrideLog, 0, len(repo.db.table))
	for i := len(repo.db.table) - 1; i >= 0; i-- {
		if limit > 0 && len(logs) == limit {
			break
		}
		logs = append(logs, repo.db.table[i])
	}
	return logs, nil
}
