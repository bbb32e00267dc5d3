package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core/group"
)

const overrideLogColumns = `id, admin_id, group_id, action, from_state, to_state, reason, created_at`

type overrideLogRecord struct {
	ID        string         `db:"id"`
	AdminID   string         `db:"admin_id"`
	GroupID   string         `db:"group_id"`
	Action    string         `db:"action"`
	FromState types.JSONText `db:"from_state"`
	ToState   types.JSONText `db:"to_state"`
	Reason    string         `db:"reason"`
	CreatedAt time.Time      `db:"created_at"`
}

type overrideLogRepository struct {
	db *sqlx.DB
}

var _ group.OverrideLogRepository = (*overrideLogRepository)(nil) // interface compliance check

func NewOverrideLogRepository(db *sqlx.DB) *overrideLogRepository {
	return &overrideLogRepository{db: db}
}

func (repo overrideLogRepository) CreateOverrideLog(ctx context.Context, log group.OverrideLog) (group.OverrideLog, error) {
	const q = `INSERT INTO override_logs (` + overrideLogColumns + `)
		VALUES (:id, :admin_id, :group_id, :action, :from_state, :to_state, :reason, :created_at)`

	from, err := json.Marshal(log.From)
	if err != nil {
		return group.OverrideLog{}, errors.Wrap(err, "marshalling from state")
	}
	to, err := json.Marshal(log.To)
	if err != nil {
		return group.OverrideLog{}, errors.Wrap(err, "marshalling to state")
	}
	rec := overrideLogRecord{
		ID:        log.ID,
		AdminID:   log.AdminID,
		GroupID:   log.GroupID,
		Action:    log.Action,
		FromState: types.JSONText(from),
		ToState:   types.JSONText(to),
		Reason:    log.Reason,
		CreatedAt: log.CreatedAt.UTC(),
	}
	if _, err = sqlx.NamedExecContext(ctx, getExec(ctx, repo.db), q, rec); err != nil {
		return group.OverrideLog{}, errors.Wrap(err, "inserting override log")
	}
	return log, nil
}

func (repo overrideLogRepository) ListOverrideLogs(ctx context.Context, limit int) ([]group.OverrideLog, error) {
	var recs []overrideLogRecord
	q := `SELECT ` + overrideLogColumns + ` FROM override_logs ORDER BY created_at DESC LIMIT $1`
	if err := sqlx.SelectContext(ctx, getExec(ctx, repo.db), &recs, q, limit); err != nil {
		return nil, errors.Wrap(err, "selecting override logs")
	}

	logs := make([]group.OverrideLog, 0, len(recs))
	for _, rec := range recs {
		log := group.OverrideLog{
			ID:        rec.ID,
			AdminID:   rec.AdminID,
			GroupID:   rec.GroupID,
			Action:    rec.Action,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt.UTC(),
		}
		if err := rec.FromState.Unmarshal(&log.From); err != nil {
			return nil, errors.Wrap(err, "unmarshalling from state")
		}
		if err := rec.ToState.Unmarshal(&log.To); err != nil {
			return nil, errors.Wrap(err, "unmarshalling to state")
		}
		logs = append(logs, log)
	}
	return logs, nil
}
