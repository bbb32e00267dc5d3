package mongorepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/formify/core/group"
)

type (
	snapshotDoc struct {
		AssignedSupervisor string `bson:"assigned_supervisor,omitempty"`
		Status             string `bson:"status"`
		FlaggedForAdmin    bool   `bson:"flagged_for_admin"`
	}

	overrideLogDoc struct {
		ID        string      `bson:"_id"`
		AdminID   string      `bson:"admin_id"`
		GroupID   string      `bson:"group_id"`
		Action    string      `bson:"action"`
		From      snapshotDoc `bson:"from"`
		To        snapshotDoc `bson:"to"`
		Reason    string      `bson:"reason,omitempty"`
		CreatedAt time.Time   `bson:"created_at"`
	}
)

func newSnapshotDoc(s group.Snapshot) snapshotDoc {
	return snapshotDoc{AssignedSupervisor: s.AssignedSupervisor, Status: string(s.Status), FlaggedForAdmin: s.FlaggedForAdmin}
}

func (d snapshotDoc) snapshot() group.Snapshot {
	return group.Snapshot{AssignedSupervisor: d.AssignedSupervisor, Status: group.Status(d.Status), FlaggedForAdmin: d.FlaggedForAdmin}
}

type overrideLogRepository struct {
	coll *mongo.Collection
}

var _ group.OverrideLogRepository = (*overrideLogRepository)(nil) // interface compliance check

func NewOverrideLogRepository(db *mongo.Database) *overrideLogRepository {
	return &overrideLogRepository{coll: db.Collection(overrideLogsCollection)}
}

func (repo overrideLogRepository) CreateOverrideLog(ctx context.Context, log group.OverrideLog) (group.OverrideLog, error) {
	doc := overrideLogDoc{
		ID:        log.ID,
		AdminID:   log.AdminID,
		GroupID:   log.GroupID,
		Action:    log.Action,
		From:      newSnapshotDoc(log.From),
		To:        newSnapshotDoc(log.To),
		Reason:    log.Reason,
		CreatedAt: log.CreatedAt.UTC(),
	}
	if _, err := repo.coll.InsertOne(ctx, doc); err != nil {
		return group.OverrideLog{}, errors.Wrap(err, "inserting override log")
	}
	return log, nil
}

func (repo overrideLogRepository) ListOverrideLogs(ctx context.Context, limit int) ([]group.OverrideLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cur, err := repo.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "finding override logs")
	}
	docs, err := decodeAll[overrideLogDoc](ctx, cur)
	if err != nil {
		return nil, err
	}
	logs := make([]group.OverrideLog, 0, len(docs))
	for _, d := range docs {
		logs = append(logs, group.OverrideLog{
			ID:        d.ID,
			AdminID:   d.AdminID,
			GroupID:   d.GroupID,
			Action:    d.Action,
			From:      d.From.snapshot(),
			To:        d.To.snapshot(),
			Reason:    d.Reason,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return logs, nil
}
