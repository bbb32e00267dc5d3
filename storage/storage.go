// Package storage opens the repositories of the configured storage driver.
package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
	"github.com/trezcool/formify/storage/database"
	"github.com/trezcool/formify/storage/database/inmem"
	"github.com/trezcool/formify/storage/database/mongo"
	"github.com/trezcool/formify/storage/database/sqlx"
)

// Store is a unit of work that can also be pinged.
type Store interface {
	core.Transactor
	core.Pinger
}

// Stores holds the repositories of one storage driver.
type Stores struct {
	Tx          Store
	Users       user.Repository
	Groups      group.Repository
	Submissions group.SubmissionRepository
	Marks       group.MarkRepository
	Logs        group.OverrideLogRepository

	// SQL is only set for the postgres driver.
	SQL *sqlx.DB

	close func() error
}

func (st *Stores) Close() error {
	if st.close == nil {
		return nil
	}
	return st.close()
}

// Options tune Open.
type Options struct {
	// Migrate runs the pending postgres migrations after connecting.
	Migrate bool
}

// Open connects to the storage driver named by the config.
func Open(ctx context.Context, conf *core.Config, opts Options) (*Stores, error) {
	switch conf.Storage.Driver {
	case core.StoragePostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		if opts.Migrate {
			if err = database.Migrate(db.DB, "up"); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Stores{
			Tx:          sqlxrepos.NewTransactor(db),
			Users:       sqlxrepos.NewUserRepository(db),
			Groups:      sqlxrepos.NewGroupRepository(db),
			Submissions: sqlxrepos.NewSubmissionRepository(db),
			Marks:       sqlxrepos.NewMarkRepository(db),
			Logs:        sqlxrepos.NewOverrideLogRepository(db),
			SQL:         db,
			close:       db.Close,
		}, nil

	case core.StorageMongo:
		client, db, err := mongorepos.Open(ctx, conf.Mongo)
		if err != nil {
			return nil, err
		}
		if err = mongorepos.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Stores{
			Tx:          mongorepos.NewTransactor(client, db),
			Users:       mongorepos.NewUserRepository(db),
			Groups:      mongorepos.NewGroupRepository(db),
			Submissions: mongorepos.NewSubmissionRepository(db),
			Marks:       mongorepos.NewMarkRepository(db),
			Logs:        mongorepos.NewOverrideLogRepository(db),
			close:       func() error { return client.Disconnect(context.Background()) },
		}, nil

	case core.StorageMemory:
		return OpenMemory(), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", conf.Storage.Driver)
}

// OpenMemory returns stores backed by a fresh in-memory database.
func OpenMemory() *Stores {
	db := inmemdb.Open()
	return &Stores{
		Tx:          db,
		Users:       inmemdb.NewUserRepository(db),
		Groups:      inmemdb.NewGroupRepository(db),
		Submissions: inmemdb.NewSubmissionRepository(db),
		Marks:       inmemdb.NewMarkRepository(db),
		Logs:        inmemdb.NewOverrideLogRepository(db),
	}
}
