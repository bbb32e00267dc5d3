package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/formify/core"
)

const (
	uniqueViolation = "23505"
	advisoryLockSQL = "SELECT pg_advisory_xact_lock(hashtext($1))"
)

type txKey struct{}

// Transactor runs units of work in postgres transactions guarded by an advisory lock on the key.
type Transactor struct {
	db *sqlx.DB
}

var (
	// interface compliance checks
	_ core.Transactor = (*Transactor)(nil)
	_ core.Pinger     = (*Transactor)(nil)
)

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

// RunInTx joins the transaction already carried by ctx, if any.
func (t *Transactor) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(err, "committing transaction")
		}
	}()

	if _, err = tx.ExecContext(ctx, advisoryLockSQL, key); err != nil {
		return errors.Wrapf(err, "locking %q", key)
	}
	return fn(context.WithValue(ctx, txKey{}, tx))
}

// getExec returns the transaction carried by ctx, or the pool.
func getExec(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
	}
	return false
}

// isUUID reports whether id can be compared with a uuid column.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func uuids(ids []string) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			res = append(res, id)
		}
	}
	return res
}

// where builds a conjunction of conditions; "?" in a condition is replaced by the next positional arg.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
