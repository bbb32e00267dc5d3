package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/formify/core"
	"github.com/trezcool/formify/core/group"
	"github.com/trezcool/formify/core/user"
)

type (
	// DB is an in-memory store; rows are copied in and out so callers never share memory with it.
	DB struct {
		user        *userTable
		group       *groupTable
		submission  *submissionTable
		studentMark *studentMarkTable
		groupMark   *groupMarkTable
		overrideLog *overrideLogTable

		locksMu sync.Mutex
		locks   map[string]*sync.Mutex
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	groupTable struct {
		mutex sync.RWMutex
		table map[string]*group.Group
	}

	submissionTable struct {
		mutex sync.RWMutex
		table map[string]*group.Submission
	}

	studentMarkTable struct {
		mutex sync.RWMutex
		table map[studentMarkKey]*group.StudentMark
	}

	groupMarkTable struct {
		mutex sync.RWMutex
		table map[groupMarkKey]*group.GroupMark
	}

	overrideLogTable struct {
		mutex sync.RWMutex
		table []group.OverrideLog
	}

	studentMarkKey struct{ groupID, studentID, teacherID string }
	groupMarkKey   struct{ groupID, teacherID string }
)

var (
	// interface compliance checks
	_ core.Transactor = (*DB)(nil)
	_ core.Pinger     = (*DB)(nil)
)

func Open() *DB {
	return &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		group:       &groupTable{table: make(map[string]*group.Group)},
		submission:  &submissionTable{table: make(map[string]*group.Submission)},
		studentMark: &studentMarkTable{table: make(map[studentMarkKey]*group.StudentMark)},
		groupMark:   &groupMarkTable{table: make(map[groupMarkKey]*group.GroupMark)},
		overrideLog: &overrideLogTable{},
		locks:       make(map[string]*sync.Mutex),
	}
}

func (db *DB) Ping(context.Context) error { return nil }

// RunInTx serializes the calls sharing `key`. Writes are applied immediately and are not rolled back
// when fn fails.
func (db *DB) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	db.locksMu.Lock()
	mu, ok := db.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		db.locks[key] = mu
	}
	db.locksMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return fn(ctx)
}

// Flush empties every table.
func (db *DB) Flush() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.group.mutex.Lock()
	db.group.table = make(map[string]*group.Group)
	db.group.mutex.Unlock()

	db.submission.mutex.Lock()
	db.submission.table = make(map[string]*group.Submission)
	db.submission.mutex.Unlock()

	db.studentMark.mutex.Lock()
	db.studentMark.table = make(map[studentMarkKey]*group.StudentMark)
	db.studentMark.mutex.Unlock()

	db.groupMark.mutex.Lock()
	db.groupMark.table = make(map[groupMarkKey]*group.GroupMark)
	db.groupMark.mutex.Unlock()

	db.overrideLog.mutex.Lock()
	db.overrideLog.table = nil
	db.overrideLog.mutex.Unlock()
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
