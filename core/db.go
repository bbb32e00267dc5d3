package core

import "context"

type (
	// Transactor runs a unit of work against the backing store.
	// Calls sharing the same key are serialized; repositories called with the ctx handed to fn
	// take part in the unit of work.
	Transactor interface {
		RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
	}

	// Pinger reports whether the backing store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
