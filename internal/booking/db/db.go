package db

import (
	"context"
	"time"

	"ms-booking/internal/booking"

	"github.com/uptrace/bun"
)

// DB is the bun-backed Store. Ledger and Registry handed out by RunInTx share
// one bun.Tx.
type DB struct {
	Bun *bun.DB
	// Now stamps booking rows. Tests swap it for a deterministic clock.
	// Stamps are cut to microseconds, the precision TIMESTAMPTZ keeps.
	Now func() time.Time
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB, Now: func() time.Time { return time.Now().UTC() }}
}

func (d *DB) Ledger() booking.Ledger {
	return &Ledger{db: d.Bun}
}

func (d *DB) Registry() booking.Registry {
	return &Registry{db: d.Bun, now: d.clock()}
}

func (d *DB) RunInTx(ctx context.Context, fn booking.TxFunc) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Ledger{db: tx}, &Registry{db: tx, now: d.clock()})
	})
}

func (d *DB) clock() func() time.Time {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return func() time.Time { return now().UTC().Truncate(time.Microsecond) }
}
