package repository

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/confidant-bot/confidant/pkg/errors"
)

const (
	keyConfessionCounter = "confession:counter"
	keyConfessionLastDay = "confession:lastDay"
)

// txRetries bounds optimistic-transaction attempts before giving up
// with ErrStoreConflict. Every contending writer invalidates the
// watched keys, so the budget must cover a full burst of concurrent
// accepts or turns.
const txRetries = 32

// txBackoff sleeps a short jittered interval so contending writers
// spread out before the next optimistic-transaction attempt.
func txBackoff(ctx context.Context, attempt int) error {
	jitter := time.Duration(rand.Intn(2*(attempt+1))+1) * time.Millisecond
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SequenceRepository hands out day-keyed publication numbers for
// accepted submissions. The stored counter always holds the next
// number to assign.
type SequenceRepository struct {
	client *redis.Client
	loc    *time.Location
	logger *zap.Logger

	now func() time.Time
}

// NewSequenceRepository constructs a sequence repository. The location
// fixes the day-rollover boundary.
func NewSequenceRepository(client *redis.Client, loc *time.Location, logger *zap.Logger) *SequenceRepository {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequenceRepository{client: client, loc: loc, logger: logger, now: time.Now}
}

// Bootstrap seeds the sequence keys. Set-if-absent semantics keep live
// state intact across process restarts.
func (r *SequenceRepository) Bootstrap(ctx context.Context) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, keyConfessionCounter, 1, 0)
		pipe.SetNX(ctx, keyConfessionLastDay, r.day(), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bootstrap confession sequence: %w", err)
	}
	return nil
}

// Next returns today's day label and the publication number for one
// accepted submission. The counter resets to 1 when the stored day no
// longer matches today. The whole read-compare-reset-increment runs
// under WATCH so concurrent accepts serialize instead of sharing a
// number.
func (r *SequenceRepository) Next(ctx context.Context) (string, int64, error) {
	day := r.day()

	var n int64
	for attempt := 0; attempt < txRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.Get(ctx, keyConfessionLastDay).Result()
			if err != nil && err != redis.Nil {
				return err
			}

			n = 1
			if stored == day {
				n, err = tx.Get(ctx, keyConfessionCounter).Int64()
				if err != nil && err != redis.Nil {
					return err
				}
				if n < 1 {
					n = 1
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, keyConfessionLastDay, day, 0)
				pipe.Set(ctx, keyConfessionCounter, n+1, 0)
				return nil
			})
			return err
		}, keyConfessionLastDay, keyConfessionCounter)

		if err == nil {
			return day, n, nil
		}
		if err != redis.TxFailedErr {
			return "", 0, fmt.Errorf("next confession number: %w", err)
		}
		r.logger.Debug("confession sequence conflict, retrying", zap.Int("attempt", attempt+1))
		if err := txBackoff(ctx, attempt); err != nil {
			return "", 0, err
		}
	}

	return "", 0, appErrors.ErrStoreConflict
}

func (r *SequenceRepository) day() string {
	return r.now().In(r.loc).Format("Mon")
}
