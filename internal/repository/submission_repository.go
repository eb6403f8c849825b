package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/confidant-bot/confidant/internal/models"
	appErrors "github.com/confidant-bot/confidant/pkg/errors"
)

const submissionKeyPrefix = "confession:submission:"

// SubmissionRepository records the explicit review status of every
// moderation-channel submission, keyed by the moderation message id.
// Records carry a TTL so the keyspace does not grow without bound.
type SubmissionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(client *redis.Client, ttl time.Duration) *SubmissionRepository {
	return &SubmissionRepository{client: client, ttl: ttl}
}

// Create records a fresh submission as reviewable. Set-if-absent, so a
// redelivered intake event cannot reset an already-moderated record.
func (r *SubmissionRepository) Create(ctx context.Context, messageID string) error {
	key := submissionKeyPrefix + messageID
	if err := r.client.SetNX(ctx, key, string(models.StatusReviewable), r.ttl).Err(); err != nil {
		return fmt.Errorf("create submission %s: %w", messageID, err)
	}
	return nil
}

// Status returns the recorded status. Messages with no record (posted
// to the moderation channel outside the intake flow, or expired) read
// as reviewable, matching how the original treated any channel message.
func (r *SubmissionRepository) Status(ctx context.Context, messageID string) (models.SubmissionStatus, error) {
	raw, err := r.client.Get(ctx, submissionKeyPrefix+messageID).Result()
	if err == redis.Nil {
		return models.StatusReviewable, nil
	}
	if err != nil {
		return "", fmt.Errorf("read submission %s: %w", messageID, err)
	}
	return models.SubmissionStatus(raw), nil
}

// Transition moves the submission to the given status if its current
// status is one of from. It reports whether the transition applied. The
// check-and-set runs under WATCH so concurrent moderation reactions on
// the same message serialize.
func (r *SubmissionRepository) Transition(ctx context.Context, messageID string, to models.SubmissionStatus, from ...models.SubmissionStatus) (bool, error) {
	key := submissionKeyPrefix + messageID

	var applied bool
	for attempt := 0; attempt < txRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			current := models.StatusReviewable
			switch {
			case err == redis.Nil:
			case err != nil:
				return err
			default:
				current = models.SubmissionStatus(raw)
			}

			applied = false
			for _, f := range from {
				if current == f {
					applied = true
					break
				}
			}
			if !applied {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, string(to), r.ttl)
				return nil
			})
			return err
		}, key)

		if err == nil {
			return applied, nil
		}
		if err != redis.TxFailedErr {
			return false, fmt.Errorf("transition submission %s: %w", messageID, err)
		}
		if err := txBackoff(ctx, attempt); err != nil {
			return false, err
		}
	}

	return false, appErrors.ErrStoreConflict
}
