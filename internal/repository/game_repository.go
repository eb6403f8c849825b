package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/confidant-bot/confidant/internal/models"
	appErrors "github.com/confidant-bot/confidant/pkg/errors"
)

const (
	keyGameCurrent = "infinity:current"
	keyGameGoal    = "infinity:goal"
	keyGameFactor  = "infinity:factor"
	keyGameLastID  = "infinity:lastId"
)

// GameRepository owns the counting game's durable state.
type GameRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewGameRepository constructs a game repository.
func NewGameRepository(client *redis.Client, logger *zap.Logger) *GameRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameRepository{client: client, logger: logger}
}

// Bootstrap seeds the game keys with set-if-absent semantics so process
// restarts never clobber live state.
func (r *GameRepository) Bootstrap(ctx context.Context, goal, factor int64) error {
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, keyGameCurrent, 0, 0)
		pipe.SetNX(ctx, keyGameGoal, goal, 0)
		pipe.SetNX(ctx, keyGameFactor, factor, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bootstrap game state: %w", err)
	}
	return nil
}

// State reads the full game state in one pipelined round trip.
func (r *GameRepository) State(ctx context.Context) (models.GameState, error) {
	var current, goal, factor, lastID *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		current = pipe.Get(ctx, keyGameCurrent)
		goal = pipe.Get(ctx, keyGameGoal)
		factor = pipe.Get(ctx, keyGameFactor)
		lastID = pipe.Get(ctx, keyGameLastID)
		return nil
	})
	if err != nil && err != redis.Nil {
		return models.GameState{}, fmt.Errorf("read game state: %w", err)
	}

	state := models.GameState{
		Current:      intFromCmd(current, 0),
		Goal:         intFromCmd(goal, 1),
		Factor:       intFromCmd(factor, 2),
		LastPlayerID: stringFromCmd(lastID),
	}
	return state, nil
}

// SetCurrent overwrites the current number (manager override).
func (r *GameRepository) SetCurrent(ctx context.Context, v int64) error {
	return r.setKey(ctx, keyGameCurrent, v)
}

// SetGoal overwrites the goal (manager override).
func (r *GameRepository) SetGoal(ctx context.Context, v int64) error {
	return r.setKey(ctx, keyGameGoal, v)
}

// SetFactor overwrites the scaling factor (manager override).
func (r *GameRepository) SetFactor(ctx context.Context, v int64) error {
	return r.setKey(ctx, keyGameFactor, v)
}

func (r *GameRepository) setKey(ctx context.Context, key string, v int64) error {
	if err := r.client.Set(ctx, key, v, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// ApplyTurn evaluates one turn attempt atomically. decide must be a
// pure function of the passed state: the transaction re-runs it when a
// concurrent writer invalidates the watched keys. On a correct attempt
// current is advanced via INCR and a reached goal is scaled in the same
// transaction; the last-player guard is written for every evaluated
// attempt, including incorrect ones. Returns the post-transaction state.
func (r *GameRepository) ApplyTurn(ctx context.Context, playerID string, decide func(models.GameState) models.TurnDecision) (models.GameState, models.TurnDecision, error) {
	var (
		state    models.GameState
		decision models.TurnDecision
	)

	for attempt := 0; attempt < txRetries; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			s, err := stateFromTx(ctx, tx)
			if err != nil {
				return err
			}

			d := decide(s)
			if d.Outcome == models.OutcomeNotYourTurn {
				state, decision = s, d
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if d.Outcome == models.OutcomeCorrect {
					pipe.Incr(ctx, keyGameCurrent)
					if d.GoalReached {
						pipe.Set(ctx, keyGameGoal, s.Goal*s.Factor, 0)
					}
				}
				pipe.Set(ctx, keyGameLastID, playerID, 0)
				return nil
			})
			if err != nil {
				return err
			}

			if d.Outcome == models.OutcomeCorrect {
				s.Current++
				if d.GoalReached {
					s.Goal *= s.Factor
				}
			}
			s.LastPlayerID = playerID
			state, decision = s, d
			return nil
		}, keyGameCurrent, keyGameGoal, keyGameFactor, keyGameLastID)

		if err == nil {
			return state, decision, nil
		}
		if err != redis.TxFailedErr {
			return models.GameState{}, models.TurnDecision{}, fmt.Errorf("apply turn: %w", err)
		}
		r.logger.Debug("turn transaction conflict, retrying", zap.Int("attempt", attempt+1))
		if err := txBackoff(ctx, attempt); err != nil {
			return models.GameState{}, models.TurnDecision{}, err
		}
	}

	return models.GameState{}, models.TurnDecision{}, appErrors.ErrStoreConflict
}

func stateFromTx(ctx context.Context, tx *redis.Tx) (models.GameState, error) {
	current, err := readInt(tx.Get(ctx, keyGameCurrent), 0)
	if err != nil {
		return models.GameState{}, err
	}
	goal, err := readInt(tx.Get(ctx, keyGameGoal), 1)
	if err != nil {
		return models.GameState{}, err
	}
	factor, err := readInt(tx.Get(ctx, keyGameFactor), 2)
	if err != nil {
		return models.GameState{}, err
	}
	lastID, err := tx.Get(ctx, keyGameLastID).Result()
	if err != nil && err != redis.Nil {
		return models.GameState{}, err
	}
	return models.GameState{Current: current, Goal: goal, Factor: factor, LastPlayerID: lastID}, nil
}

func readInt(cmd *redis.StringCmd, fallback int64) (int64, error) {
	n, err := cmd.Int64()
	if err == redis.Nil {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func intFromCmd(cmd *redis.StringCmd, fallback int64) int64 {
	if cmd == nil {
		return fallback
	}
	n, err := cmd.Int64()
	if err != nil {
		return fallback
	}
	return n
}

func stringFromCmd(cmd *redis.StringCmd) string {
	if cmd == nil {
		return ""
	}
	return cmd.Val()
}
