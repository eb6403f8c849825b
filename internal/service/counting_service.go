package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/confidant-bot/confidant/internal/models"
	"github.com/confidant-bot/confidant/internal/platform"
	"github.com/confidant-bot/confidant/pkg/config"
)

const (
	emojiCorrect = "✅"
	emojiWrong   = "❌"
)

// turnTolerance bounds how far a number may sit from the expected next
// value before the message stops counting as a turn attempt at all.
const turnTolerance = 100

var (
	// Matches anywhere in the message, not only at the start.
	setCommandRe = regexp.MustCompile(`/set(current|goal|factor)\s+(.+)`)
	digitRunRe   = regexp.MustCompile(`\d+`)
	groupedIntRe = regexp.MustCompile(`((?:\d|,)+)`)
)

type gameStore interface {
	State(ctx context.Context) (models.GameState, error)
	SetCurrent(ctx context.Context, v int64) error
	SetGoal(ctx context.Context, v int64) error
	SetFactor(ctx context.Context, v int64) error
	ApplyTurn(ctx context.Context, playerID string, decide func(models.GameState) models.TurnDecision) (models.GameState, models.TurnDecision, error)
}

// CountingService validates player turns against the shared counter and
// scales the goal when it is reached. All mutable state lives in the
// store.
type CountingService struct {
	session platform.Session
	store   gameStore
	cfg     config.GameConfig
	logger  *zap.Logger
	metrics *MetricsService
}

// NewCountingService constructs a CountingService. metrics may be nil.
func NewCountingService(session platform.Session, store gameStore, cfg config.GameConfig, logger *zap.Logger, metrics *MetricsService) *CountingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CountingService{session: session, store: store, cfg: cfg, logger: logger, metrics: metrics}
}

// OnChannelMessage handles one game-channel message: the /stats query,
// a manager override, or an ordinary turn attempt.
func (s *CountingService) OnChannelMessage(ctx context.Context, evt platform.Event) {
	if evt.ChannelID != s.cfg.ChannelID || evt.AuthorBot {
		return
	}

	if strings.HasPrefix(evt.Content, "/stats") {
		s.stats(ctx, evt)
		return
	}
	if m := setCommandRe.FindStringSubmatch(evt.Content); m != nil {
		s.override(ctx, evt, m[1], m[2])
		return
	}
	s.turn(ctx, evt)
}

func (s *CountingService) stats(ctx context.Context, evt platform.Event) {
	state, err := s.store.State(ctx)
	if err != nil {
		s.logger.Error("read game state", zap.Error(err))
		return
	}
	reply := fmt.Sprintf("The next number is %d. The goal is %d. The next goal is %d (factor: x%d).",
		state.NextNumber(), state.Goal, state.NextGoal(), state.Factor)
	if err := s.session.Reply(ctx, evt.ChannelID, evt.MessageID, reply); err != nil {
		s.logger.Warn("reply stats", zap.Error(err))
	}
}

func (s *CountingService) override(ctx context.Context, evt platform.Event, field, raw string) {
	// Only the configured manager may override; everyone else is
	// ignored without a reply.
	if evt.AuthorID != s.cfg.ManagerID {
		return
	}
	value, ok := parseGroupedInt(raw)
	if !ok {
		return
	}

	var reply string
	switch field {
	case "current":
		if err := s.store.SetCurrent(ctx, value); err != nil {
			s.logger.Error("override current", zap.Error(err))
			return
		}
		reply = fmt.Sprintf("The current number is %d.", value)
	case "goal":
		if err := s.store.SetGoal(ctx, value); err != nil {
			s.logger.Error("override goal", zap.Error(err))
			return
		}
		reply = fmt.Sprintf("The goal is now %d.", value)
	case "factor":
		state, err := s.store.State(ctx)
		if err != nil {
			s.logger.Error("read game state", zap.Error(err))
			return
		}
		if err := s.store.SetFactor(ctx, value); err != nil {
			s.logger.Error("override factor", zap.Error(err))
			return
		}
		reply = fmt.Sprintf("The factor is now %d. That means after this goal (%d), the next goal is %d.",
			value, state.Goal, state.Goal*value)
	}

	if err := s.session.Reply(ctx, evt.ChannelID, evt.MessageID, reply); err != nil {
		s.logger.Warn("reply override", zap.Error(err))
	}
}

func (s *CountingService) turn(ctx context.Context, evt platform.Event) {
	snapshot, err := s.store.State(ctx)
	if err != nil {
		s.logger.Error("read game state", zap.Error(err))
		return
	}

	candidates := extractCandidates(evt.Content, snapshot.NextNumber())
	if len(candidates) == 0 {
		// Not a turn attempt.
		return
	}

	state, decision, err := s.store.ApplyTurn(ctx, evt.AuthorID, func(fresh models.GameState) models.TurnDecision {
		return decideTurn(fresh, evt.AuthorID, candidates)
	})
	if err != nil {
		s.logger.Error("apply turn", zap.String("player_id", evt.AuthorID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.TurnEvaluated(string(decision.Outcome))
	}

	switch decision.Outcome {
	case models.OutcomeNotYourTurn:
		if err := s.session.Reply(ctx, evt.ChannelID, evt.MessageID, "You already went your turn!"); err != nil {
			s.logger.Warn("reply turn guard", zap.Error(err))
		}
		return
	case models.OutcomeCorrect:
		if err := s.session.React(ctx, evt.ChannelID, evt.MessageID, emojiCorrect); err != nil {
			s.logger.Warn("react correct", zap.Error(err))
		}
	case models.OutcomeIncorrect:
		if err := s.session.React(ctx, evt.ChannelID, evt.MessageID, emojiWrong); err != nil {
			s.logger.Warn("react incorrect", zap.Error(err))
		}
	}

	if decision.GoalReached {
		announce := fmt.Sprintf("Woohoo! The goal of %d was met! The next goal is %d (factor: x%d).",
			decision.Goal, decision.NextGoal, state.Factor)
		if _, err := s.session.Send(ctx, evt.ChannelID, announce); err != nil {
			s.logger.Warn("announce milestone", zap.Error(err))
		}
	}
}

// decideTurn evaluates a turn attempt against a snapshot of the game
// state. It is pure so the store can re-run it under its optimistic
// transaction.
func decideTurn(state models.GameState, playerID string, candidates []int64) models.TurnDecision {
	if state.LastPlayerID == playerID {
		return models.TurnDecision{Outcome: models.OutcomeNotYourTurn}
	}

	expected := state.NextNumber()
	decision := models.TurnDecision{Outcome: models.OutcomeIncorrect}
	for _, c := range candidates {
		if c == expected {
			decision.Outcome = models.OutcomeCorrect
			break
		}
	}

	if decision.Outcome == models.OutcomeCorrect && expected == state.Goal {
		decision.GoalReached = true
		decision.Goal = state.Goal
		decision.NextGoal = state.NextGoal()
	}
	return decision
}

// extractCandidates pulls every integer-looking substring from the
// message and keeps those within the tolerance window of the expected
// next number, so incidental text survives but unrelated numbers do not.
func extractCandidates(content string, expected int64) []int64 {
	var out []int64
	for _, m := range digitRunRe.FindAllString(content, -1) {
		n, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		if d := n - expected; d > -turnTolerance && d < turnTolerance {
			out = append(out, n)
		}
	}
	return out
}

// parseGroupedInt parses an integer that may carry thousands
// separators, e.g. "1,000,000".
func parseGroupedInt(raw string) (int64, bool) {
	m := groupedIntRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
