package models

// GameState is the counting game's durable state as read from the store.
type GameState struct {
	Current      int64
	Goal         int64
	Factor       int64
	LastPlayerID string
}

// NextNumber is the value the next correct turn must contain.
func (s GameState) NextNumber() int64 {
	return s.Current + 1
}

// NextGoal is the goal that will apply once the current one is met.
func (s GameState) NextGoal() int64 {
	return s.Goal * s.Factor
}

// TurnOutcome classifies one evaluated turn attempt.
type TurnOutcome string

const (
	OutcomeNotYourTurn TurnOutcome = "not_your_turn"
	OutcomeCorrect     TurnOutcome = "correct"
	OutcomeIncorrect   TurnOutcome = "incorrect"
)

// TurnDecision is the result of evaluating a turn attempt against a
// snapshot of the game state. Goal and NextGoal are populated only when
// the attempt reaches the goal.
type TurnDecision struct {
	Outcome     TurnOutcome
	GoalReached bool
	Goal        int64
	NextGoal    int64
}
