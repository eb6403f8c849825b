package dto

import "github.com/confidant-bot/confidant/internal/models"

// GameStatsResponse mirrors the in-channel /stats reply for operators.
type GameStatsResponse struct {
	Current      int64  `json:"current"`
	NextNumber   int64  `json:"next_number"`
	Goal         int64  `json:"goal"`
	NextGoal     int64  `json:"next_goal"`
	Factor       int64  `json:"factor"`
	LastPlayerID string `json:"last_player_id,omitempty"`
}

// GameStatsFromState maps store state into the response shape.
func GameStatsFromState(state models.GameState) GameStatsResponse {
	return GameStatsResponse{
		Current:      state.Current,
		NextNumber:   state.NextNumber(),
		Goal:         state.Goal,
		NextGoal:     state.NextGoal(),
		Factor:       state.Factor,
		LastPlayerID: state.LastPlayerID,
	}
}
