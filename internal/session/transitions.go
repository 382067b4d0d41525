package session

import "github.com/zulandar/tempo/internal/models"

// ValidTransitions maps each session status to the statuses reachable from it.
// Cancellation is declared legal from active and paused, but no engine
// operation performs it.
var ValidTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionPlanned: {models.SessionActive},
	models.SessionActive:  {models.SessionPaused, models.SessionCompleted, models.SessionCancelled},
	models.SessionPaused:  {models.SessionActive, models.SessionCompleted, models.SessionCancelled},
}

// ValidBlockTransitions maps each block status to the statuses reachable from
// it. Skipped is absent: callers may set it directly through UpdateBlock.
var ValidBlockTransitions = map[models.BlockStatus][]models.BlockStatus{
	models.BlockPlanned: {models.BlockActive},
	models.BlockActive:  {models.BlockPaused, models.BlockCompleted},
	models.BlockPaused:  {models.BlockActive, models.BlockCompleted},
}

// isValidTransition checks whether a session status transition is allowed.
func isValidTransition(from, to models.SessionStatus) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// CanTransitionBlock reports whether a block may move from one status to
// another. UpdateBlock does not call it; callers validate with it first.
func CanTransitionBlock(from, to models.BlockStatus) bool {
	for _, v := range ValidBlockTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}
