package stage

import (
	"fmt"

	"donusum/models"
)

// rank gives the lifecycle position of each status. A stage only ever moves
// one step forward.
var rank = map[models.StageStatus]int{
	models.StageLocked:    0,
	models.StageActive:    1,
	models.StageCompleted: 2,
}

// CanTransitionTo reports whether a stage in status current may move to target.
func CanTransitionTo(current, target models.StageStatus) bool {
	from, ok := rank[current]
	if !ok {
		return false
	}
	to, ok := rank[target]
	if !ok {
		return false
	}
	return to == from+1
}

// ValidStatus reports whether s is one of the three lifecycle statuses.
func ValidStatus(s models.StageStatus) bool {
	_, ok := rank[s]
	return ok
}

// IllegalTransitionError is returned when a requested status change is not
// reachable from the persisted status.
type IllegalTransitionError struct {
	StageID int
	From    models.StageStatus
	To      models.StageStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("stage %d cannot move from %s to %s", e.StageID, e.From, e.To)
}
