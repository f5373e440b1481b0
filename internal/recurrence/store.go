package recurrence

import (
	"context"

	"github.com/samber/mo"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// SiblingCounter counts the generated instances of a series. The root is
// not counted.
type SiblingCounter interface {
	CountSiblings(ctx context.Context, seriesID uint) (int64, error)
}

// TaskStore is the slice of the task store that series advancement needs.
type TaskStore interface {
	SiblingCounter

	// FindDuplicate looks up the instance of seriesID due on due.
	FindDuplicate(ctx context.Context, seriesID uint, due date.Date) (mo.Option[model.Task], error)

	// Insert persists task and returns its new ID. It returns an error
	// wrapping ErrDuplicateInstance when the store rejects a second
	// instance for the same series and due date.
	Insert(ctx context.Context, task *model.Task) (uint, error)
}
