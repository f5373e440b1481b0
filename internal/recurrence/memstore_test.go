package recurrence

import (
	"context"
	"sync"

	"github.com/samber/mo"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// memStore is an in-memory TaskStore. With unique set it rejects a second
// instance for the same series and due date the way the SQL index does.
type memStore struct {
	mu     sync.Mutex
	tasks  map[uint]model.Task
	nextID uint
	unique bool

	findErr   error
	countErr  error
	insertErr error
	inserts   int
}

func newMemStore(unique bool, seed ...model.Task) *memStore {
	s := &memStore{tasks: make(map[uint]model.Task), nextID: 1, unique: unique}
	for _, t := range seed {
		if t.ID == 0 {
			t.ID = s.nextID
		}
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
		s.tasks[t.ID] = t
	}
	return s
}

func (s *memStore) FindDuplicate(_ context.Context, seriesID uint, due date.Date) (mo.Option[model.Task], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return mo.None[model.Task](), s.findErr
	}
	for _, t := range s.tasks {
		if t.ParentRecurringTaskID != nil && *t.ParentRecurringTaskID == seriesID && t.DueDate.Equal(due) {
			return mo.Some(t), nil
		}
	}
	return mo.None[model.Task](), nil
}

func (s *memStore) CountSiblings(_ context.Context, seriesID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	var n int64
	for _, t := range s.tasks {
		if t.ParentRecurringTaskID != nil && *t.ParentRecurringTaskID == seriesID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) Insert(_ context.Context, task *model.Task) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	if s.unique && task.ParentRecurringTaskID != nil {
		for _, t := range s.tasks {
			if t.ParentRecurringTaskID != nil && *t.ParentRecurringTaskID == *task.ParentRecurringTaskID && t.DueDate.Equal(task.DueDate) {
				return 0, ErrDuplicateInstance
			}
		}
	}
	task.ID = s.nextID
	s.nextID++
	s.tasks[task.ID] = *task
	s.inserts++
	return task.ID, nil
}

func (s *memStore) children(seriesID uint) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.ParentRecurringTaskID != nil && *t.ParentRecurringTaskID == seriesID {
			out = append(out, t)
		}
	}
	return out
}
