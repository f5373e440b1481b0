package service

import (
	"context"
	"errors"
	"log"

	"github.com/samber/mo"

	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
)

type seriesGate interface {
	recurrence.AuthoritativeEligibility
	SeriesOpen(ctx context.Context, task model.Task) (bool, error)
}

// Advancer appends the next instance to a series once a task qualifies.
type Advancer struct {
	factory *recurrence.Factory
	fast    recurrence.FastEligibility
	gate    seriesGate
}

// NewAdvancer uses the authoritative gate when one is given and the
// occurrence counter on the task otherwise.
func NewAdvancer(factory *recurrence.Factory, gate *recurrence.Gate) *Advancer {
	a := &Advancer{factory: factory, fast: recurrence.LocalGate{}}
	if gate != nil {
		a.gate = gate
	}
	return a
}

// outcome separates "the gate said no" from "the instance already existed".
type outcome struct {
	eligible bool
	id       mo.Option[uint]
}

// Advance creates the next instance after task was completed.
func (a *Advancer) Advance(ctx context.Context, task model.Task) (mo.Option[uint], error) {
	out, err := a.advance(ctx, task, false)
	return out.id, err
}

// AdvanceOverdue keeps a series on schedule when its instance is past due
// but not done. Only the end conditions are checked.
func (a *Advancer) AdvanceOverdue(ctx context.Context, task model.Task) (mo.Option[uint], error) {
	out, err := a.advance(ctx, task, true)
	return out.id, err
}

func (a *Advancer) advance(ctx context.Context, task model.Task, overdue bool) (outcome, error) {
	out := outcome{id: mo.None[uint]()}
	seriesID := recurrence.RoleOf(task).SeriesID()

	var err error
	switch {
	case a.gate != nil && overdue:
		out.eligible, err = a.gate.SeriesOpen(ctx, task)
	case a.gate != nil:
		out.eligible, err = a.gate.EligibleAuthoritative(ctx, task)
	case overdue:
		out.eligible = recurrence.SeriesOpenFast(task)
	default:
		out.eligible = a.fast.EligibleFast(task)
	}
	if err != nil {
		log.Printf("[warn] eligibility check failed series=%d task=%d: %v", seriesID, task.ID, err)
		return out, err
	}
	if !out.eligible {
		return out, nil
	}

	out.id, err = a.factory.CreateNext(ctx, task)
	if err != nil {
		if errors.Is(err, recurrence.ErrPersistence) {
			log.Printf("[warn] series did not advance series=%d task=%d due=%s: %v",
				seriesID, task.ID, recurrence.NextDueDate(task), err)
		}
		out.id = mo.None[uint]()
		return out, err
	}
	if next, ok := out.id.Get(); ok {
		log.Printf("[info] recurring instance created id=%d series=%d due=%s", next, seriesID, recurrence.NextDueDate(task))
	}
	return out, nil
}
