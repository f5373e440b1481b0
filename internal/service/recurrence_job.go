package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

type recurringLister interface {
	ListRecurring(ctx context.Context) ([]model.Task, error)
}

// JobReport summarizes one run of the recurrence job.
type JobReport struct {
	Scanned    int
	Created    int
	Duplicates int
	Skipped    int
	Failed     int
}

func (r JobReport) String() string {
	return fmt.Sprintf("scanned=%d created=%d duplicates=%d skipped=%d failed=%d",
		r.Scanned, r.Created, r.Duplicates, r.Skipped, r.Failed)
}

// RecurrenceJob advances every recurring series whose current instance is
// done, and optionally those whose instance is overdue.
type RecurrenceJob struct {
	tasks          recurringLister
	advancer       *Advancer
	workers        int
	advanceOverdue bool
	now            func() time.Time
	loc            *time.Location
}

func NewRecurrenceJob(tasks recurringLister, advancer *Advancer, workers int, advanceOverdue bool, loc *time.Location) *RecurrenceJob {
	if workers <= 0 {
		workers = 1
	}
	if loc == nil {
		loc = time.Local
	}
	return &RecurrenceJob{
		tasks:          tasks,
		advancer:       advancer,
		workers:        workers,
		advanceOverdue: advanceOverdue,
		now:            time.Now,
		loc:            loc,
	}
}

// Run scans all recurring tasks once. A failing task is counted and logged;
// only a failure to list tasks or a cancelled context aborts the run.
func (j *RecurrenceJob) Run(ctx context.Context) (JobReport, error) {
	tasks, err := j.tasks.ListRecurring(ctx)
	if err != nil {
		return JobReport{}, fmt.Errorf("list recurring tasks: %w", err)
	}

	today := date.FromTime(j.now().In(j.loc))
	var created, duplicates, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.workers)
	for _, task := range tasks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var overdue bool
			switch {
			case task.IsDone():
			case j.advanceOverdue && task.DueDate.Before(today):
				overdue = true
			default:
				skipped.Add(1)
				return nil
			}

			out, err := j.advancer.advance(gctx, task, overdue)
			switch {
			case err != nil:
				failed.Add(1)
				log.Printf("[warn] recurrence job: task %d: %v", task.ID, err)
			case !out.eligible:
				skipped.Add(1)
			case out.id.IsPresent():
				created.Add(1)
			default:
				duplicates.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JobReport{}, err
	}

	report := JobReport{
		Scanned:    len(tasks),
		Created:    int(created.Load()),
		Duplicates: int(duplicates.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}
	log.Printf("[info] recurrence job finished: %s", report)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
