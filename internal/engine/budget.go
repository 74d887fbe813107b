package engine

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/roach88/medremind/internal/medication"
	"github.com/roach88/medremind/internal/model"
	"github.com/roach88/medremind/internal/platform"
)

// Budget sizes the scheduling horizon so outstanding alerts never exceed
// the platform cap.
type Budget struct {
	Cap            int // hard platform limit on outstanding alerts
	Reserved       int // slots kept free for check-ins and headroom
	MinDays        int
	MaxDays        int
	TopUpThreshold int
}

// DefaultBudget returns the reference budget: 64 slots, 10 reserved, 3 to 14 days.
func DefaultBudget() Budget {
	return Budget{
		Cap:            platform.DefaultCap,
		Reserved:       10,
		MinDays:        3,
		MaxDays:        14,
		TopUpThreshold: 3,
	}
}

// CalculateDays returns how many days of alerts fit in the budget when each
// day needs slotsPerDay alerts: floor((cap-reserved)/slots) clamped to
// [MinDays, MaxDays]. No slots needed means no days.
func (b Budget) CalculateDays(slotsPerDay int) int {
	if slotsPerDay <= 0 {
		return 0
	}
	days := (b.Cap - b.Reserved) / slotsPerDay
	if days < b.MinDays {
		return b.MinDays
	}
	if days > b.MaxDays {
		return b.MaxDays
	}
	return days
}

// SlotsPerDay counts the alerts one day of pairs needs: one per distinct
// clock time, plus one per clock time where any member has a follow-up.
func (e *Engine) SlotsPerDay(ctx context.Context, pairs []model.Pair) (int, error) {
	followUp := make(map[string]bool)
	for _, p := range pairs {
		settings, err := e.meds.EffectiveSettings(ctx, p.Medication.ID)
		if err != nil {
			return 0, err
		}
		followUp[p.Schedule.Time] = followUp[p.Schedule.Time] || settings.FollowUpEnabled()
	}

	slots := 0
	for _, hasFollowUp := range followUp {
		slots++
		if hasFollowUp {
			slots++
		}
	}
	return slots, nil
}

// TargetDays computes the day budget for the current active schedules.
func (e *Engine) TargetDays(ctx context.Context) (int, []model.Pair, error) {
	pairs, err := medication.ActivePairs(ctx, e.meds)
	if err != nil {
		return 0, nil, err
	}
	slots, err := e.SlotsPerDay(ctx, pairs)
	if err != nil {
		return 0, nil, err
	}
	return e.budget.CalculateDays(slots), pairs, nil
}

// TopUpReport summarizes TopUp.
type TopUpReport struct {
	TargetDays int
	Schedules  int // schedules that were below threshold
	ScheduleReport
}

// TopUp extends every enabled schedule with fewer than threshold future
// reminder mappings up to the day budget, starting the day after its latest
// mapping (or today). Days that already exist are never rescheduled.
func (e *Engine) TopUp(ctx context.Context, threshold int) (TopUpReport, error) {
	const op = "top_up"

	target, pairs, err := e.TargetDays(ctx)
	if err != nil {
		return TopUpReport{}, err
	}
	report := TopUpReport{TargetDays: target}
	today := e.Today()

	needed := make(map[string][]model.Date) // schedule id -> dates
	for _, p := range pairs {
		s := slot{medicationID: p.Medication.ID, scheduleID: p.Schedule.ID, typ: model.TypeReminder}

		count, err := e.store.CountFutureBySchedule(ctx, p.Schedule.ID, today, model.TypeReminder)
		if err != nil {
			oe := s.err(op, CodeStore, err)
			e.logFailure(oe)
			report.fail(oe)
			continue
		}
		if count >= threshold {
			continue
		}
		need := target - count
		if need <= 0 {
			continue
		}

		last, err := e.store.MaxDateBySchedule(ctx, p.Schedule.ID, model.TypeReminder)
		if err != nil {
			oe := s.err(op, CodeStore, err)
			e.logFailure(oe)
			report.fail(oe)
			continue
		}
		start := today
		if last != "" && !last.Before(today) {
			start = last.AddDays(1)
		}

		dates := make([]model.Date, need)
		for i := range dates {
			dates[i] = start.AddDays(i)
		}
		needed[p.Schedule.ID] = dates
		report.Schedules++
	}

	if len(needed) == 0 {
		return report, nil
	}

	// Whole buckets are scheduled on each needed date so members sharing a
	// clock time keep sharing one alert.
	for _, b := range e.partition(ctx, pairs, &report.ScheduleReport) {
		for _, date := range bucketDates(b, needed) {
			report.merge(e.scheduleBucketDay(ctx, b, date))
		}
	}

	e.log.WithFields(logrus.Fields{
		"op":          op,
		"threshold":   threshold,
		"target_days": target,
		"schedules":   report.Schedules,
		"scheduled":   report.Scheduled,
		"failed":      report.Failed,
	}).Info("top-up complete")
	return report, nil
}

func bucketDates(b bucket, needed map[string][]model.Date) []model.Date {
	seen := make(map[model.Date]bool)
	var out []model.Date
	for _, m := range b.members {
		for _, d := range needed[m.scheduleID()] {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RebalanceReport summarizes Rebalance.
type RebalanceReport struct {
	TargetDays int
	Trimmed    int // reminder days cancelled beyond the budget
	Failed     int
	Errors     []error
	TopUp      TopUpReport
}

// Rebalance recomputes the day budget and enforces it: schedules with more
// future reminder days than the budget lose their furthest-future days,
// then TopUp backfills any shortfall.
func (e *Engine) Rebalance(ctx context.Context) (RebalanceReport, error) {
	const op = "rebalance"

	target, pairs, err := e.TargetDays(ctx)
	if err != nil {
		return RebalanceReport{}, err
	}
	report := RebalanceReport{TargetDays: target}
	today := e.Today()

	for _, p := range pairs {
		mappings, err := e.store.GetBySchedule(ctx, p.Schedule.ID)
		if err != nil {
			oe := &OpError{Op: op, Code: CodeStore, MedicationID: p.Medication.ID, ScheduleID: p.Schedule.ID, Err: err}
			e.logFailure(oe)
			report.Failed++
			report.Errors = append(report.Errors, oe)
			continue
		}

		var dates []model.Date
		for _, m := range mappings {
			if m.NotificationType == model.TypeReminder && !m.Date.Before(today) {
				dates = append(dates, m.Date)
			}
		}
		if len(dates) <= target {
			continue
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })

		for _, date := range dates[target:] {
			for _, typ := range []model.NotificationType{model.TypeReminder, model.TypeFollowUp} {
				res := e.CancelForDate(ctx, p.Medication.ID, p.Schedule.ID, date, typ)
				if res.Err != nil {
					report.Failed++
					report.Errors = append(report.Errors, res.Err)
					continue
				}
				if typ == model.TypeReminder && res.Outcome != OutcomeNotFound {
					report.Trimmed++
				}
			}
		}
	}

	report.TopUp, err = e.TopUp(ctx, target)
	if err != nil {
		return report, err
	}
	return report, nil
}
