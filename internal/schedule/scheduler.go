// Package schedule computes when a campaign's next dispatch should
// fire. ComputeNextRun is pure; the lifecycle controller owns the
// status side effects.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/benchwire/hotlist/internal/errs"
	"github.com/benchwire/hotlist/internal/model"
)

// ComputeNextRun returns the next dispatch instant for the campaign at
// or after now. It fails with a SchedulingError when the schedule
// configuration is missing required fields for the chosen type or when
// the computed run would land past the configured end date.
func ComputeNextRun(c *model.Campaign, now time.Time) (time.Time, error) {
	switch c.ScheduleType {
	case model.ScheduleImmediate:
		return now, nil

	case model.ScheduleDaily:
		hour, min, loc, err := clockAndZone(&c.Schedule)
		if err != nil {
			return time.Time{}, err
		}
		local := now.In(loc)
		next := time.Date(local.Year(), local.Month(), local.Day(), hour, min, 0, 0, loc)
		if next.Before(now) {
			next = next.AddDate(0, 0, 1)
		}
		return clampEnd(&c.Schedule, next)

	case model.ScheduleWeekly, model.ScheduleBiWeekly:
		hour, min, loc, err := clockAndZone(&c.Schedule)
		if err != nil {
			return time.Time{}, err
		}
		if c.Schedule.Days == 0 {
			return time.Time{}, errs.NewScheduling("%s schedule requires at least one day of week", c.ScheduleType)
		}

		local := now.In(loc)
		// Bi-weekly needs up to 4 weeks of lookahead when the nearest
		// matching day falls in an off week.
		for i := 0; i < 28; i++ {
			day := local.AddDate(0, 0, i)
			next := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, loc)
			if next.Before(now) {
				continue
			}
			if !c.Schedule.Days.Contains(next.Weekday()) {
				continue
			}
			if c.ScheduleType == model.ScheduleBiWeekly && !weekParityMatches(c.AnchorAt, next, loc) {
				continue
			}
			return clampEnd(&c.Schedule, next)
		}
		return time.Time{}, errs.NewScheduling("no matching day within the next 4 weeks")

	case model.ScheduleCustom:
		if c.Schedule.IntervalHours < 1 {
			return time.Time{}, errs.NewScheduling("custom schedule requires an interval of at least 1 hour")
		}
		if c.Schedule.MaxOccurrences > 0 && c.OccurrenceCount >= c.Schedule.MaxOccurrences {
			return time.Time{}, errs.NewScheduling("all %d occurrences have run", c.Schedule.MaxOccurrences)
		}
		// First run fires as soon as the campaign is scheduled;
		// subsequent runs are lastRun + interval.
		next := now
		if c.LastRunAt != nil {
			next = c.LastRunAt.Add(time.Duration(c.Schedule.IntervalHours) * time.Hour)
		}
		return clampEnd(&c.Schedule, next)
	}

	return time.Time{}, errs.NewScheduling("unknown schedule type: %s", c.ScheduleType)
}

// Exhausted reports whether a recurring schedule has no runs left
// after the pass that just finished. ComputeNextRun failing with a
// SchedulingError on a previously valid schedule means the same thing;
// this is the cheap check the dispatch engine uses post-pass.
func Exhausted(c *model.Campaign, now time.Time) bool {
	if !c.ScheduleType.Recurring() {
		return true
	}
	_, err := ComputeNextRun(c, now)
	return err != nil
}

func clockAndZone(cfg *model.ScheduleConfig) (hour, min int, loc *time.Location, err error) {
	if cfg.Time == "" {
		return 0, 0, nil, errs.NewScheduling("schedule requires a time of day")
	}
	t, err := time.Parse("15:04", cfg.Time)
	if err != nil {
		return 0, 0, nil, errs.NewScheduling("invalid time of day %q: expected HH:MM", cfg.Time)
	}
	if cfg.Timezone == "" {
		return 0, 0, nil, errs.NewScheduling("schedule requires a timezone")
	}
	loc, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return 0, 0, nil, errs.NewScheduling("unknown timezone %q", cfg.Timezone)
	}
	return t.Hour(), t.Minute(), loc, nil
}

func clampEnd(cfg *model.ScheduleConfig, next time.Time) (time.Time, error) {
	if cfg.EndDate != nil && next.After(*cfg.EndDate) {
		return time.Time{}, errs.NewScheduling("next run %s is after the end date %s",
			next.Format(time.RFC3339), cfg.EndDate.Format(time.RFC3339))
	}
	return next, nil
}

// weekParityMatches reports whether candidate falls in the same
// alternating week as the anchor (the first scheduled week). A nil
// anchor matches any week; scheduling stamps the anchor on first use.
func weekParityMatches(anchor *time.Time, candidate time.Time, loc *time.Location) bool {
	if anchor == nil {
		return true
	}
	weeks := weekStart(candidate.In(loc)).Sub(weekStart(anchor.In(loc))).Hours() / (24 * 7)
	return int(math.Round(weeks))%2 == 0
}

// weekStart returns midnight of the Sunday beginning t's week
func weekStart(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// Describe returns a human summary of the schedule for list views
func Describe(c *model.Campaign) string {
	switch c.ScheduleType {
	case model.ScheduleImmediate:
		return "immediate"
	case model.ScheduleDaily:
		return fmt.Sprintf("daily at %s %s", c.Schedule.Time, c.Schedule.Timezone)
	case model.ScheduleWeekly:
		return fmt.Sprintf("weekly on %s at %s %s", c.Schedule.Days, c.Schedule.Time, c.Schedule.Timezone)
	case model.ScheduleBiWeekly:
		return fmt.Sprintf("every other week on %s at %s %s", c.Schedule.Days, c.Schedule.Time, c.Schedule.Timezone)
	case model.ScheduleCustom:
		return fmt.Sprintf("every %dh", c.Schedule.IntervalHours)
	}
	return string(c.ScheduleType)
}
