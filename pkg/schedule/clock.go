package schedule

import (
	"fmt"
	"time"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/models"
	"github.com/robfig/cron/v3"
)

// MinFireIntervalSeconds is the floor on how close together two cron
// fires may be. Anything tighter is rejected at configuration time.
const MinFireIntervalSeconds = 60

// fireScanCount is how many successive fires the frequency guard inspects
const fireScanCount = 5

// cronParser accepts standard five-field expressions plus an optional
// leading seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// frequencyCron maps non-custom frequencies to fixed cron equivalents
var frequencyCron = map[models.Frequency]string{
	models.FrequencyDaily:   "0 0 * * *",
	models.FrequencyWeekly:  "0 0 * * 0",
	models.FrequencyMonthly: "0 0 1 * *",
}

// Clock computes schedule run times. All arithmetic happens in the
// schedule's configured timezone; results are normalized to UTC for
// storage and comparison.
type Clock struct{}

// NewClock creates a schedule clock
func NewClock() *Clock {
	return &Clock{}
}

// Validate checks a schedule config without computing anything. It rejects
// unparseable cron expressions, unknown timezones and expressions that fire
// more often than once per minute.
func (c *Clock) Validate(config models.ScheduleConfig) error {
	if config.Frequency == models.FrequencyImmediate {
		return nil
	}

	expr, err := c.expression(config)
	if err != nil {
		return err
	}

	loc, err := c.location(config)
	if err != nil {
		return err
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return domain.NewInvalidScheduleConfigError(
			fmt.Sprintf("cron expression %q is not valid", expr), err)
	}

	// Scan a handful of successive fires; the tightest adjacent gap caps
	// the schedule's worst-case execution rate.
	prev := sched.Next(time.Now().In(loc))
	for i := 0; i < fireScanCount; i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		if next.Sub(prev) < MinFireIntervalSeconds*time.Second {
			return domain.NewScheduleTooFrequentError(MinFireIntervalSeconds)
		}
		prev = next
	}

	return nil
}

// NextRun returns the first run time strictly after the reference instant,
// in UTC. A nil result means the schedule has no future run (past its end
// date). Immediate schedules run once, at the reference instant.
func (c *Clock) NextRun(config models.ScheduleConfig, after time.Time) (*time.Time, error) {
	if config.Frequency == models.FrequencyImmediate {
		at := after.UTC()
		return &at, nil
	}

	expr, err := c.expression(config)
	if err != nil {
		return nil, err
	}

	loc, err := c.location(config)
	if err != nil {
		return nil, err
	}

	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, domain.NewInvalidScheduleConfigError(
			fmt.Sprintf("cron expression %q is not valid", expr), err)
	}

	ref := after
	if config.StartDate != nil && config.StartDate.After(ref) {
		ref = *config.StartDate
	}

	next := sched.Next(ref.In(loc))
	if next.IsZero() {
		return nil, nil
	}
	if config.EndDate != nil && next.After(*config.EndDate) {
		return nil, nil
	}

	utc := next.UTC()
	return &utc, nil
}

// Advance returns the run that follows a fire at the given instant, in
// UTC. Immediate schedules fire exactly once, so their advancement is
// always nil; callers disarm the schedule when no future run exists.
func (c *Clock) Advance(config models.ScheduleConfig, after time.Time) (*time.Time, error) {
	if config.Frequency == models.FrequencyImmediate {
		return nil, nil
	}
	return c.NextRun(config, after)
}

// expression resolves the effective cron expression for the config
func (c *Clock) expression(config models.ScheduleConfig) (string, error) {
	if config.Frequency == models.FrequencyCustom {
		if config.CronExpression == "" {
			return "", domain.NewInvalidScheduleConfigError(
				"custom frequency requires a cron expression", nil)
		}
		return config.CronExpression, nil
	}
	expr, ok := frequencyCron[config.Frequency]
	if !ok {
		return "", domain.NewInvalidScheduleConfigError(
			fmt.Sprintf("frequency %q is not supported", config.Frequency), nil)
	}
	return expr, nil
}

// location resolves the configured IANA timezone, defaulting to UTC
func (c *Clock) location(config models.ScheduleConfig) (*time.Location, error) {
	if config.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return nil, domain.NewInvalidScheduleConfigError(
			fmt.Sprintf("timezone %q is not valid", config.Timezone), err)
	}
	return loc, nil
}
