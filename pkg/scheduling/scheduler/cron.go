package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/scheduling/workerpool"
)

// cronParser accepts six fields with seconds plus descriptors:
//
//	"*/5 * * * * *"     - Every 5 seconds
//	"0 30 14 * * 1-5"   - 2:30 PM on weekdays
//	"0 0 9 1 * *"       - 9:00 AM on the 1st of every month
//	"@daily"            - Every day at midnight
//	"@every 90s"        - Every 90 seconds
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronOptions provides configuration for cron-scheduled tasks.
type CronOptions struct {
	// MaxRuns limits the number of times the task will execute (0 = unlimited)
	MaxRuns int

	// TimeZone specifies the timezone for cron expression evaluation.
	// Defaults to Config.Location.
	TimeZone *time.Location
}

// CronDescription provides information about a cron expression.
type CronDescription struct {
	Expression  string
	Description string
	NextRuns    []time.Time
	TimeZone    string
}

// ValidateCron reports whether expr is a valid cron expression.
func ValidateCron(expr string) error {
	schedule, err := parseCron(expr)
	if err != nil {
		return err
	}
	if schedule.Next(time.Now()).IsZero() {
		return tperrors.NewValidationError("scheduler", "cron", expr, "never matches a future time")
	}
	return nil
}

// DescribeCron returns the next n run times of expr after from.
func DescribeCron(expr string, from time.Time, n int) (CronDescription, error) {
	schedule, err := parseCron(expr)
	if err != nil {
		return CronDescription{}, err
	}

	nextRuns := make([]time.Time, 0, n)
	current := from
	for i := 0; i < n; i++ {
		current = schedule.Next(current)
		if current.IsZero() {
			break
		}
		nextRuns = append(nextRuns, current)
	}

	return CronDescription{
		Expression:  expr,
		Description: describe(expr),
		NextRuns:    nextRuns,
		TimeZone:    from.Location().String(),
	}, nil
}

func parseCron(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, tperrors.NewValidationError("scheduler", "cron", expr, "cannot be empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, tperrors.NewValidationError("scheduler", "cron", expr, err.Error()).
			WithHint("expected 6 fields with seconds or a descriptor such as @hourly")
	}
	return schedule, nil
}

func describe(expr string) string {
	switch expr {
	case "@yearly", "@annually":
		return "Once a year (January 1st at midnight)"
	case "@monthly":
		return "Once a month (1st day at midnight)"
	case "@weekly":
		return "Once a week (Sunday at midnight)"
	case "@daily", "@midnight":
		return "Once a day (at midnight)"
	case "@hourly":
		return "Once an hour (at minute 0)"
	}
	return fmt.Sprintf("Custom schedule: %s", expr)
}

func (s *scheduler) ScheduleCronWithOptions(id string, cronExpr string, task workerpool.Task, options CronOptions) (string, error) {
	id, err := checkTask(id, task)
	if err != nil {
		return "", err
	}
	if err := validation.ValidateNonNegative("scheduler", "MaxRuns", options.MaxRuns); err != nil {
		return "", err
	}
	schedule, err := parseCron(cronExpr)
	if err != nil {
		return "", err
	}

	location := options.TimeZone
	if location == nil {
		location = s.location
	}

	now := time.Now()
	runAt := schedule.Next(now.In(location))
	if runAt.IsZero() {
		return "", tperrors.NewValidationError("scheduler", "cron", cronExpr, "never matches a future time")
	}
	if err := s.add(&scheduledTask{
		id:       id,
		task:     task,
		runAt:    runAt,
		cronExpr: cronExpr,
		schedule: schedule,
		location: location,
		maxRuns:  options.MaxRuns,
		created:  now,
	}); err != nil {
		return "", err
	}
	return id, nil
}
