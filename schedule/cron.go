package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule yields activation times for a parsed cron expression
type CronSchedule interface {
	// Next returns the first activation strictly after the given instant
	Next(after time.Time) time.Time
}

// CronParser turns cron expressions into schedules. The daemon wires in the
// robfig-backed implementation; tests may substitute their own.
type CronParser interface {
	Parse(expression string) (CronSchedule, error)
}

// NewCronParser returns a parser for standard five-field cron expressions
// plus descriptors such as @daily and @hourly.
func NewCronParser() CronParser {
	return robfigParser{
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
	}
}

type robfigParser struct {
	parser cron.Parser
}

func (p robfigParser) Parse(expression string) (CronSchedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	return robfigSchedule{inner: sched}, nil
}

type robfigSchedule struct {
	inner cron.Schedule
}

func (s robfigSchedule) Next(after time.Time) time.Time {
	return s.inner.Next(after)
}
