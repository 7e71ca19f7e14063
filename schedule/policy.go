// Package schedule provides the declarative job schedule: recurrence
// policies, the YAML schedule document, and the SQLite-backed store the
// daemon claims due jobs from.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/strata/errors"
)

// Policy types accepted in a schedule document
const (
	PolicyInterval = "interval"
	PolicyDaily    = "daily"
	PolicyWeekly   = "weekly"
	PolicyCron     = "cron"
)

// DefaultIntervalSeconds applies when an interval policy omits seconds, and
// to entries that omit the schedule block entirely.
const DefaultIntervalSeconds = 300

// DefaultCronExpression applies when a cron policy omits the expression
const DefaultCronExpression = "0 0 * * *"

// PolicySpec is the serializable recurrence descriptor. It appears in the
// schedule document under `schedule:` and is persisted verbatim (normalized)
// in the scheduled_jobs table so the store can detect policy changes.
type PolicySpec struct {
	Type       string `yaml:"type" json:"type"`
	Seconds    int    `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	Time       string `yaml:"time,omitempty" json:"time,omitempty"`
	Weekday    string `yaml:"weekday,omitempty" json:"weekday,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
}

// Policy computes run times for one recurrence rule. NextRun is pure: the
// result depends only on the rule and the supplied instant, never on stored
// state or the wall clock.
type Policy interface {
	// NextRun returns the first instant after now at which the job should
	// run, in UTC.
	NextRun(now time.Time) time.Time

	// Spec returns the normalized serializable descriptor for this policy
	Spec() PolicySpec
}

// ParsePolicy validates a descriptor and returns the corresponding policy.
// A nil or empty descriptor means the default interval policy. Cron
// descriptors require a parser; loading one without a parser configured is
// a configuration error rather than a silent fallback.
func ParsePolicy(spec PolicySpec, parser CronParser) (Policy, error) {
	policyType := spec.Type
	if policyType == "" {
		policyType = PolicyInterval
	}

	switch policyType {
	case PolicyInterval:
		seconds := spec.Seconds
		if seconds == 0 {
			seconds = DefaultIntervalSeconds
		}
		if seconds < 0 {
			return nil, errors.NewConfigurationf("interval seconds must be positive, got %d", seconds)
		}
		return IntervalPolicy{Seconds: seconds}, nil

	case PolicyDaily:
		if spec.Time == "" {
			return nil, errors.NewConfigurationf("daily policy requires a time")
		}
		hour, minute, err := parseTimeOfDay(spec.Time)
		if err != nil {
			return nil, err
		}
		return DailyPolicy{Hour: hour, Minute: minute}, nil

	case PolicyWeekly:
		if spec.Weekday == "" {
			return nil, errors.NewConfigurationf("weekly policy requires a weekday")
		}
		if spec.Time == "" {
			return nil, errors.NewConfigurationf("weekly policy requires a time")
		}
		weekday, err := parseWeekday(spec.Weekday)
		if err != nil {
			return nil, err
		}
		hour, minute, err := parseTimeOfDay(spec.Time)
		if err != nil {
			return nil, err
		}
		return WeeklyPolicy{Weekday: weekday, Hour: hour, Minute: minute}, nil

	case PolicyCron:
		expression := spec.Expression
		if expression == "" {
			expression = DefaultCronExpression
		}
		if parser == nil {
			return nil, errors.NewConfigurationf("cron policy requires a cron parser, none configured")
		}
		sched, err := parser.Parse(expression)
		if err != nil {
			return nil, errors.WrapConfiguration(err, "invalid cron expression "+strconv.Quote(expression))
		}
		return CronPolicy{Expression: expression, schedule: sched}, nil

	default:
		return nil, errors.NewConfigurationf("unknown schedule type %q", policyType)
	}
}

// IntervalPolicy runs a fixed number of seconds after each dispatch
type IntervalPolicy struct {
	Seconds int
}

func (p IntervalPolicy) NextRun(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(p.Seconds) * time.Second)
}

func (p IntervalPolicy) Spec() PolicySpec {
	return PolicySpec{Type: PolicyInterval, Seconds: p.Seconds}
}

// DailyPolicy runs once per day at a fixed UTC time
type DailyPolicy struct {
	Hour   int
	Minute int
}

func (p DailyPolicy) NextRun(now time.Time) time.Time {
	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), p.Hour, p.Minute, 0, 0, time.UTC)
	// An exactly-equal instant counts as already passed
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func (p DailyPolicy) Spec() PolicySpec {
	return PolicySpec{Type: PolicyDaily, Time: formatTimeOfDay(p.Hour, p.Minute)}
}

// WeeklyPolicy runs once per week on a fixed weekday at a fixed UTC time
type WeeklyPolicy struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (p WeeklyPolicy) NextRun(now time.Time) time.Time {
	now = now.UTC()
	// Day offset until the target weekday, 0 meaning today
	offset := (int(p.Weekday) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day()+offset, p.Hour, p.Minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

func (p WeeklyPolicy) Spec() PolicySpec {
	return PolicySpec{
		Type:    PolicyWeekly,
		Weekday: strings.ToLower(p.Weekday.String()),
		Time:    formatTimeOfDay(p.Hour, p.Minute),
	}
}

// CronPolicy delegates to a cron schedule produced by the configured parser
type CronPolicy struct {
	Expression string
	schedule   CronSchedule
}

func (p CronPolicy) NextRun(now time.Time) time.Time {
	return p.schedule.Next(now.UTC())
}

func (p CronPolicy) Spec() PolicySpec {
	return PolicySpec{Type: PolicyCron, Expression: p.Expression}
}

// parseTimeOfDay parses "HH:MM" into hour and minute
func parseTimeOfDay(value string) (hour, minute int, err error) {
	hourPart, minutePart, found := strings.Cut(value, ":")
	if !found {
		return 0, 0, errors.NewConfigurationf("invalid time %q, expected HH:MM", value)
	}
	hour, err = strconv.Atoi(hourPart)
	if err != nil {
		return 0, 0, errors.NewConfigurationf("invalid time %q, expected HH:MM", value)
	}
	minute, err = strconv.Atoi(minutePart)
	if err != nil {
		return 0, 0, errors.NewConfigurationf("invalid time %q, expected HH:MM", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.NewConfigurationf("time %q out of range", value)
	}
	return hour, minute, nil
}

func formatTimeOfDay(hour, minute int) string {
	return time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC).Format("15:04")
}

// parseWeekday maps a lowercase weekday name to time.Weekday
func parseWeekday(value string) (time.Weekday, error) {
	switch strings.ToLower(value) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return 0, errors.NewConfigurationf("unknown weekday %q", value)
	}
}
