package description

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	ScheduleCron     = "cron"
	ScheduleInterval = "interval"
)

// Schedule is a parsed timer trigger schedule.
type Schedule struct {
	Kind string
	Expr string
	cron.Schedule
}

// Six-field expressions carry seconds first, as in "0 */5 * * * *".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// [d.]hh:mm:ss
var intervalPattern = regexp.MustCompile(`^(?:(\d+)\.)?(\d{1,2}):(\d{2}):(\d{2})$`)

// ParseSchedule accepts a cron expression (5 or 6 fields, or a descriptor
// such as @hourly or @every 5m) or a fixed interval "hh:mm:ss".
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("empty schedule")
	}
	if m := intervalPattern.FindStringSubmatch(expr); m != nil {
		d, err := intervalDuration(m)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Kind: ScheduleInterval, Expr: expr, Schedule: cron.Every(d)}, nil
	}
	s, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return Schedule{Kind: ScheduleCron, Expr: expr, Schedule: s}, nil
}

func intervalDuration(m []string) (time.Duration, error) {
	var days int
	if m[1] != "" {
		days, _ = strconv.Atoi(m[1])
	}
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	seconds, _ := strconv.Atoi(m[4])
	if hours > 23 || minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid interval %q", m[0])
	}
	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if d < time.Second {
		return 0, fmt.Errorf("interval %q must be at least one second", m[0])
	}
	return d, nil
}

// ScheduleStatus records the last and next occurrences of a timer.
type ScheduleStatus struct {
	Last        time.Time `json:"last"`
	Next        time.Time `json:"next"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// TimerInfo is the value passed to a timer-triggered function.
type TimerInfo struct {
	Schedule       Schedule        `json:"-"`
	ScheduleStatus *ScheduleStatus `json:"scheduleStatus,omitempty"`
	IsPastDue      bool            `json:"isPastDue"`
}

// NewTimerInfo computes the timer status for an invocation happening at
// now. last is the previous occurrence, zero when the timer never fired.
// The timer is past due when an occurrence after last was missed.
func NewTimerInfo(s Schedule, last, now time.Time) TimerInfo {
	info := TimerInfo{Schedule: s}
	if last.IsZero() {
		return info
	}
	expected := s.Next(last)
	info.IsPastDue = expected.Before(now.Add(-time.Second))
	info.ScheduleStatus = &ScheduleStatus{
		Last:        last,
		Next:        s.Next(now),
		LastUpdated: now,
	}
	return info
}

// NextOccurrences returns the next n fire times after from.
func (s Schedule) NextOccurrences(from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = s.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
