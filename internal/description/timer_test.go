package description

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr string
		kind string
		ok   bool
	}{
		{"0 */5 * * * *", ScheduleCron, true},
		{"*/5 * * * *", ScheduleCron, true},
		{"@hourly", ScheduleCron, true},
		{"@every 90s", ScheduleCron, true},
		{"00:05:00", ScheduleInterval, true},
		{"1.00:00:00", ScheduleInterval, true},
		{"00:00:00", "", false},
		{"24:00:00", "", false},
		{"", "", false},
		{"not a schedule", "", false},
		{"0 0 0 * * * *", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			if !tt.ok {
				if err == nil {
					t.Errorf("ParseSchedule(%q): expected error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.expr, err)
			}
			if s.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", s.Kind, tt.kind)
			}
		})
	}
}

func TestScheduleNextOccurrences(t *testing.T) {
	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	cronSched, err := ParseSchedule("0 */15 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	got := cronSched.NextOccurrences(from, 3)
	want := []time.Time{
		from.Add(15 * time.Minute),
		from.Add(30 * time.Minute),
		from.Add(45 * time.Minute),
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("occurrence %d = %v, want %v", i, got[i], want[i])
		}
	}

	interval, err := ParseSchedule("00:10:00")
	if err != nil {
		t.Fatal(err)
	}
	if next := interval.Next(from); !next.Equal(from.Add(10 * time.Minute)) {
		t.Errorf("interval next = %v", next)
	}
}

func TestNewTimerInfo(t *testing.T) {
	s, _ := ParseSchedule("0 0 * * * *") // hourly on the hour
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	first := NewTimerInfo(s, time.Time{}, now)
	if first.IsPastDue || first.ScheduleStatus != nil {
		t.Errorf("first run = %+v", first)
	}

	onTime := NewTimerInfo(s, now.Add(-time.Hour), now)
	if onTime.IsPastDue {
		t.Error("on-time invocation should not be past due")
	}
	if !onTime.ScheduleStatus.Next.Equal(now.Add(time.Hour)) {
		t.Errorf("next = %v", onTime.ScheduleStatus.Next)
	}

	late := NewTimerInfo(s, now.Add(-3*time.Hour), now)
	if !late.IsPastDue {
		t.Error("missed occurrences should be past due")
	}
}
