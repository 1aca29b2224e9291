package models

import (
	"testing"
	"time"
)

func TestPostingScheduleContains(t *testing.T) {
	schedule := &PostingSchedule{
		BrandID: "b-1",
		Windows: map[time.Weekday][]PostingWindow{
			time.Tuesday: {
				{Start: "09:00", End: "11:00"},
				{Start: "18:00", End: "20:00"},
			},
		},
	}

	tuesday := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		hour, minute int
		want         bool
	}{
		{9, 0, true},    // inclusive start
		{10, 59, true},  // inside
		{11, 0, false},  // exclusive end
		{17, 59, false}, // between windows
		{19, 30, true},  // second window
	}
	for _, tc := range cases {
		at := tuesday.Add(time.Duration(tc.hour)*time.Hour + time.Duration(tc.minute)*time.Minute)
		if got := schedule.Contains(at); got != tc.want {
			t.Errorf("Contains(%02d:%02d) = %v, want %v", tc.hour, tc.minute, got, tc.want)
		}
	}

	// Different weekday with no windows at all.
	wednesday := tuesday.AddDate(0, 0, 1).Add(10 * time.Hour)
	if schedule.Contains(wednesday) {
		t.Error("Wednesday has no windows and must not match")
	}
}

func TestPostingScheduleHasWindows(t *testing.T) {
	var nilSchedule *PostingSchedule
	if nilSchedule.HasWindows() {
		t.Error("nil schedule has no windows")
	}
	empty := &PostingSchedule{BrandID: "b-1", Windows: map[time.Weekday][]PostingWindow{}}
	if empty.HasWindows() {
		t.Error("empty schedule has no windows")
	}
}
