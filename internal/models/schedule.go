package models

import (
	"time"
)

// PostingWindow is one preferred wall-clock window, "HH:MM" inclusive start,
// exclusive end, in the brand's local time.
type PostingWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PostingSchedule holds a brand's preferred posting windows per weekday.
// It is advisory only: reschedules outside the windows succeed with a note.
type PostingSchedule struct {
	BrandID string                           `json:"brand_id"`
	Windows map[time.Weekday][]PostingWindow `json:"windows"`
}

// HasWindows reports whether any preferred window is configured at all.
func (s *PostingSchedule) HasWindows() bool {
	if s == nil {
		return false
	}
	for _, windows := range s.Windows {
		if len(windows) > 0 {
			return true
		}
	}
	return false
}

// Contains reports whether t falls inside a preferred window for its weekday.
func (s *PostingSchedule) Contains(t time.Time) bool {
	if s == nil {
		return false
	}
	windows := s.Windows[t.Weekday()]
	minute := t.Hour()*60 + t.Minute()
	for _, w := range windows {
		start, okStart := parseWallClock(w.Start)
		end, okEnd := parseWallClock(w.End)
		if !okStart || !okEnd {
			continue
		}
		if minute >= start && minute < end {
			return true
		}
	}
	return false
}

func parseWallClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
