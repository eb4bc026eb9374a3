package availability

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// SlotID returns the stable identifier of a slot.
func SlotID(date string, start string, duration int) string {
	return fmt.Sprintf("%s_%s_%d", date, start, duration)
}

// ComputeSlots enumerates every candidate slot on business days between
// rangeStart and rangeEnd (both days inclusive, evaluated in the business
// timezone) and marks each one unavailable when it overlaps a busy interval.
func ComputeSlots(rangeStart, rangeEnd time.Time, busy []Interval, hours BusinessHours) []Slot {
	loc := hours.Location
	if loc == nil {
		loc = time.UTC
	}

	first := startOfDay(rangeStart.In(loc))
	last := startOfDay(rangeEnd.In(loc))

	var slots []Slot
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		slots = append(slots, daySlots(day, busy, hours.OpenHour, hours.CloseHour)...)
	}
	return slots
}

func daySlots(day time.Time, busy []Interval, openHour, closeHour int) []Slot {
	y, m, d := day.Date()
	loc := day.Location()
	closing := time.Date(y, m, d, closeHour, 0, 0, 0, loc)
	date := day.Format(dateLayout)

	var out []Slot
	for minute := openHour * 60; minute < closeHour*60; minute += StepMinutes {
		start := time.Date(y, m, d, 0, minute, 0, 0, loc)
		for _, dur := range Durations {
			end := start.Add(time.Duration(dur) * time.Minute)
			if end.After(closing) {
				continue
			}

			candidate := Interval{Start: start, End: end}
			startClock := start.Format(clockLayout)
			out = append(out, Slot{
				ID:          SlotID(date, startClock, dur),
				Date:        date,
				StartTime:   startClock,
				EndTime:     end.Format(clockLayout),
				Start:       start,
				End:         end,
				Duration:    dur,
				IsAvailable: !overlapsAny(candidate, busy),
			})
		}
	}
	return out
}

func overlapsAny(c Interval, busy []Interval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
