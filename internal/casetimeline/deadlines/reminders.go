package deadlines

import "time"

// ReminderOffsets are the lead times before a deadline, in send order.
var ReminderOffsets = []time.Duration{
	7 * 24 * time.Hour,
	3 * 24 * time.Hour,
	24 * time.Hour,
}

// ScheduleReminders returns the reminder send times for a deadline due at
// dueAt that are strictly after now. Past offsets are dropped, never backfilled.
func ScheduleReminders(dueAt, now time.Time) []time.Time {
	out := make([]time.Time, 0, len(ReminderOffsets))
	for _, offset := range ReminderOffsets {
		sendAt := dueAt.Add(-offset)
		if sendAt.After(now) {
			out = append(out, sendAt)
		}
	}
	return out
}
