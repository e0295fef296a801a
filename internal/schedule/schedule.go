package schedule

import "time"

// Next returns the first daily fire time for hour:minute in loc strictly
// after now.
func Next(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	fire := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
