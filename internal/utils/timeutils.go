package utils

import "time"

// LookbackStart returns the unix second that opens a lookback window ending at now.
// A non-positive window yields zero, meaning unbounded.
func LookbackStart(now time.Time, seconds int) int64 {
	if seconds <= 0 {
		return 0
	}
	return now.Add(-time.Duration(seconds) * time.Second).Unix()
}

// Millis converts a millisecond count into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
