package events

import "time"

// retrySchedule spaces out redelivery attempts. Index is the number of
// attempts already made.
var retrySchedule = []time.Duration{
	0,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	3 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
}

// RetryDelay returns how long to wait before the next attempt.
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= len(retrySchedule) {
		return retrySchedule[len(retrySchedule)-1]
	}
	return retrySchedule[attempts]
}
