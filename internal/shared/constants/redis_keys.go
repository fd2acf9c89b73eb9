package constants

import "fmt"

// Redis keys follow ticketflow:{module}:{purpose}:{identifier}
const CACHE_PREFIX = "ticketflow"

const (
	CACHE_KEY_SEAT_AVAILABILITY = CACHE_PREFIX + ":inventory:availability:event:" // + event-id
	RATE_LIMIT_KEY_PREFIX       = CACHE_PREFIX + ":ratelimit:"                    // + ip:type
	JOB_LOCK_KEY_PREFIX         = CACHE_PREFIX + ":jobs:lock:"                    // + job name
)

func SeatAvailabilityKey(eventID string) string {
	return CACHE_KEY_SEAT_AVAILABILITY + eventID
}

func RateLimitKey(clientIP, limitType string) string {
	return fmt.Sprintf("%s%s:%s", RATE_LIMIT_KEY_PREFIX, clientIP, limitType)
}

func JobLockKey(job string) string {
	return JOB_LOCK_KEY_PREFIX + job
}
