package timeparser

import (
	"fmt"
	"time"
)

// ParseInstant parses an ISO-8601 instant string as found in the meter dumps
// and normalizes it to UTC. Offsets other than Z are accepted.
func ParseInstant(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano, // 2023-02-01T01:30:00.000Z
		time.RFC3339,     // 2023-02-01T01:30:00Z
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse instant '%s': %w", value, lastErr)
}
