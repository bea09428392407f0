// Package source defines the external automatic-tracking feed and its implementations.
package source

import (
	"context"
	"fmt"
	"strings"
)

// Authorization is the access state the external source reports.
type Authorization string

const (
	Authorized   Authorization = "authorized"
	Denied       Authorization = "denied"
	Undetermined Authorization = "undetermined"
)

// ParseAuthorization normalizes a status string. Unknown values are Undetermined.
func ParseAuthorization(s string) Authorization {
	switch Authorization(strings.ToLower(strings.TrimSpace(s))) {
	case Authorized:
		return Authorized
	case Denied:
		return Denied
	default:
		return Undetermined
	}
}

// Source is an external aggregator of daily metric totals, such as a device's
// step counter. Every call may fail; callers must have a manual fallback.
type Source interface {
	AuthorizationStatus(ctx context.Context) (Authorization, error)
	// DailyAggregate returns the metric's total for the day key (YYYY-MM-DD).
	DailyAggregate(ctx context.Context, metric, day string) (float64, error)
}

// MetricError reports a failed aggregate lookup.
type MetricError struct {
	Metric string
	Day    string
	Err    error
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("source: %s on %s: %v", e.Metric, e.Day, e.Err)
}

func (e *MetricError) Unwrap() error {
	return e.Err
}
