package scheduler

import (
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/domain"
)

// ErrUnknownFrequency is returned for a frequency without a cron mapping.
var ErrUnknownFrequency = errors.New("unknown frequency")

var frequencyCron = map[domain.Frequency]string{
	domain.FrequencyRealtime: "*/5 * * * *",
	domain.FrequencyHourly:   "0 * * * *",
	domain.Frequency6h:       "0 */6 * * *",
	domain.FrequencyDaily:    "0 6 * * *",
	domain.FrequencyWeekly:   "0 6 * * 1",
}

// CronExpression maps a source frequency onto a five-field cron expression.
func CronExpression(f domain.Frequency) (string, error) {
	expr, ok := frequencyCron[f]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, f)
	}
	return expr, nil
}
