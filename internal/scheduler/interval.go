package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/extmedia/internal/common"
)

// Never disables a job.
const Never = "never"

var named = map[string]time.Duration{
	"hourly":     time.Hour,
	"twicedaily": 12 * time.Hour,
	"daily":      24 * time.Hour,
	"weekly":     7 * 24 * time.Hour,
}

// ParseInterval turns an interval identifier into a period. A zero period
// means the job is disabled.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "0", Never:
		return 0, nil
	}
	if d, ok := named[s]; ok {
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", common.ErrBadInterval, s)
	}
	return d, nil
}
