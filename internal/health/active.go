package health

import (
	"context"
	"time"
)

// Watch runs the checks every interval until ctx ends and calls onChange for
// each check whose status differs from the previous round. The first round
// reports every check.
func (c *Checker) Watch(ctx context.Context, interval time.Duration, onChange func(name string, status string)) {
	if interval <= 0 || onChange == nil {
		return
	}
	last := map[string]string{}
	probe := func() {
		result := c.Run(ctx)
		for name, status := range result.Checks {
			if previous, seen := last[name]; !seen || previous != status {
				onChange(name, status)
			}
			last[name] = status
		}
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}
