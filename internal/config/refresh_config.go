package config

import "time"

type RefreshConfig interface {
	GetRefreshInterval() time.Duration
	GetRefreshSafetyBuffer() time.Duration
	GetRefreshRetryBudget() int
}

type Refresh struct{}

var _ RefreshConfig = Refresh{}

func (Refresh) GetRefreshInterval() time.Duration {
	return 15 * time.Minute
}

// GetRefreshSafetyBuffer is subtracted from the interval so renewal lands
// well before the nominal token lifetime.
func (Refresh) GetRefreshSafetyBuffer() time.Duration {
	return 5 * time.Minute
}

func (Refresh) GetRefreshRetryBudget() int {
	return 3
}
