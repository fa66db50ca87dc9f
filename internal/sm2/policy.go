package sm2

// Policy holds the tunable constants of the scheduler.
type Policy struct {
	DefaultEaseFactor  float64 `koanf:"default_ease_factor" validate:"gtefield=MinEaseFactor"`
	MinEaseFactor      float64 `koanf:"min_ease_factor" validate:"gt=0"`
	FirstIntervalDays  int     `koanf:"first_interval_days" validate:"gte=1"`
	SecondIntervalDays int     `koanf:"second_interval_days" validate:"gte=1"`
	MaxIntervalDays    int     `koanf:"max_interval_days" validate:"gtefield=SecondIntervalDays"`
	// DailyNewCap is only enforced when an enrollment gate is installed.
	DailyNewCap int `koanf:"daily_new_cap" validate:"gte=0"`
}

// DefaultPolicy returns the stock SM-2 tuning.
func DefaultPolicy() Policy {
	return Policy{
		DefaultEaseFactor:  2.5,
		MinEaseFactor:      1.3,
		FirstIntervalDays:  1,
		SecondIntervalDays: 6,
		MaxIntervalDays:    180,
		DailyNewCap:        10,
	}
}
