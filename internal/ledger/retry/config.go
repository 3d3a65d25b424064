package retry

import "time"

// Config holds retry configuration
type Config struct {
	Enabled      bool          `env:"ENABLED" envDefault:"true"`     // Enable/disable retry mechanism
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`    // Maximum number of retry attempts
	InitialDelay time.Duration `env:"INITIAL_DELAY" envDefault:"1s"` // Initial delay before first retry
	MaxDelay     time.Duration `env:"MAX_DELAY" envDefault:"10s"`    // Maximum delay between retries
}
