package retry

import "context"

// Once calls the RPC a single time and surfaces its error as is. Used when
// RETRY_ENABLED is false and as the fallback for a transport built without a
// strategy.
type Once struct{}

// NewOnce returns the single-attempt strategy
func NewOnce() *Once {
	return &Once{}
}

// Execute runs operation unless ctx is already done
func (Once) Execute(ctx context.Context, operation Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return operation()
}

// Name returns the strategy name
func (Once) Name() string {
	return "Once"
}
