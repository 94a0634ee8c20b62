package httpadapter

import (
	"context"
	"fmt"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Check is a named readiness dependency.
type Check struct {
	Name    string
	Checker sharedobs.ReadinessChecker
}

// Checks is ready when every dependency is ready. Dependencies are checked
// in order and the first failure is reported with its name.
type Checks []Check

func (c Checks) CheckReadiness(ctx context.Context) error {
	for _, check := range c {
		if err := check.Checker.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%s: %w", check.Name, err)
		}
	}
	return nil
}
