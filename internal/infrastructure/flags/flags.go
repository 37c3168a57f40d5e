// Package flags provides the environment-backed feature flag source used by
// the worker binary. A flag named "growth_channels_v1" is enabled when
// FLAG_GROWTH_CHANNELS_V1 is truthy.
package flags

import (
	"context"
	"strings"

	"github.com/draftpress/draftpress/internal/env"
)

// Env resolves feature flags from environment variables.
type Env struct{}

// IsEnabled reports the flag's state. Lookups never fail; an unset variable
// means disabled.
func (Env) IsEnabled(_ context.Context, flag string) (bool, error) {
	key := "FLAG_" + strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, flag))
	return env.Truthy(key), nil
}
