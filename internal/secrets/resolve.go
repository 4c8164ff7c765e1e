// ABOUTME: Replaces "ssm:<name>" config values with their Parameter Store values
// ABOUTME: AWS is only contacted when at least one value uses the prefix

package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/teams-gateway/internal/config"
)

// Prefix marks a config value as a Parameter Store reference.
const Prefix = "ssm:"

// IsReference reports whether v names a parameter.
func IsReference(v string) bool {
	return strings.HasPrefix(v, Prefix)
}

// GetterFactory creates the parameter getter on first use.
type GetterFactory func(ctx context.Context) (Getter, error)

// field is one secret-capable config value.
type field struct {
	path   string
	target *string
}

func secretFields(cfg *config.Config) []field {
	return []field{
		{"bot.app_id", &cfg.Bot.AppID},
		{"bot.app_password", &cfg.Bot.AppPassword},
		{"auth.api_key", &cfg.Auth.APIKey},
		{"auth.api_key_hash", &cfg.Auth.APIKeyHash},
		{"auth.jwt_secret", &cfg.Auth.JWTSecret},
		{"tailscale.auth_key", &cfg.Tailscale.AuthKey},
	}
}

// ResolveConfig resolves every referenced secret in cfg in place and returns
// how many were resolved. newGetter is only called when there is something
// to resolve.
func ResolveConfig(ctx context.Context, cfg *config.Config, newGetter GetterFactory) (int, error) {
	var pending []field
	for _, f := range secretFields(cfg) {
		if IsReference(*f.target) {
			pending = append(pending, f)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	getter, err := newGetter(ctx)
	if err != nil {
		return 0, err
	}

	for _, f := range pending {
		name := strings.TrimPrefix(*f.target, Prefix)
		value, err := getter.GetParameter(ctx, name)
		if err != nil {
			return 0, fmt.Errorf("resolving %s: %w", f.path, err)
		}
		*f.target = value
	}
	return len(pending), nil
}
