package ranks

import (
	"context"
	"fmt"
)

// RoleMutator grants and revokes roles by name.
type RoleMutator interface {
	AddRole(ctx context.Context, guildID, userID, roleName string) error
	RemoveRole(ctx context.Context, guildID, userID, roleName string) error
}

// Swap grants target and then revokes every other ladder role found in roles,
// leaving the member with exactly one rank. The grant comes first so a failure
// never leaves the member rankless.
func (l *Ladder) Swap(ctx context.Context, mutator RoleMutator, guildID, userID string, roles []string, target string) error {
	if err := l.Validate(target); err != nil {
		return err
	}
	held := l.Held(roles)
	alreadyHeld := false
	for _, name := range held {
		if name == target {
			alreadyHeld = true
		}
	}
	if !alreadyHeld {
		if err := mutator.AddRole(ctx, guildID, userID, target); err != nil {
			return fmt.Errorf("grant %s: %w", target, err)
		}
	}
	for _, name := range held {
		if name == target {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := mutator.RemoveRole(ctx, guildID, userID, name); err != nil {
			return fmt.Errorf("revoke %s: %w", name, err)
		}
	}
	return nil
}
