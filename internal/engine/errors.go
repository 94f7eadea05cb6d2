package engine

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeInactive = errors.New("challenge is inactive")
	ErrNotStarted        = errors.New("challenge not started by user")
	ErrProfileNotFound   = errors.New("reward profile not found")
	ErrInvalidChallenge  = errors.New("invalid challenge definition")
	ErrCooldownActive    = errors.New("challenge cooldown active")
)

// CooldownError reports how long the caller has to wait before the
// challenge can be started or completed again. It matches ErrCooldownActive.
type CooldownError struct {
	Key       string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("challenge %s cooldown not passed, try again after %d hour(s)", e.Key, e.RemainingHours())
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// RemainingHours rounds the remaining wait up to whole hours.
func (e *CooldownError) RemainingHours() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(e.Remaining.Hours()))
}
