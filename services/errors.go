package services

import (
	"errors"
	"fmt"
	"time"

	"stars-host/models"
)

// ErrGameNotFound is returned when a lifecycle operation names a missing game.
var ErrGameNotFound = errors.New("game not found")

// WorkspaceError means the scratch directory could not be created or removed.
type WorkspaceError struct {
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s: %v", e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error { return e.Err }

// ConfigError means the game options cannot be rendered into a config file.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("game config: %v", e.Err)
	}
	return fmt.Sprintf("game config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// EngineTimeoutError means the engine ran past its budget and was killed.
type EngineTimeoutError struct {
	Timeout time.Duration
	PID     int
}

func (e *EngineTimeoutError) Error() string {
	return fmt.Sprintf("engine (pid %d) did not finish within %s and was killed", e.PID, e.Timeout)
}

// EngineOutputError means the engine left the wrong files behind.
type EngineOutputError struct {
	Pattern string
	Want    int
	Got     int
	Reason  string
}

func (e *EngineOutputError) Error() string {
	if e.Reason != "" {
		return "engine output: " + e.Reason
	}
	return fmt.Sprintf("engine output: expected %d file(s) matching %s, found %d", e.Want, e.Pattern, e.Got)
}

// InvalidStateError rejects a lifecycle operation the game's state does not allow.
type InvalidStateError struct {
	GameID uint
	State  string
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("cannot %s game %d in state %q", e.Op, e.GameID, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ReconciliationAmbiguity is logged when a score had to be filled from
// disagreeing observations in other players' files.
type ReconciliationAmbiguity struct {
	Player  int
	Section models.ScoreSection
	Values  []int
	Chosen  int
}

// IsPermanent reports whether retrying err can never succeed.
func IsPermanent(err error) bool {
	var stateErr *InvalidStateError
	var cfgErr *ConfigError
	return errors.Is(err, ErrGameNotFound) || errors.As(err, &stateErr) || errors.As(err, &cfgErr)
}
