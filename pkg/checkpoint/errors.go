package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCheckpoint means nothing was saved under the key yet.
	ErrNoCheckpoint = errors.New("no checkpoint")

	// ErrConfigMismatch means a checkpoint exists but belongs to a crawl with
	// different parameters. The caller starts a fresh crawl.
	ErrConfigMismatch = errors.New("checkpoint configuration mismatch")

	// ErrCheckpointCorrupt means a checkpoint exists but cannot be trusted.
	// It is never treated as absent; the operator has to deal with it.
	ErrCheckpointCorrupt = errors.New("checkpoint corrupt")
)

// MismatchError describes which crawl parameter differs from the checkpoint.
type MismatchError struct {
	Field  string
	Stored string
	Wanted string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checkpoint %s is %q, run wants %q", e.Field, e.Stored, e.Wanted)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrConfigMismatch
}

type corruptError struct {
	key    string
	reason string
	err    error
}

func (e *corruptError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("checkpoint %s corrupt: %s: %v", e.key, e.reason, e.err)
	}
	return fmt.Sprintf("checkpoint %s corrupt: %s", e.key, e.reason)
}

func (e *corruptError) Is(target error) bool {
	return target == ErrCheckpointCorrupt
}

func (e *corruptError) Unwrap() error {
	return e.err
}
