package common

import "github.com/Laisky/errors/v2"

// Error kinds surfaced by the core. Callers classify with errors.Is; extra
// context is attached at call sites with errors.Wrap so the sentinel stays
// matchable.
var (
	// ErrNotFound reports a missing entity (production, tenant, artifact).
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a policy gate denial; the caller cannot retry.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict reports a duplicate create.
	ErrConflict = errors.New("conflict")
	// ErrVersionConflict reports an optimistic-concurrency failure on the
	// production version counter. The workflow engine retries once.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInsufficientQuota reports that the tenant's tier refuses the debit.
	ErrInsufficientQuota = errors.New("insufficient quota")
	// ErrDeclinedByUser reports an export confirm with confirmed=false.
	ErrDeclinedByUser = errors.New("declined by user")
	// ErrMissingPrerequisite reports a stage input selector finding an earlier
	// stage's output absent. Terminal for the production.
	ErrMissingPrerequisite = errors.New("missing prerequisite")
	// ErrStageTransient marks stage worker errors eligible for retry.
	ErrStageTransient = errors.New("stage transient error")
	// ErrStagePermanent marks stage worker errors that fail the production.
	ErrStagePermanent = errors.New("stage permanent error")
	// ErrStageTimeout marks a stage exceeding its wall-clock limit. Treated as
	// transient by the retry policy.
	ErrStageTimeout = errors.New("stage timeout")
	// ErrInvalidInput reports edge validation failures; no state change.
	ErrInvalidInput = errors.New("invalid input")
)

// StageTransientf builds a transient stage error with context.
func StageTransientf(format string, args ...any) error {
	return errors.Wrapf(ErrStageTransient, format, args...)
}

// StagePermanentf builds a permanent stage error with context.
func StagePermanentf(format string, args ...any) error {
	return errors.Wrapf(ErrStagePermanent, format, args...)
}
