package field

import "errors"

var (
	// ErrUpdateInProgress is returned when an operation needs exclusive use of
	// the buffers while an update pass is open.
	ErrUpdateInProgress = errors.New("field: update already in progress")

	// ErrStaleUpdate is returned when an update is used after Commit or Abort.
	ErrStaleUpdate = errors.New("field: update already committed or aborted")

	// ErrRowRange is returned by ApplyRows for a range outside [0,H].
	ErrRowRange = errors.New("field: row range out of bounds")
)
