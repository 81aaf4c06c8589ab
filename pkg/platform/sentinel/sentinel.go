package sentinel

import "errors"

// Sentinel errors for storage facts. KV backends return these (optionally
// wrapped); vault services translate them into coded domain errors.
//
//   - ErrNotFound: key has no value
//   - ErrConflict: a write raced a concurrent writer and was not applied
//   - ErrUnavailable: backend temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
