package pack

import "errors"

// ErrPrefix is returned when a packed buffer's leading tag doesn't match
// the prefix the reader expects.
var ErrPrefix = errors.New("pack: prefix mismatch")

// ErrFormat is returned when a packed buffer is truncated or malformed.
var ErrFormat = errors.New("pack: malformed field")
