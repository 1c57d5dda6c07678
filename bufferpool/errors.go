package bufferpool

import "fmt"

// ErrorCode classifies the errors the pool can surface.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeOutOfMemory
	ErrCodeInvalidConfig
	ErrCodeEvictionFailed
)

// PoolError is a typed error carrying the failing operation and its cause.
type PoolError struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error
}

func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

func (e *PoolError) Is(target error) bool {
	t, ok := target.(*PoolError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newPoolError(code ErrorCode, op, message string, err error) *PoolError {
	return &PoolError{Code: code, Op: op, Message: message, Err: err}
}

// OutOfMemoryError is raised when SetLimit cannot free enough memory to
// honor the requested limit in either of its two eviction passes. It
// carries the limit that was requested and the caller-supplied suffix,
// per spec §7.
type OutOfMemoryError struct {
	*PoolError
	Limit  uint64
	Suffix string
}

func newOutOfMemoryError(op string, limit uint64, suffix string) *OutOfMemoryError {
	msg := fmt.Sprintf("could not free up enough memory for the new limit %d%s", limit, suffix)
	return &OutOfMemoryError{
		PoolError: newPoolError(ErrCodeOutOfMemory, op, msg, nil),
		Limit:     limit,
		Suffix:    suffix,
	}
}

// IsErrorCode reports whether err is a *PoolError (or wraps one) with code.
func IsErrorCode(err error, code ErrorCode) bool {
	for err != nil {
		if pe, ok := err.(*PoolError); ok {
			return pe.Code == code
		}
		if oe, ok := err.(*OutOfMemoryError); ok {
			return oe.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
