// Package result models the outcome of a call to an external provider as a
// tagged value. Provider-facing call sites consume it through Fold so both
// the success and the failure arm are handled at the point of use.
package result

// Result holds either a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure. A nil err yields a zero-value success.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether r carries a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Unwrap returns the conventional pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// Fold maps both arms of r to a single value.
func Fold[T, U any](r Result[T], onOK func(T) U, onErr func(error) U) U {
	if r.err != nil {
		return onErr(r.err)
	}
	return onOK(r.value)
}
