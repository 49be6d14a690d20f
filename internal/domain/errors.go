package domain

import "fmt"

// NotFoundError represents a missing resource, or a resource that did not
// yet exist at the requested instant.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// BadRequestError represents a client-side validation failure: malformed
// JSON-LD, an unrecognized activity type, a missing required field, or a
// disallowed collection shape. The reason is surfaced to the client.
type BadRequestError struct {
	Reason string
}

func (e BadRequestError) Error() string {
	if e.Reason == "" {
		return "bad request"
	}
	return e.Reason
}

func (e BadRequestError) Is(target error) bool {
	_, ok := target.(BadRequestError)
	if ok {
		return true
	}
	_, ok = target.(*BadRequestError)
	return ok
}

var ErrBadRequest = BadRequestError{}

// NotImplementedError marks a dispatch target that exists so the envelope
// contract stays stable, but carries no semantics yet.
type NotImplementedError struct {
	Feature string
}

func (e NotImplementedError) Error() string {
	if e.Feature == "" {
		return "not implemented"
	}
	return fmt.Sprintf("%s is not implemented", e.Feature)
}

func (e NotImplementedError) Is(target error) bool {
	_, ok := target.(NotImplementedError)
	if ok {
		return true
	}
	_, ok = target.(*NotImplementedError)
	return ok
}

var ErrNotImplemented = NotImplementedError{}
