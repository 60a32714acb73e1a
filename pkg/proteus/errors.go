package proteus

import (
	"errors"
	"fmt"
)

// AuthReason says why an AuthError happened.
type AuthReason string

const (
	// ReasonBadCredentials means the login endpoint rejected the request.
	ReasonBadCredentials AuthReason = "bad credentials"
	// ReasonUnauthenticated means a call was made without a valid session.
	ReasonUnauthenticated AuthReason = "unauthenticated"
	// ReasonLoginInProgress means another login on the same client had not
	// finished yet.
	ReasonLoginInProgress AuthReason = "login already in progress"
)

var (
	// ErrBadCredentials matches any AuthError with ReasonBadCredentials.
	ErrBadCredentials = &AuthError{Reason: ReasonBadCredentials}
	// ErrUnauthenticated matches any AuthError with ReasonUnauthenticated.
	ErrUnauthenticated = &AuthError{Reason: ReasonUnauthenticated}
	// ErrLoginInProgress matches any AuthError with ReasonLoginInProgress.
	ErrLoginInProgress = &AuthError{Reason: ReasonLoginInProgress}

	ErrEmptyBatch         = errors.New("batch must contain at least one call")
	ErrEmptyProcedure     = errors.New("procedure name cannot be empty")
	ErrMissingInverterID  = errors.New("inverter id is not configured")
	ErrMissingHouseholdID = errors.New("household id is not configured")
	ErrUnknownOperation   = errors.New("unknown operation")
)

// AuthError is returned when logging in fails or a call is attempted without
// a session. Status is only set for ReasonBadCredentials.
type AuthError struct {
	Reason AuthReason
	Status int
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("proteus auth error: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("proteus auth error: %s", e.Reason)
}

// Is matches on Reason so that errors.Is(err, ErrUnauthenticated) works
// regardless of Status.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// TransportError wraps a failure to get any response from the backend, like
// DNS, TLS, a reset connection or a cancelled context.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("proteus %s transport error: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RPCError is returned when a batch request gets a non-200 response. Body is
// the raw response body.
type RPCError struct {
	Status int
	Body   string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("proteus rpc error: status %d", e.Status)
}
