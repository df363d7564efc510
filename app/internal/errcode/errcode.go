package errcode

import "github.com/zeebo/errs"

// Error classes for the orchestration core. Configuration and precondition
// errors surface to the caller before any attempt record exists; everything
// else is absorbed into the attempt's terminal state.
var (
	ErrConfiguration   = errs.Class("configuration")
	ErrPrecondition    = errs.Class("precondition")
	ErrTransport       = errs.Class("transport")
	ErrRemoteRejection = errs.Class("remote rejection")
	ErrIO              = errs.Class("io")

	ErrInvalidParams = errs.Class("invalid params")
	ErrRequest       = errs.Class("bad request")
)

var (
	ErrInvalidPwd   = errs.New("account or password incorrect")
	ErrUserDisabled = errs.New("account disabled")
	ErrUnauthorized = errs.New("unauthorized")
	ErrForbidden    = errs.New("permission denied")
)
