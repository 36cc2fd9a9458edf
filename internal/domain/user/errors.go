package user

import "errors"

var (
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrNotOwnRecord            = errors.New("record belongs to another employee")
	ErrSelfDecision            = errors.New("cannot decide on your own request")
	ErrMissingIdentity         = errors.New("token carries no user identity")
)
