package bus

import "errors"

var (
	ErrNilMessage        = errors.New("bus: message must not be nil")
	ErrNilDispatcher     = errors.New("bus: dispatcher must not be nil")
	ErrInvalidSubscriber = errors.New("bus: invalid subscriber")
)
