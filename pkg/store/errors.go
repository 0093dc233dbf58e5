package store

import "errors"

// ErrStreamNotFound is returned when a stream row does not exist.
var ErrStreamNotFound = errors.New("stream not found")
