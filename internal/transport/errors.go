package transport

import (
	"errors"
	"fmt"
)

// Op names a transport operation. It doubles as the notification key.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) subject() string {
	if o == OpList {
		return "fetch transactions"
	}
	return string(o) + " transaction"
}

// Kind classifies a transport failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork means no response was received.
	KindNetwork
	// KindServer means the server answered with a non-2xx status.
	KindServer
	// KindMalformed means a 2xx response had an unexpected shape.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network-unreachable"
	case KindServer:
		return "server-rejected"
	case KindMalformed:
		return "malformed-response"
	default:
		return "unknown"
	}
}

var (
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrServerRejected     = errors.New("server rejected request")
	ErrMalformedResponse  = errors.New("malformed response")
)

// Error is returned by every Client method. Message carries the
// server-supplied text for KindServer failures when the body had one.
type Error struct {
	Kind    Kind
	Op      Op
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNetwork:
		return "could not connect to server"
	case KindServer:
		msg := e.Message
		if msg == "" {
			msg = "server error"
		}
		return fmt.Sprintf("failed to %s: %s", e.Op.subject(), msg)
	case KindMalformed:
		return fmt.Sprintf("failed to %s: malformed response", e.Op.subject())
	default:
		if e.Err == nil {
			return "unknown error"
		}
		return "unknown error: " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetworkUnreachable:
		return e.Kind == KindNetwork
	case ErrServerRejected:
		return e.Kind == KindServer
	case ErrMalformedResponse:
		return e.Kind == KindMalformed
	}
	return false
}

// KindOf returns the Kind of a transport error anywhere in err's chain.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}
