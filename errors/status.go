package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/wasmvm/buffer"
)

// MaxMessageLength caps error messages read from the other side of the boundary.
const MaxMessageLength = 8 * 1024

// Status is the process-level outcome of a boundary call.
type Status int32

const (
	StatusSuccess  Status = 0
	StatusOther    Status = 1
	StatusOutOfGas Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusOther:
		return "other"
	case StatusOutOfGas:
		return "out_of_gas"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// StatusOf derives the process status for err.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrOutOfGas):
		return StatusOutOfGas
	default:
		return StatusOther
	}
}

// Code is the status a backend returns across the boundary.
type Code int32

const (
	CodeSuccess            Code = 0
	CodeForeignFault       Code = 1
	CodeInvalidArgument    Code = 2
	CodeResourceExhausted  Code = 3
	CodeSerializationFault Code = 4
	CodeUserError          Code = 5
	CodeUnknown            Code = -1
)

// Normalize maps codes outside the defined set to CodeUnknown.
func (c Code) Normalize() Code {
	switch c {
	case CodeSuccess, CodeForeignFault, CodeInvalidArgument, CodeResourceExhausted,
		CodeSerializationFault, CodeUserError:
		return c
	default:
		return CodeUnknown
	}
}

func (c Code) String() string {
	switch c.Normalize() {
	case CodeSuccess:
		return "success"
	case CodeForeignFault:
		return "foreign_fault"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeResourceExhausted:
		return "resource_exhausted"
	case CodeSerializationFault:
		return "serialization_fault"
	case CodeUserError:
		return "user_error"
	default:
		return "unknown"
	}
}

// IntoResult converts a backend code and its optional message into an error.
// The message vector is consumed on every path. defaultMsg is only evaluated
// when a message is needed and the backend supplied none.
func (c Code) IntoResult(msg *buffer.Vector, defaultMsg func() string) error {
	text, ok := MessageFrom(msg)
	message := func() string {
		if ok {
			return text
		}
		return defaultMsg()
	}

	switch c.Normalize() {
	case CodeSuccess:
		return nil
	case CodeForeignFault:
		return New(PhaseBackend, KindPanic).Detail("foreign panic").Build()
	case CodeInvalidArgument:
		return New(PhaseBackend, KindBadArgument).Detail("bad argument").Build()
	case CodeResourceExhausted:
		return &Error{Phase: PhaseBackend, Kind: KindOutOfGas, Detail: "out of gas"}
	case CodeSerializationFault:
		return New(PhaseBackend, KindSerialization).Detail("%s", message()).Build()
	case CodeUserError:
		return BackendUser(message())
	default:
		return BackendUnknown(message())
	}
}

// MessageFrom consumes v and decodes it as text, replacing invalid UTF-8.
// Payloads longer than MaxMessageLength are truncated.
func MessageFrom(v *buffer.Vector) (string, bool) {
	data, ok := v.Consume()
	if !ok {
		return "", false
	}
	if len(data) > MaxMessageLength {
		data = data[:MaxMessageLength]
	}
	if utf8.Valid(data) {
		return string(data), true
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), true
}

// MessageVector renders err for an error output slot. Messages longer than
// MaxMessageLength are truncated at a rune boundary.
func MessageVector(err error) *buffer.Vector {
	msg := err.Error()
	if len(msg) > MaxMessageLength {
		cut := MaxMessageLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return buffer.Some([]byte(msg))
}
