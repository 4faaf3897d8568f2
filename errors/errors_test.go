package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/wippyai/wasmvm/buffer"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseCache,
				Kind:   KindNotFound,
				Path:   []string{"wasm", "abcd"},
				Detail: "Wasm file does not exist",
			},
			contains: []string{"[cache]", "not_found", "wasm.abcd", "Wasm file does not exist"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[decode]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindVM,
				Detail: "instantiate failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "vm_error", "instantiate failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseCache, KindNotFound, cause, "load")

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := New(PhaseCache, KindNotFound).Detail("x").Build()

	if !errors.Is(err, &Error{Phase: PhaseCache, Kind: KindNotFound}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseRuntime, Kind: KindNotFound}) {
		t.Error("different phase should not match")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("kind-only sentinel should match any phase")
	}
	if errors.Is(err, ErrOutOfGas) {
		t.Error("different kind should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("cause")
	err := New(PhaseBackend, KindBackendUser).
		Path("db", "read").
		Value(42).
		Cause(cause).
		Detail("failed %s", "badly").
		Build()

	if err.Phase != PhaseBackend || err.Kind != KindBackendUser {
		t.Fatalf("unexpected phase/kind %s/%s", err.Phase, err.Kind)
	}
	if err.Detail != "failed badly" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Value != 42 {
		t.Errorf("value = %v", err.Value)
	}
	if strings.Join(err.Path, ".") != "db.read" {
		t.Errorf("path = %v", err.Path)
	}
	if err.Cause != cause {
		t.Error("cause not set")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		kind   Kind
		detail string
	}{
		{"unset", UnsetArgument("checksum"), KindUnsetArgument, "Null/Nil argument: checksum"},
		{"empty", EmptyArgument("wasm"), KindEmptyArgument, "Empty argument: wasm"},
		{"out of gas", OutOfGas(), KindOutOfGas, "Ran out of gas"},
		{"panic", Panic(PhaseBoundary, "boom"), KindPanic, "Caught panic"},
		{"iterator", IteratorDoesNotExist(3), KindIteratorNotExist, "Iterator 3 does not exist"},
		{"aborted", Aborted("oops"), KindAborted, "Aborted: oops"},
		{"utf8", InvalidUTF8(PhaseBoundary, errors.New("bad byte")), KindInvalidUTF8, "Cannot decode UTF8 bytes into string: bad byte"},
		{"limit", LimitExceeded(PhaseRuntime, "key", 10, 5), KindLimitExceeded, "key too large: 10 > 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Detail != tt.detail {
				t.Errorf("detail = %q, want %q", tt.err.Detail, tt.detail)
			}
		})
	}
}

func TestUnsupportedImportsError(t *testing.T) {
	err := NewUnsupportedImportsError([]string{"env.foo", "env.bar"})
	msg := err.Error()
	if !strings.Contains(msg, `"env.bar", "env.foo"`) {
		t.Errorf("imports should be sorted and quoted: %s", msg)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("should match validation sentinel")
	}

	single := NewUnsupportedImportsError([]string{"env.foo"})
	if !strings.Contains(single.Error(), `unsupported import: "env.foo"`) {
		t.Errorf("unexpected single message: %s", single.Error())
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusSuccess},
		{OutOfGas(), StatusOutOfGas},
		{&Error{Phase: PhaseBackend, Kind: KindOutOfGas}, StatusOutOfGas},
		{NotFound(PhaseCache, "x"), StatusOther},
		{errors.New("plain"), StatusOther},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestCode_IntoResult(t *testing.T) {
	defaultMsg := func() string { return "default message" }

	tests := []struct {
		name    string
		code    Code
		msg     []byte
		kind    Kind
		detail  string
		success bool
	}{
		{name: "success", code: CodeSuccess, success: true},
		{name: "foreign fault", code: CodeForeignFault, msg: []byte("ignored"), kind: KindPanic, detail: "foreign panic"},
		{name: "bad argument", code: CodeInvalidArgument, kind: KindBadArgument, detail: "bad argument"},
		{name: "out of gas", code: CodeResourceExhausted, kind: KindOutOfGas, detail: "out of gas"},
		{name: "serialization", code: CodeSerializationFault, kind: KindSerialization, detail: "default message"},
		{name: "user with message", code: CodeUserError, msg: []byte("nope"), kind: KindBackendUser, detail: "nope"},
		{name: "user default", code: CodeUserError, kind: KindBackendUser, detail: "default message"},
		{name: "unknown", code: CodeUnknown, msg: []byte("weird"), kind: KindBackendUnknown, detail: "weird"},
		{name: "out of range code", code: Code(99), kind: KindBackendUnknown, detail: "default message"},
		{name: "negative code", code: Code(-42), msg: []byte("neg"), kind: KindBackendUnknown, detail: "neg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := buffer.Outstanding()
			err := tt.code.IntoResult(buffer.New(tt.msg), defaultMsg)
			if got := buffer.Outstanding() - base; got != 0 {
				t.Fatalf("message not consumed, outstanding delta %d", got)
			}

			if tt.success {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", e.Kind, tt.kind)
			}
			if e.Detail != tt.detail {
				t.Errorf("detail = %q, want %q", e.Detail, tt.detail)
			}
		})
	}
}

func TestCode_OutOfGasStatus(t *testing.T) {
	err := CodeResourceExhausted.IntoResult(buffer.None(), func() string { return "" })
	if StatusOf(err) != StatusOutOfGas {
		t.Fatal("resource exhaustion must map to the out-of-gas status")
	}
}

func TestMessageFrom(t *testing.T) {
	text, ok := MessageFrom(buffer.Some([]byte{'a', 0xff, 'b'}))
	if !ok {
		t.Fatal("expected message")
	}
	if text != "a�b" {
		t.Errorf("lossy decode = %q", text)
	}

	long := make([]byte, MaxMessageLength+100)
	for i := range long {
		long[i] = 'x'
	}
	text, _ = MessageFrom(buffer.Some(long))
	if len(text) != MaxMessageLength {
		t.Errorf("len = %d, want %d", len(text), MaxMessageLength)
	}

	if _, ok := MessageFrom(buffer.None()); ok {
		t.Error("absent vector should give no message")
	}
}

func TestMessageVector(t *testing.T) {
	v := MessageVector(UnsetArgument("cache"))
	data, ok := v.Consume()
	if !ok || !strings.Contains(string(data), "Null/Nil argument: cache") {
		t.Fatalf("unexpected message %q", data)
	}

	long := strings.Repeat("é", MaxMessageLength)
	data, _ = MessageVector(errors.New(long)).Consume()
	if len(data) > MaxMessageLength {
		t.Fatalf("message not capped: %d", len(data))
	}
	if !strings.HasSuffix(string(data), "é") {
		t.Error("message should be cut at a rune boundary")
	}
}
