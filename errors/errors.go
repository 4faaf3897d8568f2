package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBoundary Phase = "boundary" // exported call surface
	PhaseCache    Phase = "cache"    // module cache operations
	PhaseDecode   Phase = "decode"   // wasm binary parsing
	PhaseEncode   Phase = "encode"   // wasm binary writing
	PhaseValidate Phase = "validate" // static module checks
	PhaseCompile  Phase = "compile"  // engine compilation
	PhaseRuntime  Phase = "runtime"  // contract execution
	PhaseBackend  Phase = "backend"  // storage, api and querier bridges
	PhaseHost     Phase = "host"     // host function registration
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindUnsupported       Kind = "unsupported"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindOverflow          Kind = "overflow"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindInstantiation     Kind = "instantiation"
	KindEmptyArgument     Kind = "empty_argument"
	KindUnsetArgument     Kind = "unset_argument"
	KindOutOfGas          Kind = "out_of_gas"
	KindPanic             Kind = "panic"
	KindVM                Kind = "vm_error"
	KindValidation        Kind = "validation"
	KindIteratorNotExist  Kind = "iterator_does_not_exist"
	KindBackendUnknown    Kind = "backend_unknown"
	KindBackendUser       Kind = "backend_user"
	KindBadArgument       Kind = "bad_argument"
	KindSerialization     Kind = "serialization"
	KindAborted           Kind = "aborted"
	KindLimitExceeded     Kind = "limit_exceeded"
	KindUnavailableImport Kind = "unsupported_import"
)

// Error is the structured error type used throughout the VM
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Kind-only sentinels for errors.Is.
var (
	ErrOutOfGas         = &Error{Kind: KindOutOfGas}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrPanic            = &Error{Kind: KindPanic}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUnsetArgument    = &Error{Kind: KindUnsetArgument}
	ErrEmptyArgument    = &Error{Kind: KindEmptyArgument}
	ErrInvalidUTF8      = &Error{Kind: KindInvalidUTF8}
	ErrIteratorNotExist = &Error{Kind: KindIteratorNotExist}
	ErrBackendUser      = &Error{Kind: KindBackendUser}
	ErrBackendUnknown   = &Error{Kind: KindBackendUnknown}
	ErrAborted          = &Error{Kind: KindAborted}
	ErrNotInitialized   = &Error{Kind: KindNotInitialized}
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: "Cannot decode UTF8 bytes into string: " + cause.Error(),
		Cause:  cause,
	}
}

// EmptyArgument reports a required argument that was present but empty
func EmptyArgument(name string) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindEmptyArgument,
		Detail: "Empty argument: " + name,
		Value:  name,
	}
}

// UnsetArgument reports a required argument that was absent
func UnsetArgument(name string) *Error {
	return &Error{
		Phase:  PhaseBoundary,
		Kind:   KindUnsetArgument,
		Detail: "Null/Nil argument: " + name,
		Value:  name,
	}
}

// InvalidInput creates an invalid argument error
func InvalidInput(phase Phase, detail string, args ...any) *Error {
	return New(phase, KindInvalidInput).Detail(detail, args...).Build()
}

// OutOfGas reports gas depletion during execution
func OutOfGas() *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindOutOfGas,
		Detail: "Ran out of gas",
	}
}

// Panic reports a panic caught at a fault boundary
func Panic(phase Phase, recovered any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Detail: "Caught panic",
		Value:  recovered,
	}
}

// VM wraps an execution fault
func VM(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindVM,
		Detail: detail,
		Cause:  cause,
	}
}

// Validation creates a static validation error
func Validation(detail string, args ...any) *Error {
	return New(PhaseValidate, KindValidation).Detail(detail, args...).Build()
}

// NotFound creates a not-found error
func NotFound(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: detail,
	}
}

// IteratorDoesNotExist reports a lookup of an iterator handle that was never issued
func IteratorDoesNotExist(id uint32) *Error {
	return &Error{
		Phase:  PhaseBackend,
		Kind:   KindIteratorNotExist,
		Detail: fmt.Sprintf("Iterator %d does not exist", id),
		Value:  id,
	}
}

// BackendUnknown wraps an unclassified backend failure
func BackendUnknown(msg string) *Error {
	return &Error{
		Phase:  PhaseBackend,
		Kind:   KindBackendUnknown,
		Detail: msg,
	}
}

// BackendUser wraps a user-caused backend failure
func BackendUser(msg string) *Error {
	return &Error{
		Phase:  PhaseBackend,
		Kind:   KindBackendUser,
		Detail: msg,
	}
}

// Aborted reports a contract that called abort
func Aborted(msg string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindAborted,
		Detail: "Aborted: " + msg,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// LimitExceeded reports an input larger than the configured limit
func LimitExceeded(phase Phase, what string, size, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLimitExceeded,
		Detail: fmt.Sprintf("%s too large: %d > %d", what, size, limit),
		Value:  size,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// UnsupportedImport represents a single import the host does not provide
type UnsupportedImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "db_read"
}

// UnsupportedImportsError is returned when a contract imports functions the host does not provide
type UnsupportedImportsError struct {
	Imports []UnsupportedImport
}

// NewUnsupportedImportsError creates an error from a list of "module.name" strings
func NewUnsupportedImportsError(imports []string) *UnsupportedImportsError {
	result := &UnsupportedImportsError{
		Imports: make([]UnsupportedImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, name := parseImportKey(imp)
		result.Imports = append(result.Imports, UnsupportedImport{
			Module: mod,
			Name:   name,
		})
	}
	return result
}

func parseImportKey(key string) (module, name string) {
	mod, fn, found := strings.Cut(key, ".")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *UnsupportedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[validate] unsupported_import: no imports specified"
	}

	keys := make([]string, 0, len(e.Imports))
	for _, imp := range e.Imports {
		if imp.Name == "" {
			keys = append(keys, fmt.Sprintf("%q", imp.Module))
			continue
		}
		keys = append(keys, fmt.Sprintf("%q", imp.Module+"."+imp.Name))
	}
	sort.Strings(keys)

	if len(keys) == 1 {
		return "[validate] unsupported_import: Wasm contract requires unsupported import: " + keys[0]
	}
	return "[validate] unsupported_import: Wasm contract requires unsupported imports: " + strings.Join(keys, ", ")
}

// Is matches validation sentinels so callers can treat this as a validation failure.
func (e *UnsupportedImportsError) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return t.Kind == KindValidation || t.Kind == KindUnavailableImport
	}
	return t.Phase == PhaseValidate && (t.Kind == KindValidation || t.Kind == KindUnavailableImport)
}
