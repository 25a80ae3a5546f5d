package raster

import "errors"

// Sentinel errors, one per design-level error kind in spec.md §7 that
// the raster package itself can raise (I/O-layer kinds like FILE_ERROR
// surface through internal/gio's own sentinels instead, wrapped with
// %w as they propagate up).
var (
	ErrNullArgument              = errors.New("gvrs: null argument")
	ErrInvalidParameter          = errors.New("gvrs: invalid parameter")
	ErrFileAccess                = errors.New("gvrs: file access error")
	ErrFileNotFound              = errors.New("gvrs: file not found")
	ErrInvalidFile               = errors.New("gvrs: invalid file")
	ErrBadNameSpecification      = errors.New("gvrs: bad name specification")
	ErrNameNotUnique             = errors.New("gvrs: name not unique")
	ErrBadRasterSpecification    = errors.New("gvrs: bad raster specification")
	ErrBadElementSpec            = errors.New("gvrs: bad element specification")
	ErrBadICFParameters          = errors.New("gvrs: bad IntCodedFloat parameters")
	ErrCoordinateOutOfBounds     = errors.New("gvrs: coordinate out of bounds")
	ErrElementNotFound           = errors.New("gvrs: element not found")
	ErrCompressionNotImplemented = errors.New("gvrs: codec does not implement requested operation")
	ErrCounterOverflow           = errors.New("gvrs: counter overflow")
)

// Kind is the design-level error category a sentinel belongs to, for
// callers that want to dispatch on the old kind-based taxonomy (e.g.
// "is this COMPRESSION_NOT_IMPLEMENTED recoverable at the tile level")
// instead of comparing against every individual sentinel.
type Kind int

const (
	KindNullArgument Kind = iota
	KindInvalidParameter
	KindFileAccess
	KindFileNotFound
	KindInvalidFile
	KindBadNameSpecification
	KindNameNotUnique
	KindBadRasterSpecification
	KindBadElementSpec
	KindBadICFParameters
	KindCoordinateOutOfBounds
	KindElementNotFound
	KindCompressionNotImplemented
	KindCounterOverflow
)

func (k Kind) String() string {
	switch k {
	case KindNullArgument:
		return "NULL_ARGUMENT"
	case KindInvalidParameter:
		return "INVALID_PARAMETER"
	case KindFileAccess:
		return "FILE_ACCESS"
	case KindFileNotFound:
		return "FILE_NOT_FOUND"
	case KindInvalidFile:
		return "INVALID_FILE"
	case KindBadNameSpecification:
		return "BAD_NAME_SPECIFICATION"
	case KindNameNotUnique:
		return "NAME_NOT_UNIQUE"
	case KindBadRasterSpecification:
		return "BAD_RASTER_SPECIFICATION"
	case KindBadElementSpec:
		return "BAD_ELEMENT_SPEC"
	case KindBadICFParameters:
		return "BAD_ICF_PARAMETERS"
	case KindCoordinateOutOfBounds:
		return "COORDINATE_OUT_OF_BOUNDS"
	case KindElementNotFound:
		return "ELEMENT_NOT_FOUND"
	case KindCompressionNotImplemented:
		return "COMPRESSION_NOT_IMPLEMENTED"
	case KindCounterOverflow:
		return "COUNTER_OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// sentinelKinds maps each package sentinel to its Kind, consulted by
// Wrap in declaration order stability doesn't matter here since each
// sentinel is distinct.
var sentinelKinds = map[error]Kind{
	ErrNullArgument:              KindNullArgument,
	ErrInvalidParameter:          KindInvalidParameter,
	ErrFileAccess:                KindFileAccess,
	ErrFileNotFound:              KindFileNotFound,
	ErrInvalidFile:               KindInvalidFile,
	ErrBadNameSpecification:      KindBadNameSpecification,
	ErrNameNotUnique:             KindNameNotUnique,
	ErrBadRasterSpecification:    KindBadRasterSpecification,
	ErrBadElementSpec:            KindBadElementSpec,
	ErrBadICFParameters:          KindBadICFParameters,
	ErrCoordinateOutOfBounds:     KindCoordinateOutOfBounds,
	ErrElementNotFound:           KindElementNotFound,
	ErrCompressionNotImplemented: KindCompressionNotImplemented,
	ErrCounterOverflow:           KindCounterOverflow,
}

// Error pairs a returned error with its design-level Kind. It unwraps
// to the original error, so errors.Is against a sentinel still works
// after Wrap; errors.As(err, &raster.Error{}) recovers the Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches err's design-level Kind, found by checking err against
// each package sentinel with errors.Is. Errors that don't match any
// known sentinel (e.g. a bare I/O error that slipped through
// unwrapped) are returned unchanged.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var asErr *Error
	if errors.As(err, &asErr) {
		return err
	}
	for sentinel, kind := range sentinelKinds {
		if errors.Is(err, sentinel) {
			return &Error{Kind: kind, Err: err}
		}
	}
	return err
}
