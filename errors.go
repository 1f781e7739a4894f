package av

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Engine signals and sentinel errors.
var (
	// ErrAgain is returned by engine verbs when output is not available in the
	// current state and more input (or a receive) is needed.
	ErrAgain = errors.New("resource temporarily unavailable")

	ErrStreamNotFound  = errors.New("stream not found")
	ErrDecoderNotFound = errors.New("decoder not found")
	ErrEncoderNotFound = errors.New("encoder not found")
	ErrUnsupported     = errors.New("operation not supported")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Location is a single call site recorded in an Error.
type Location struct {
	File     string
	Line     int
	Function string
}

func (l Location) String() string {
	return filepath.Base(l.File) + ":" + strconv.Itoa(l.Line) + " [" + l.Function + "]"
}

// Error is a failure carrying the chain of call sites it passed through and a
// terminal description. The first location is where the error was created;
// each Forward appends the forwarding call site.
//
// Ownership of an Error moves with it: Forward appends in place.
type Error struct {
	stack []Location
	desc  string
	cause error
}

// Errorf creates an Error described by the formatted message, recording the
// caller as its origin. A %w verb makes the wrapped error the cause.
func Errorf(format string, args ...any) error {
	werr := fmt.Errorf(format, args...)
	return &Error{
		stack: []Location{caller(2)},
		desc:  werr.Error(),
		cause: errors.Unwrap(werr),
	}
}

// Forward records the caller in err's stack. Errors not created by this
// package are wrapped into a new Error with err as the cause.
func Forward(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.stack = append(e.stack, caller(2))
		return err
	}
	return &Error{
		stack: []Location{caller(2)},
		desc:  err.Error(),
		cause: err,
	}
}

func caller(skip int) Location {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Location{File: "unknown", Function: "unknown"}
	}
	fn := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		fn = f.Name()
		if i := strings.LastIndex(fn, "/"); i >= 0 {
			fn = fn[i+1:]
		}
	}
	return Location{File: file, Line: line, Function: fn}
}

func (e *Error) Error() string { return e.desc }

// Description returns the terminal description.
func (e *Error) Description() string { return e.desc }

// Stack returns the recorded call sites, origin first.
func (e *Error) Stack() []Location {
	out := make([]Location, len(e.stack))
	copy(out, e.stack)
	return out
}

func (e *Error) Unwrap() error { return e.cause }

// Cause satisfies the github.com/pkg/errors causer interface.
func (e *Error) Cause() error { return e.cause }

// ErrorString renders the stack most recent first, followed by the
// description:
//
//	#0 writer.go:120 [av.(*StreamWriter).Write]
//	#1 encoder.go:210 [av.(*Encoder).EncodeFrame]
//	Error: encoder rejected frame
func (e *Error) ErrorString() string {
	var sb strings.Builder
	for i := len(e.stack) - 1; i >= 0; i-- {
		fmt.Fprintf(&sb, "#%d %s\n", len(e.stack)-1-i, e.stack[i])
	}
	sb.WriteString("Error: ")
	sb.WriteString(e.desc)
	return sb.String()
}

// Format implements fmt.Formatter. %+v prints the full stack.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			io.WriteString(s, e.ErrorString())
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.desc)
	case 'q':
		fmt.Fprintf(s, "%q", e.desc)
	}
}

// Result is the outcome of a send/receive driver call.
type Result int

const (
	// ResultSuccess means output was produced (or the drain stopped because
	// the engine needs more input).
	ResultSuccess Result = iota
	// ResultAgain means no output is available until more input is supplied.
	ResultAgain
	// ResultEOF means the component is fully drained.
	ResultEOF
	// ResultFail means a hard engine error occurred.
	ResultFail
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAgain:
		return "again"
	case ResultEOF:
		return "eof"
	case ResultFail:
		return "fail"
	default:
		return "unknown"
	}
}
