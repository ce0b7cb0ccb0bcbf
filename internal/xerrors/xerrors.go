// Package xerrors adds caller locations to errors so the logger can report
// where a failure was created or wrapped. Everything here stays compatible
// with errors.Is / errors.As from the standard library.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

const maxStackDepth = 64

// stacked carries the full call stack captured when the error was created.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated carries a message prefix and the single frame that wrapped the error.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// skip=0 is the caller of stackOf
func stackOf(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// skip=0 is the caller of pcOf
func pcOf(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func attachStack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackOf(skip + 1)}
}

// New returns an error with msg and the stack of the caller.
func New(msg string) error { return attachStack(errors.New(msg), 1) }

// Newf is New with fmt formatting. %w is honoured.
func Newf(format string, args ...any) error {
	return attachStack(fmt.Errorf(format, args...), 1)
}

// WithStack attaches the caller stack to err. nil stays nil.
func WithStack(err error) error { return attachStack(err, 1) }

// EnsureTrace attaches a stack only when nothing in the chain carries one yet.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return attachStack(err, 1)
}

// Wrap prefixes err with msg and records the wrapping call site. nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: pcOf(1)}
}

// Wrapf is Wrap with fmt formatting of the prefix.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: pcOf(1)}
}

// Is and As are re-exported so callers need a single errors import.
func Is(err, target error) bool     { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }
