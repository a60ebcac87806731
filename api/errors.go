package api

import (
	"fmt"
	"strings"
)

// Code identifies the kind of a core failure.
type Code int

const (
	CannotUpdateArray Code = iota + 1
	IncrementalCycle
	IncrementalNotObject
	IncrementalValueOfObject
	IncrementalBasePropertyValueKind
	IncrementalOutOfTree
	IncrementalInvalidScript
	IncrementalInvalidPathArg
	GetDataFailed
	InvalidMemberName
	InvalidValue
)

var codeNames = map[Code]string{
	CannotUpdateArray:                "cannot update array",
	IncrementalCycle:                 "base reference cycle",
	IncrementalNotObject:             "base is not an object",
	IncrementalValueOfObject:         "value() of a container",
	IncrementalBasePropertyValueKind: "base property must be a string or array of strings",
	IncrementalOutOfTree:             "resolved content outside the requested subtree",
	IncrementalInvalidScript:         "invalid script",
	IncrementalInvalidPathArg:        "invalid path() argument",
	GetDataFailed:                    "get data failed",
	InvalidMemberName:                "invalid member name",
	InvalidValue:                     "invalid value",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the structured failure returned by every core entry point.
// All codes are fatal to the call that produced them.
type Error struct {
	Code  Code
	Path  string   // namespace path the failure is attached to, if any
	Cycle []string // offending path sequence for IncrementalCycle
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if len(e.Cycle) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by code, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrCannotUpdateArray = &Error{Code: CannotUpdateArray}
	ErrCycle             = &Error{Code: IncrementalCycle}
	ErrNotObject         = &Error{Code: IncrementalNotObject}
	ErrValueOfObject     = &Error{Code: IncrementalValueOfObject}
	ErrBasePropertyKind  = &Error{Code: IncrementalBasePropertyValueKind}
	ErrOutOfTree         = &Error{Code: IncrementalOutOfTree}
	ErrInvalidScript     = &Error{Code: IncrementalInvalidScript}
	ErrInvalidPathArg    = &Error{Code: IncrementalInvalidPathArg}
	ErrGetDataFailed     = &Error{Code: GetDataFailed}
	ErrInvalidMemberName = &Error{Code: InvalidMemberName}
	ErrInvalidValue      = &Error{Code: InvalidValue}
)

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, path, format string, args ...any) *Error {
	return &Error{Code: code, Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and path to an underlying error.
func Wrap(code Code, path string, err error) *Error {
	return &Error{Code: code, Path: path, Err: err}
}
