package errs

import (
	"errors"
	"fmt"
)

// CodeError is a protocol-level error carried back to the client as an
// error frame. Code is internal; Msg is the client-visible text.
type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code=%d msg=%s", e.Code, e.Msg)
}

func (e *CodeError) Is(target error) bool {
	var ce *CodeError
	if !errors.As(target, &ce) {
		return false
	}
	return e.Code == ce.Code
}

func (e *CodeError) WrapMsg(detail string) error {
	return fmt.Errorf("%w: %s", e, detail)
}

// Protocol error space.
var (
	ErrNotAuthenticated = NewCodeError(1401, "Not authenticated")
	ErrInvalidToken     = NewCodeError(1403, "Invalid token")
	ErrInvalidFormat    = NewCodeError(1400, "Invalid message format")
	ErrAlreadyAuthed    = NewCodeError(1409, "Already authenticated")
)
