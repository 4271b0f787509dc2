package classifier

import (
	"errors"
	"fmt"
)

// Kind groups classification failures by the stage that produced them.
type Kind string

const (
	KindDecode            Kind = "decode"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindShape             Kind = "shape"
	KindPrediction        Kind = "prediction"
)

var (
	ErrDecode            = errors.New("image could not be decoded")
	ErrUnsupportedFormat = errors.New("image format not supported")
	ErrShape             = errors.New("image does not fit the model input")
	ErrPrediction        = errors.New("model prediction failed")
)

var kindErrors = map[Kind]error{
	KindDecode:            ErrDecode,
	KindUnsupportedFormat: ErrUnsupportedFormat,
	KindShape:             ErrShape,
	KindPrediction:        ErrPrediction,
}

// Error is a failed classification. Every kind renders the same message to
// the user; Kind and the wrapped error are for logs.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindErrors[e.Kind] == target
}

func (e *Error) Message() string {
	return MessageError
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of a classification error, or "" for other errors.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}
