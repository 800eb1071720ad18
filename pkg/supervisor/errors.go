package supervisor

import (
	"errors"
	"fmt"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// ErrorMessage ошибка, полученная с шины конвейера. Всегда фатальна.
type ErrorMessage struct {
	Src   string
	Text  string
	Debug string
}

func (e *ErrorMessage) Error() string {
	return fmt.Sprintf("Received error from %s: %s (debug: %s)", e.Src, e.Text, e.Debug)
}

// StateChangeError фреймворк отклонил запрос перехода
type StateChangeError struct {
	Target  pipeline.State
	Wrapped error
}

func (e *StateChangeError) Error() string {
	return fmt.Sprintf("unable to set the pipeline to the %s state: %v", e.Target, e.Wrapped)
}

// Unwrap возвращает обернутую ошибку
func (e *StateChangeError) Unwrap() error { return e.Wrapped }

// DrainTimeoutError конвейер не дошел до EOS за отведенное время после отмены
type DrainTimeoutError struct {
	Timeout string
}

func (e *DrainTimeoutError) Error() string {
	return "pipeline did not drain within " + e.Timeout
}

// ErrBusClosed шина закрылась раньше EOS или ошибки
var ErrBusClosed = errors.New("pipeline bus closed unexpectedly")
