package session

import (
	"errors"
	"fmt"
)

// ErrorCode коды ошибок уровня RTP сессии
type ErrorCode int

const (
	ErrorCodeUnknownPT ErrorCode = iota + 200
	ErrorCodeMalformedPadName
	ErrorCodeStorageUnavailable
	ErrorCodeFECElement
	ErrorCodeInvalidParams
)

// String возвращает строковое представление кода ошибки
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnknownPT:
		return "UnknownPT"
	case ErrorCodeMalformedPadName:
		return "MalformedPadName"
	case ErrorCodeStorageUnavailable:
		return "StorageUnavailable"
	case ErrorCodeFECElement:
		return "FECElement"
	case ErrorCodeInvalidParams:
		return "InvalidParams"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// UnknownPTError для payload type нет маршрута
type UnknownPTError struct {
	PT uint
}

func (e *UnknownPTError) Error() string {
	return fmt.Sprintf("Unknown payload type %d", e.PT)
}

// Code возвращает код ошибки
func (e *UnknownPTError) Code() ErrorCode { return ErrorCodeUnknownPT }

// Is совпадает с любым UnknownPTError, если PT в target равен нулю
func (e *UnknownPTError) Is(target error) bool {
	t, ok := target.(*UnknownPTError)
	return ok && (t.PT == 0 || t.PT == e.PT)
}

// MalformedPadNameError имя динамического пэда не соответствует
// формату <dir>_rtp_src_<session>_<ssrc>_<pt>
type MalformedPadNameError struct {
	Name   string
	Reason string
}

func (e *MalformedPadNameError) Error() string {
	return fmt.Sprintf("malformed pad name %q: %s", e.Name, e.Reason)
}

// Code возвращает код ошибки
func (e *MalformedPadNameError) Code() ErrorCode { return ErrorCodeMalformedPadName }

// StorageUnavailableError у сессии нет внутреннего хранилища пакетов
type StorageUnavailableError struct {
	Session uint
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("no internal storage for session %d", e.Session)
}

// Code возвращает код ошибки
func (e *StorageUnavailableError) Code() ErrorCode { return ErrorCodeStorageUnavailable }

// FECError отказ при построении FEC элемента
type FECError struct {
	Session uint
	Role    string // "encoder" или "decoder"
	Wrapped error
}

func (e *FECError) Error() string {
	return fmt.Sprintf("[сессия:%s] FEC %s для сессии %d: %v", ErrorCodeFECElement, e.Role, e.Session, e.Wrapped)
}

// Unwrap возвращает обернутую ошибку
func (e *FECError) Unwrap() error { return e.Wrapped }

// Code возвращает код ошибки
func (e *FECError) Code() ErrorCode { return ErrorCodeFECElement }

// ErrInvalidParams параметры FEC вне допустимого диапазона
var ErrInvalidParams = errors.New("invalid FEC parameters")

// HasErrorCode проверяет, содержит ли цепочка ошибок указанный код
func HasErrorCode(err error, code ErrorCode) bool {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code() == code
	}
	return false
}
