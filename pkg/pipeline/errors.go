package pipeline

import "fmt"

// ErrorCode коды ошибок сборки графа
type ErrorCode int

const (
	ErrorCodeMissingElement ErrorCode = iota + 100
	ErrorCodeNoSuchPad
	ErrorCodeLinkFailed
	ErrorCodeAddFailed
	ErrorCodePropertyFailed
)

// String возвращает строковое представление кода ошибки
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeMissingElement:
		return "MissingElement"
	case ErrorCodeNoSuchPad:
		return "NoSuchPad"
	case ErrorCodeLinkFailed:
		return "LinkFailed"
	case ErrorCodeAddFailed:
		return "AddFailed"
	case ErrorCodePropertyFailed:
		return "PropertyFailed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// MissingElementError фабрика элемента не зарегистрирована во фреймворке
type MissingElementError struct {
	Factory string
}

func (e *MissingElementError) Error() string {
	return fmt.Sprintf("Missing element %s", e.Factory)
}

// Code возвращает код ошибки
func (e *MissingElementError) Code() ErrorCode { return ErrorCodeMissingElement }

// Is сравнивает ошибки по фабрике; пустая фабрика в target совпадает с любой
func (e *MissingElementError) Is(target error) bool {
	t, ok := target.(*MissingElementError)
	if !ok {
		return false
	}
	return t.Factory == "" || t.Factory == e.Factory
}

// NoSuchPadError у элемента нет пэда с таким именем
type NoSuchPadError struct {
	Pad     string
	Element string
}

func (e *NoSuchPadError) Error() string {
	return fmt.Sprintf("No such pad %s in %s", e.Pad, e.Element)
}

// Code возвращает код ошибки
func (e *NoSuchPadError) Code() ErrorCode { return ErrorCodeNoSuchPad }

// Is совпадает с любым NoSuchPadError, у которого поля target пусты или равны
func (e *NoSuchPadError) Is(target error) bool {
	t, ok := target.(*NoSuchPadError)
	if !ok {
		return false
	}
	return (t.Pad == "" || t.Pad == e.Pad) && (t.Element == "" || t.Element == e.Element)
}

// GraphError ошибка операции над графом (add, link, property) с контекстом
type GraphError struct {
	ErrCode ErrorCode
	Element string
	Detail  string
	Wrapped error
}

func (e *GraphError) Error() string {
	msg := fmt.Sprintf("[граф:%s] %s: %s", e.ErrCode, e.Element, e.Detail)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку
func (e *GraphError) Unwrap() error { return e.Wrapped }

// Code возвращает код ошибки
func (e *GraphError) Code() ErrorCode { return e.ErrCode }

// Is сравнивает по коду
func (e *GraphError) Is(target error) bool {
	t, ok := target.(*GraphError)
	return ok && t.ErrCode == e.ErrCode
}

// NewLinkError создает ошибку связывания элементов или пэдов
func NewLinkError(src, dst string, cause error) *GraphError {
	return &GraphError{
		ErrCode: ErrorCodeLinkFailed,
		Element: src,
		Detail:  fmt.Sprintf("не удалось связать с %s", dst),
		Wrapped: cause,
	}
}

// NewPropertyError создает ошибку установки свойства
func NewPropertyError(element, property string, cause error) *GraphError {
	return &GraphError{
		ErrCode: ErrorCodePropertyFailed,
		Element: element,
		Detail:  fmt.Sprintf("не удалось установить свойство %q", property),
		Wrapped: cause,
	}
}
