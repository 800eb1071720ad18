package roles

import "fmt"

// UsageError неверное количество позиционных аргументов
type UsageError struct {
	Binary string
	// Args описание ожидаемых аргументов, например "PORT LATENCY SIZE-TIME(ms)"
	Args string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("Usage: %s %s", e.Binary, e.Args)
}

// InvalidArgumentError аргумент не разобран или вне допустимого диапазона
type InvalidArgumentError struct {
	Name    string
	Value   string
	Reason  string
	Wrapped error
}

func (e *InvalidArgumentError) Error() string {
	msg := fmt.Sprintf("invalid %s %q", e.Name, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку
func (e *InvalidArgumentError) Unwrap() error { return e.Wrapped }

func invalid(name string, value interface{}, reason string) *InvalidArgumentError {
	return &InvalidArgumentError{Name: name, Value: fmt.Sprint(value), Reason: reason}
}
