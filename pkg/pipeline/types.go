package pipeline

import "fmt"

// State состояние жизненного цикла конвейера
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MessageKind тип сообщения шины
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageEOS
	MessageError
	MessageWarning
	MessageStateChanged
	MessageOther
)

func (k MessageKind) String() string {
	switch k {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageStateChanged:
		return "state-changed"
	case MessageOther:
		return "other"
	default:
		return "unknown"
	}
}

// Message сообщение шины, разобранное на границе с фреймворком.
// Поля заполняются в зависимости от Kind.
type Message struct {
	Kind MessageKind

	// Source путь элемента-источника ("" если источника нет)
	Source string
	// FromPipeline сообщение отправлено самим конвейером, а не дочерним элементом
	FromPipeline bool

	// Error/Warning
	Text  string
	Debug string

	// StateChanged
	OldState State
	NewState State

	// TypeName исходное имя типа сообщения для отладки
	TypeName string
}

// Caps строковое описание caps. Реализация фреймворка разбирает его
// при установке свойства (например caps у udpsrc).
type Caps string

// EnumValue значение свойства-перечисления, задается по nick или числу
// в виде строки (например frame-size у opusenc)
type EnumValue string
