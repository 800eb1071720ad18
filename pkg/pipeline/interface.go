// Package pipeline описывает границу с внешним медиа-фреймворком.
//
// Ядро (маршрутизатор payload type, FEC negotiator, супервизор, опрос
// статистики) работает только с интерфейсами этого пакета. Реальная
// реализация поверх GStreamer находится в pkg/pipeline/gstreamer,
// заглушки для тестов в pkg/pipeline/pipelinetest.
//
// Потокобезопасность графа обеспечивает сам фреймворк: пакет не добавляет
// собственных блокировок вокруг элементов и пэдов.
package pipeline

// Factory создает элементы по имени фабрики
type Factory interface {
	// Make создает элемент. name может быть пустым, тогда имя выбирает фреймворк.
	// Если фабрика не зарегистрирована, возвращает ok == false.
	Make(factory, name string) (el Element, ok bool)
}

// Element узел графа конвейера
type Element interface {
	Name() string

	// StaticPad возвращает существующий статический пэд
	StaticPad(name string) (Pad, bool)
	// RequestPad просит элемент создать пэд по шаблону имени
	RequestPad(name string) (Pad, bool)

	SetProperty(name string, value interface{}) error
	Property(name string) (interface{}, error)

	// Link соединяет элемент со следующим по совместимым пэдам
	Link(dst Element) error
	// Unlink разрывает все связи с dst. Отсутствие связи не ошибка.
	Unlink(dst Element)

	// CurrentState возвращает текущее состояние без ожидания
	CurrentState() State

	// ReportFailure публикует нефатальное сообщение категории
	// "library failure" на шину конвейера от имени элемента
	ReportFailure(text, debug string)
}

// PadDirection направление пэда
type PadDirection int

const (
	PadUnknown PadDirection = iota
	PadSrc
	PadSink
)

func (d PadDirection) String() string {
	switch d {
	case PadSrc:
		return "src"
	case PadSink:
		return "sink"
	default:
		return "unknown"
	}
}

// Pad точка соединения элемента
type Pad interface {
	Name() string
	Direction() PadDirection
	// Link соединяет этот (src) пэд с sink пэдом
	Link(sink Pad) error
}

// PTMapHandler отвечает на запрос caps для payload type.
// ok == false означает "caps нет", фреймворк отбросит такой поток.
type PTMapHandler func(session, pt uint) (caps string, ok bool)

// FECHandler возвращает вспомогательный FEC элемент для сессии.
// nil означает "элемента нет", сессия работает без FEC.
type FECHandler func(session uint) Element

// StorageHandler вызывается при создании storage элемента для сессии
type StorageHandler func(storage Element, session uint)

// PadHandler вызывается при появлении нового пэда на элементе
type PadHandler func(pad Pad)

// Session элемент, мультиплексирующий RTP сессии (rtpbin).
// Обработчики регистрируются явно и вызываются на потоках фреймворка.
type Session interface {
	Element

	OnPadAdded(h PadHandler) error
	OnRequestPTMap(h PTMapHandler) error
	OnRequestFECEncoder(h FECHandler) error
	OnRequestFECDecoder(h FECHandler) error
	OnNewStorage(h StorageHandler) error

	// InternalStorage возвращает непрозрачный дескриптор хранилища пакетов
	// сессии. ok == false, если у сессии хранилища нет.
	InternalStorage(session uint) (storage interface{}, ok bool)
}

// Pipeline корневой контейнер графа
type Pipeline interface {
	Name() string

	Add(elements ...Element) error
	// ElementByName ищет элемент рекурсивно, включая дочерние контейнеры
	ElementByName(name string) (Element, bool)

	// SetState запрашивает переход. Успех означает, что запрос принят,
	// фактическое состояние подтверждается сообщением на шине.
	SetState(state State) error

	Bus() Bus

	// SendEOS отправляет конец потока во все источники
	SendEOS() bool

	// DumpDot выгружает граф в dot файл (если фреймворк настроен на это)
	DumpDot(name string)
}

// Bus очередь сообщений конвейера
type Bus interface {
	// Pop блокируется до следующего сообщения. ok == false, если шина
	// закрыта и сообщений больше не будет.
	Pop() (msg Message, ok bool)
}
