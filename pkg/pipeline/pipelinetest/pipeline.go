package pipelinetest

import (
	"fmt"
	"sync"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// Pipeline in-memory корневой контейнер
type Pipeline struct {
	mu sync.Mutex

	name     string
	elements []pipeline.Element
	byName   map[string]pipeline.Element

	state       pipeline.State
	requests    []pipeline.State
	stateErrs   map[pipeline.State]error
	autoConfirm bool
	eosOnSend   bool
	eosSent     int
	dots        []string
	addErr      error

	bus *Bus
}

// NewPipeline создает пустой конвейер в состоянии NULL.
// По умолчанию успешный SetState публикует StateChanged от конвейера,
// а SendEOS публикует EOS, как это делает реальный фреймворк.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:        name,
		byName:      make(map[string]pipeline.Element),
		state:       pipeline.StateNull,
		stateErrs:   make(map[pipeline.State]error),
		autoConfirm: true,
		eosOnSend:   true,
		bus:         NewBus(),
	}
}

func (p *Pipeline) Name() string { return p.name }

// SetAutoConfirm включает или отключает публикацию StateChanged
func (p *Pipeline) SetAutoConfirm(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.autoConfirm = v
}

// SetEOSOnSend включает или отключает публикацию EOS из SendEOS
func (p *Pipeline) SetEOSOnSend(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eosOnSend = v
}

// FailAdd заставляет Add вернуть err
func (p *Pipeline) FailAdd(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addErr = err
}

func (p *Pipeline) Add(elements ...pipeline.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return p.addErr
	}
	for _, el := range elements {
		if _, dup := p.byName[el.Name()]; dup {
			return fmt.Errorf("элемент с именем %s уже добавлен в %s", el.Name(), p.name)
		}
	}
	for _, el := range elements {
		p.byName[el.Name()] = el
		p.elements = append(p.elements, el)
	}
	return nil
}

// AddInternal регистрирует элемент, созданный "внутри" дочернего контейнера
// (например rtpjitterbuffer0 внутри rtpbin), для поиска через ElementByName
func (p *Pipeline) AddInternal(el pipeline.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName[el.Name()] = el
}

func (p *Pipeline) ElementByName(name string) (pipeline.Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.byName[name]
	return el, ok
}

// Elements элементы верхнего уровня в порядке добавления
func (p *Pipeline) Elements() []pipeline.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.Element(nil), p.elements...)
}

// FailState заставляет SetState(state) вернуть err
func (p *Pipeline) FailState(state pipeline.State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateErrs[state] = err
}

func (p *Pipeline) SetState(state pipeline.State) error {
	p.mu.Lock()
	p.requests = append(p.requests, state)
	if err := p.stateErrs[state]; err != nil {
		p.mu.Unlock()
		return err
	}
	old := p.state
	p.state = state
	confirm := p.autoConfirm
	elements := append([]pipeline.Element(nil), p.elements...)
	for _, el := range p.byName {
		elements = append(elements, el)
	}
	p.mu.Unlock()

	for _, el := range elements {
		if s, ok := el.(interface{ SetCurrentState(pipeline.State) }); ok {
			s.SetCurrentState(state)
		}
	}
	if confirm && old != state {
		p.bus.Post(pipeline.Message{
			Kind:         pipeline.MessageStateChanged,
			Source:       p.name,
			FromPipeline: true,
			OldState:     old,
			NewState:     state,
			TypeName:     "state-changed",
		})
	}
	return nil
}

// StateRequests состояния, запрошенные через SetState, по порядку
func (p *Pipeline) StateRequests() []pipeline.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.State(nil), p.requests...)
}

// State последнее успешно запрошенное состояние
func (p *Pipeline) State() pipeline.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) Bus() pipeline.Bus { return p.bus }

// TestBus шина с методами Post/Close
func (p *Pipeline) TestBus() *Bus { return p.bus }

func (p *Pipeline) SendEOS() bool {
	p.mu.Lock()
	p.eosSent++
	post := p.eosOnSend
	p.mu.Unlock()
	if post {
		p.bus.Post(pipeline.Message{Kind: pipeline.MessageEOS, Source: p.name, FromPipeline: true, TypeName: "eos"})
	}
	return true
}

// EOSCount сколько раз вызывался SendEOS
func (p *Pipeline) EOSCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eosSent
}

func (p *Pipeline) DumpDot(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dots = append(p.dots, name)
}

// Dots имена выгруженных dot файлов
func (p *Pipeline) Dots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.dots...)
}

// Bus шина на буферизованном канале
type Bus struct {
	ch     chan pipeline.Message
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewBus создает открытую шину
func NewBus() *Bus {
	return &Bus{ch: make(chan pipeline.Message, 256)}
}

// Post публикует сообщение; после Close сообщения отбрасываются
func (b *Bus) Post(msg pipeline.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.ch <- msg
}

// PostError публикует ошибку от элемента
func (b *Bus) PostError(source, text, debug string) {
	b.Post(pipeline.Message{Kind: pipeline.MessageError, Source: source, Text: text, Debug: debug, TypeName: "error"})
}

// PostWarning публикует предупреждение от элемента
func (b *Bus) PostWarning(source, text, debug string) {
	b.Post(pipeline.Message{Kind: pipeline.MessageWarning, Source: source, Text: text, Debug: debug, TypeName: "warning"})
}

// Close закрывает шину; Pop вернет ok == false после выборки остатка
func (b *Bus) Close() {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.ch)
		b.mu.Unlock()
	})
}

func (b *Bus) Pop() (pipeline.Message, bool) {
	msg, ok := <-b.ch
	return msg, ok
}
