package pipelinetest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// ErrAlreadyLinked пэд уже соединен (аналог GST_PAD_LINK_WAS_LINKED)
var ErrAlreadyLinked = errors.New("pad was already linked")

// Failure отказ, опубликованный элементом через ReportFailure
type Failure struct {
	Text  string
	Debug string
}

// Element in-memory элемент графа
type Element struct {
	mu sync.Mutex

	factory string
	name    string

	props    map[string]interface{}
	propErrs map[string]error

	pads      map[string]*Pad
	templates map[string]pipeline.PadDirection

	linked   map[string]int // имя dst -> количество Link
	unlinked map[string]int // имя dst -> количество Unlink

	state    pipeline.State
	failures []Failure
	linkErr  error
}

// NewElement создает элемент без пэдов
func NewElement(factory, name string) *Element {
	return &Element{
		factory:   factory,
		name:      name,
		props:     make(map[string]interface{}),
		propErrs:  make(map[string]error),
		pads:      make(map[string]*Pad),
		templates: make(map[string]pipeline.PadDirection),
		linked:    make(map[string]int),
		unlinked:  make(map[string]int),
		state:     pipeline.StateNull,
	}
}

// Factory имя фабрики, создавшей элемент
func (e *Element) Factory() string { return e.factory }

func (e *Element) Name() string { return e.name }

// AddStaticPad добавляет статический пэд
func (e *Element) AddStaticPad(name string, dir pipeline.PadDirection) *Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	pad := NewPad(e, name, dir)
	e.pads[name] = pad
	return pad
}

// AllowRequestPad разрешает запрос пэда с указанным именем
func (e *Element) AllowRequestPad(name string, dir pipeline.PadDirection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[name] = dir
}

func (e *Element) StaticPad(name string) (pipeline.Pad, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pad, ok := e.pads[name]
	if !ok {
		return nil, false
	}
	return pad, true
}

// Pad возвращает пэд (статический или уже запрошенный) для проверок в тестах
func (e *Element) Pad(name string) *Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pads[name]
}

func (e *Element) RequestPad(name string) (pipeline.Pad, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pad, ok := e.pads[name]; ok {
		return pad, true
	}
	dir, ok := e.templates[name]
	if !ok {
		return nil, false
	}
	pad := NewPad(e, name, dir)
	e.pads[name] = pad
	return pad, true
}

// FailProperty заставляет SetProperty(name) возвращать err
func (e *Element) FailProperty(name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.propErrs[name] = err
}

func (e *Element) SetProperty(name string, value interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.propErrs[name]; err != nil {
		return err
	}
	e.props[name] = value
	return nil
}

func (e *Element) Property(name string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	if !ok {
		return nil, fmt.Errorf("свойство %q не найдено у %s", name, e.name)
	}
	return v, nil
}

// HasProperty проверяет, было ли свойство установлено
func (e *Element) HasProperty(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.props[name]
	return ok
}

// PropertyNames возвращает отсортированные имена установленных свойств
func (e *Element) PropertyNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.props))
	for name := range e.props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailLink заставляет Link возвращать err
func (e *Element) FailLink(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.linkErr = err
}

func (e *Element) Link(dst pipeline.Element) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.linkErr != nil {
		return e.linkErr
	}
	e.linked[dst.Name()]++
	return nil
}

// Unlink разрывает связи между пэдами e и пэдами dst
func (e *Element) Unlink(dst pipeline.Element) {
	e.mu.Lock()
	e.unlinked[dst.Name()]++
	pads := make([]*Pad, 0, len(e.pads))
	for _, p := range e.pads {
		pads = append(pads, p)
	}
	e.mu.Unlock()

	// Динамические src пэды сессии не хранятся в pads, поэтому
	// проверяем и пиры пэдов dst.
	if d, ok := dst.(interface{ allPads() []*Pad }); ok {
		for _, p := range d.allPads() {
			if peer := p.Peer(); peer != nil && peer.owner == e {
				p.unlink()
			}
		}
	}
	for _, p := range pads {
		if peer := p.Peer(); peer != nil && peer.owner != nil && peer.owner.name == dst.Name() {
			p.unlink()
		}
	}
}

func (e *Element) allPads() []*Pad {
	e.mu.Lock()
	defer e.mu.Unlock()
	pads := make([]*Pad, 0, len(e.pads))
	for _, p := range e.pads {
		pads = append(pads, p)
	}
	return pads
}

// LinkCount количество вызовов Link(dst)
func (e *Element) LinkCount(dst string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.linked[dst]
}

// UnlinkCount количество вызовов Unlink(dst)
func (e *Element) UnlinkCount(dst string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unlinked[dst]
}

// SetCurrentState задает состояние, которое вернет CurrentState
func (e *Element) SetCurrentState(s pipeline.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
}

func (e *Element) CurrentState() pipeline.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Element) ReportFailure(text, debug string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = append(e.failures, Failure{Text: text, Debug: debug})
}

// Failures возвращает копию опубликованных отказов
func (e *Element) Failures() []Failure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Failure(nil), e.failures...)
}

// String для сообщений testify
func (e *Element) String() string {
	return fmt.Sprintf("%s(%s)", e.factory, e.name)
}

// Pad in-memory пэд
type Pad struct {
	mu sync.Mutex

	owner *Element
	name  string
	dir   pipeline.PadDirection
	peer  *Pad

	links int
}

// NewPad создает пэд; owner может быть nil для "висящих" пэдов в тестах
func NewPad(owner *Element, name string, dir pipeline.PadDirection) *Pad {
	return &Pad{owner: owner, name: name, dir: dir}
}

func (p *Pad) Name() string { return p.name }

func (p *Pad) Direction() pipeline.PadDirection { return p.dir }

// Owner элемент-владелец пэда
func (p *Pad) Owner() *Element { return p.owner }

// Link соединяет p (src) с sink, отказывая если любой из них уже связан
func (p *Pad) Link(sink pipeline.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("неподдерживаемый тип пэда %T", sink)
	}
	if p.dir == pipeline.PadSink || s.dir == pipeline.PadSrc {
		return fmt.Errorf("неверное направление: %s -> %s", p.dir, s.dir)
	}
	if p.Peer() != nil || s.Peer() != nil {
		return ErrAlreadyLinked
	}
	p.mu.Lock()
	p.peer = s
	p.links++
	p.mu.Unlock()

	s.mu.Lock()
	s.peer = p
	s.links++
	s.mu.Unlock()
	return nil
}

// Peer возвращает соединенный пэд или nil
func (p *Pad) Peer() *Pad {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// IsLinked соединен ли пэд
func (p *Pad) IsLinked() bool { return p.Peer() != nil }

// LinkCount сколько раз пэд был соединен за время жизни
func (p *Pad) LinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links
}

func (p *Pad) unlink() {
	p.mu.Lock()
	peer := p.peer
	p.peer = nil
	p.mu.Unlock()
	if peer != nil {
		peer.mu.Lock()
		if peer.peer == p {
			peer.peer = nil
		}
		peer.mu.Unlock()
	}
}

// fullName имя вида element:pad для диагностики
func (p *Pad) fullName() string {
	if p.owner == nil {
		return p.name
	}
	return strings.Join([]string{p.owner.name, p.name}, ":")
}

func (p *Pad) String() string { return p.fullName() }
