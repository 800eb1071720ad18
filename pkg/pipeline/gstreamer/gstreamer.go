// Package gstreamer реализует интерфейсы pkg/pipeline поверх GStreamer
// (github.com/go-gst/go-gst).
//
// Перед созданием элементов нужно вызвать Init. Обработчики сигналов
// rtpbin вызываются на потоках GStreamer и не должны блокироваться.
package gstreamer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

var initOnce sync.Once

// Init инициализирует GStreamer. Повторные вызовы ничего не делают.
func Init() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Factory фабрика элементов GStreamer
type Factory struct{}

// NewFactory инициализирует GStreamer и возвращает фабрику
func NewFactory() *Factory {
	Init()
	return &Factory{}
}

func (Factory) Make(factory, name string) (pipeline.Element, bool) {
	var (
		el  *gst.Element
		err error
	)
	if name == "" {
		el, err = gst.NewElement(factory)
	} else {
		el, err = gst.NewElementWithName(factory, name)
	}
	if err != nil || el == nil {
		return nil, false
	}
	if factory == "rtpbin" {
		return &Session{Element: Element{el: el}}, true
	}
	return &Element{el: el}, true
}

// Element обертка над *gst.Element
type Element struct {
	el *gst.Element
}

// Wrap оборачивает существующий элемент
func Wrap(el *gst.Element) *Element { return &Element{el: el} }

// Native возвращает исходный *gst.Element
func (e *Element) Native() *gst.Element { return e.el }

func (e *Element) Name() string { return e.el.GetName() }

func (e *Element) StaticPad(name string) (pipeline.Pad, bool) {
	p := e.el.GetStaticPad(name)
	if p == nil {
		return nil, false
	}
	return &Pad{pad: p}, true
}

func (e *Element) RequestPad(name string) (pipeline.Pad, bool) {
	p := e.el.GetRequestPad(name)
	if p == nil {
		return nil, false
	}
	return &Pad{pad: p}, true
}

func (e *Element) SetProperty(name string, value interface{}) error {
	switch v := value.(type) {
	case pipeline.Caps:
		caps := gst.NewCapsFromString(string(v))
		if caps == nil {
			return fmt.Errorf("не удалось разобрать caps %q", string(v))
		}
		return e.el.SetProperty(name, caps)
	case pipeline.EnumValue:
		e.el.SetArg(name, string(v))
		return nil
	case *Element:
		return e.el.SetProperty(name, v.el)
	case *Session:
		return e.el.SetProperty(name, v.el)
	}
	return e.el.SetProperty(name, value)
}

func (e *Element) Property(name string) (interface{}, error) {
	return e.el.GetProperty(name)
}

func (e *Element) Link(dst pipeline.Element) error {
	native, err := unwrap(dst)
	if err != nil {
		return err
	}
	return e.el.Link(native)
}

func (e *Element) Unlink(dst pipeline.Element) {
	native, err := unwrap(dst)
	if err != nil {
		return
	}
	e.el.Unlink(native)
}

func (e *Element) CurrentState() pipeline.State {
	return fromGstState(e.el.GetCurrentState())
}

func (e *Element) ReportFailure(text, debug string) {
	e.el.WarningMessage(gst.DomainLibrary, gst.LibraryErrorFailed, text, debug)
}

// ErrForeignElement элемент создан не этим бэкендом
var ErrForeignElement = errors.New("элемент не принадлежит бэкенду GStreamer")

func unwrap(el pipeline.Element) (*gst.Element, error) {
	switch v := el.(type) {
	case *Element:
		return v.el, nil
	case *Session:
		return v.el, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrForeignElement, el)
}

// Pad обертка над *gst.Pad
type Pad struct {
	pad *gst.Pad
}

func (p *Pad) Name() string { return p.pad.GetName() }

func (p *Pad) Direction() pipeline.PadDirection {
	switch p.pad.GetDirection() {
	case gst.PadDirectionSource:
		return pipeline.PadSrc
	case gst.PadDirectionSink:
		return pipeline.PadSink
	}
	return pipeline.PadUnknown
}

func (p *Pad) Link(sink pipeline.Pad) error {
	s, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("неподдерживаемый тип пэда %T", sink)
	}
	if ret := p.pad.Link(s.pad); ret != gst.PadLinkOK {
		return fmt.Errorf("pad link: %v", ret)
	}
	return nil
}

func fromGstState(s gst.State) pipeline.State {
	switch s {
	case gst.StateNull:
		return pipeline.StateNull
	case gst.StateReady:
		return pipeline.StateReady
	case gst.StatePaused:
		return pipeline.StatePaused
	case gst.StatePlaying:
		return pipeline.StatePlaying
	}
	return pipeline.StateVoidPending
}

func toGstState(s pipeline.State) gst.State {
	switch s {
	case pipeline.StateNull:
		return gst.StateNull
	case pipeline.StateReady:
		return gst.StateReady
	case pipeline.StatePaused:
		return gst.StatePaused
	case pipeline.StatePlaying:
		return gst.StatePlaying
	}
	return gst.VoidPending
}

// Pipeline обертка над *gst.Pipeline
type Pipeline struct {
	p   *gst.Pipeline
	bus *Bus
}

// NewPipeline создает пустой конвейер
func NewPipeline(name string) (*Pipeline, error) {
	Init()
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("создание конвейера %s: %w", name, err)
	}
	return &Pipeline{p: p, bus: &Bus{bus: p.GetPipelineBus(), root: p.Bin, pipeline: p.GetName()}}, nil
}

func (p *Pipeline) Name() string { return p.p.GetName() }

func (p *Pipeline) Add(elements ...pipeline.Element) error {
	for _, el := range elements {
		native, err := unwrap(el)
		if err != nil {
			return err
		}
		if err := p.p.Add(native); err != nil {
			return &pipeline.GraphError{
				ErrCode: pipeline.ErrorCodeAddFailed,
				Element: el.Name(),
				Detail:  "не удалось добавить в " + p.Name(),
				Wrapped: err,
			}
		}
	}
	return nil
}

func (p *Pipeline) ElementByName(name string) (pipeline.Element, bool) {
	el, err := p.p.GetElementByName(name)
	if err != nil || el == nil {
		return nil, false
	}
	return &Element{el: el}, true
}

// SetState запрашивает переход; после перехода в NULL шина закрывается
func (p *Pipeline) SetState(state pipeline.State) error {
	if err := p.p.SetState(toGstState(state)); err != nil {
		return err
	}
	if state == pipeline.StateNull {
		p.bus.closed.Store(true)
	}
	return nil
}

func (p *Pipeline) Bus() pipeline.Bus { return p.bus }

func (p *Pipeline) SendEOS() bool {
	return p.p.SendEvent(gst.NewEOSEvent())
}

func (p *Pipeline) DumpDot(name string) {
	p.p.DebugBinToDotFile(gst.DebugGraphShowAll, name)
}

// busPollInterval период проверки закрытия шины между ожиданиями сообщений
const busPollInterval = 200 * time.Millisecond

// Bus шина конвейера
type Bus struct {
	bus      *gst.Bus
	root     *gst.Bin
	pipeline string
	closed   atomic.Bool
}

func (b *Bus) Pop() (pipeline.Message, bool) {
	for !b.closed.Load() {
		msg := b.bus.TimedPop(gst.ClockTime(busPollInterval))
		if msg == nil {
			continue
		}
		return b.convert(msg), true
	}
	return pipeline.Message{}, false
}

func (b *Bus) convert(msg *gst.Message) pipeline.Message {
	src := msg.Source()
	out := pipeline.Message{
		Source:       src,
		TypeName:     msg.Type().String(),
		FromPipeline: src == b.pipeline,
	}

	switch msg.Type() {
	case gst.MessageEOS:
		out.Kind = pipeline.MessageEOS
	case gst.MessageError:
		out.Kind = pipeline.MessageError
		out.Source = b.pathOf(src)
		if gerr := msg.ParseError(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageWarning:
		out.Kind = pipeline.MessageWarning
		out.Source = b.pathOf(src)
		if gerr := msg.ParseWarning(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
	case gst.MessageStateChanged:
		out.Kind = pipeline.MessageStateChanged
		oldState, newState := msg.ParseStateChanged()
		out.OldState = fromGstState(oldState)
		out.NewState = fromGstState(newState)
	default:
		out.Kind = pipeline.MessageOther
	}
	return out
}

// pathOf строит путь элемента вида /pipeline/bin/element, как
// gst_object_get_path_string. Если элемент не найден, возвращает имя.
func (b *Bus) pathOf(name string) string {
	if name == "" || b.root == nil {
		return name
	}
	root := "/" + b.pipeline
	if name == b.pipeline {
		return root
	}
	if path, ok := findPath(b.root, root, name, glib.TypeFromName("GstBin")); ok {
		return path
	}
	return name
}

func findPath(bin *gst.Bin, prefix, name string, binType glib.Type) (string, bool) {
	children, err := bin.GetElements()
	if err != nil {
		return "", false
	}
	for _, child := range children {
		childName := child.GetName()
		path := prefix + "/" + childName
		if childName == name {
			return path, true
		}
		if binType != 0 && child.IsA(binType) {
			if found, ok := findPath(gst.ToGstBin(child), path, name, binType); ok {
				return found, true
			}
		}
	}
	return "", false
}
