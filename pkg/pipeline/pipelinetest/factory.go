package pipelinetest

import (
	"fmt"
	"sync"

	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// padTemplate описание пэда, который получает элемент при создании
type padTemplate struct {
	name    string
	dir     pipeline.PadDirection
	request bool
}

var (
	srcOnly  = []padTemplate{{name: "src", dir: pipeline.PadSrc}}
	sinkOnly = []padTemplate{{name: "sink", dir: pipeline.PadSink}}
	filter   = []padTemplate{{name: "sink", dir: pipeline.PadSink}, {name: "src", dir: pipeline.PadSrc}}
)

// defaultTemplates набор фабрик, известных фейковому фреймворку
var defaultTemplates = map[string][]padTemplate{
	"udpsrc":        srcOnly,
	"udpsink":       sinkOnly,
	"jackaudiosrc":  srcOnly,
	"audiotestsrc":  srcOnly,
	"jackaudiosink": sinkOnly,
	"fakesink":      sinkOnly,
	"queue":         filter,
	"audioconvert":  filter,
	"opusenc":       filter,
	"opusdec":       filter,
	"rtpopuspay":    filter,
	"rtpopusdepay":  filter,
	"rtpulpfecenc":  filter,
	"rtpulpfecdec":  filter,
	"rtpstorage":    filter,
	"rtpbin":        nil,
}

// Factory in-memory фабрика элементов.
// Элементы с фабрикой "rtpbin" создаются как *Session.
type Factory struct {
	mu sync.Mutex

	templates map[string][]padTemplate
	made      []pipeline.Element
	counters  map[string]int
	propErrs  map[string]map[string]error // фабрика -> свойство -> ошибка
}

// NewFactory создает фабрику со стандартным набором элементов
func NewFactory() *Factory {
	f := &Factory{
		templates: make(map[string][]padTemplate, len(defaultTemplates)),
		counters:  make(map[string]int),
		propErrs:  make(map[string]map[string]error),
	}
	for k, v := range defaultTemplates {
		f.templates[k] = v
	}
	return f
}

// Without убирает фабрики, имитируя отсутствующий плагин
func (f *Factory) Without(factories ...string) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range factories {
		delete(f.templates, name)
	}
	return f
}

// Register добавляет фабрику фильтра (sink + src)
func (f *Factory) Register(factory string) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[factory] = filter
	return f
}

// FailProperty заставляет все элементы фабрики отказывать в установке
// свойства, как элемент, у которого такого свойства нет
func (f *Factory) FailProperty(factory, property string, err error) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.propErrs[factory] == nil {
		f.propErrs[factory] = make(map[string]error)
	}
	f.propErrs[factory][property] = err
	return f
}

func (f *Factory) Make(factory, name string) (pipeline.Element, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	templates, ok := f.templates[factory]
	if !ok {
		return nil, false
	}
	if name == "" {
		name = fmt.Sprintf("%s%d", factory, f.counters[factory])
		f.counters[factory]++
	}

	var el pipeline.Element
	if factory == "rtpbin" {
		el = NewSession(name)
	} else {
		e := NewElement(factory, name)
		for _, t := range templates {
			if t.request {
				e.AllowRequestPad(t.name, t.dir)
			} else {
				e.AddStaticPad(t.name, t.dir)
			}
		}
		for prop, err := range f.propErrs[factory] {
			e.FailProperty(prop, err)
		}
		el = e
	}
	f.made = append(f.made, el)
	return el, true
}

// MustMake как Make, но паникует при отсутствии фабрики
func (f *Factory) MustMake(factory, name string) pipeline.Element {
	el, ok := f.Make(factory, name)
	if !ok {
		panic(fmt.Sprintf("pipelinetest: фабрика %s не зарегистрирована", factory))
	}
	return el
}

// Made возвращает созданные элементы в порядке создания
func (f *Factory) Made() []pipeline.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Element(nil), f.made...)
}

// MadeCount количество созданных элементов
func (f *Factory) MadeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}
