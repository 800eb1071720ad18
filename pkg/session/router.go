package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// FailedToLinkText текст отказа, публикуемого при неудачной маршрутизации
const FailedToLinkText = "Failed to link srcpad"

// RouterStats счетчики маршрутизатора
type RouterStats struct {
	Routed   uint64
	Rejected uint64
}

// Router связывает новые src пэды сессии с потребителем по payload type.
//
// Таблица маршрутов заполняется до Register и дальше только читается;
// HandlePad вызывается на потоках фреймворка.
type Router struct {
	source pipeline.Element
	logger logging.StructuredLogger

	mu     sync.RWMutex
	routes map[uint]pipeline.Element

	routed   atomic.Uint64
	rejected atomic.Uint64

	// OnRouted вызывается после успешного связывания (опционально)
	OnRouted func(id PadID, consumer string)
}

// NewRouter создает маршрутизатор для пэдов элемента source
func NewRouter(source pipeline.Element, logger logging.StructuredLogger) *Router {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Router{
		source: source,
		logger: logger.WithComponent("router"),
		routes: make(map[uint]pipeline.Element),
	}
}

// Route добавляет или заменяет маршрут pt -> consumer
func (r *Router) Route(pt uint, consumer pipeline.Element) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[pt] = consumer
	return r
}

// Consumer возвращает потребителя для payload type
func (r *Router) Consumer(pt uint) (pipeline.Element, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.routes[pt]
	return el, ok
}

// PayloadTypes возвращает отсортированный список маршрутизируемых payload type
func (r *Router) PayloadTypes() []uint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pts := make([]uint, 0, len(r.routes))
	for pt := range r.routes {
		pts = append(pts, pt)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i] < pts[j] })
	return pts
}

// Register подписывает маршрутизатор на pad-added сессии
func (r *Router) Register(s pipeline.Session) error {
	return s.OnPadAdded(r.onPadAdded)
}

func (r *Router) onPadAdded(pad pipeline.Pad) {
	if err := r.HandlePad(pad); err != nil {
		r.logger.LogError(context.Background(), err, "pad routing failed",
			logging.String("pad", pad.Name()))
		r.source.ReportFailure(FailedToLinkText, err.Error())
	}
}

// HandlePad маршрутизирует один новый пэд. Sink пэды игнорируются.
// При неизвестном payload type ни один потребитель не изменяется;
// при известном существующая связь source -> consumer сначала разрывается.
func (r *Router) HandlePad(pad pipeline.Pad) error {
	if pad.Direction() == pipeline.PadSink {
		return nil
	}
	if err := r.link(pad); err != nil {
		r.rejected.Add(1)
		return err
	}
	r.routed.Add(1)
	return nil
}

func (r *Router) link(pad pipeline.Pad) error {
	id, err := ParsePadName(pad.Name())
	if err != nil {
		return err
	}

	consumer, ok := r.Consumer(id.PT)
	if !ok {
		return &UnknownPTError{PT: id.PT}
	}

	r.source.Unlink(consumer)

	sink, err := pipeline.StaticPad(consumer, "sink")
	if err != nil {
		return err
	}
	if err := pipeline.LinkPads(pad, sink); err != nil {
		return err
	}

	r.logger.Info(context.Background(), "pad routed",
		logging.String("pad", id.Name),
		logging.Uint("session", id.Session),
		logging.Uint("pt", id.PT),
		logging.Any("ssrc", id.SSRC),
		logging.String("consumer", consumer.Name()))
	if r.OnRouted != nil {
		r.OnRouted(id, consumer.Name())
	}
	return nil
}

// Stats возвращает снимок счетчиков
func (r *Router) Stats() RouterStats {
	return RouterStats{Routed: r.routed.Load(), Rejected: r.rejected.Load()}
}
