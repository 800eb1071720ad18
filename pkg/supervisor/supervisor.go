// Package supervisor управляет жизненным циклом запущенного конвейера:
// переводит его в PLAYING, обслуживает шину сообщений и корректно
// останавливает по EOS, ошибке или отмене контекста.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
)

// Poller фоновая задача, живущая пока работает конвейер (опрос статистики)
type Poller interface {
	Start(ctx context.Context)
	// Stop останавливает задачу и дожидается ее завершения
	Stop()
}

// Config параметры супервизора
type Config struct {
	Pipeline pipeline.Pipeline
	Logger   logging.StructuredLogger

	// DotName имя dot файла, выгружаемого при первом переходе в PLAYING
	DotName string
	// OnPlaying однократный хук подтверждения PLAYING
	OnPlaying func()
	// OnPhase вызывается при каждом переходе фазы
	OnPhase PhaseHandler

	Pollers []Poller

	// DrainTimeout сколько ждать EOS после отмены контекста.
	// Ноль означает ждать без ограничения.
	DrainTimeout time.Duration
}

// Supervisor обслуживает один конвейер. Run вызывается один раз.
type Supervisor struct {
	cfg    Config
	logger logging.StructuredLogger
	life   *lifecycle

	playingOnce sync.Once
}

// New создает супервизор в фазе assembled
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Supervisor{
		cfg:    cfg,
		logger: logger.WithComponent("supervisor").WithFields(logging.String("pipeline", cfg.Pipeline.Name())),
	}
	s.life = newLifecycle(func(from, to Phase) {
		s.logger.Debug(context.Background(), "phase changed",
			logging.String("from", string(from)),
			logging.String("to", string(to)))
		if cfg.OnPhase != nil {
			cfg.OnPhase(from, to)
		}
	})
	return s
}

// Phase текущая фаза
func (s *Supervisor) Phase() Phase { return s.life.current() }

// Run переводит конвейер в PLAYING и блокируется до EOS или ошибки.
// Отмена ctx посылает EOS в конвейер, цикл продолжает ждать его на шине.
func (s *Supervisor) Run(ctx context.Context) error {
	p := s.cfg.Pipeline
	s.life.fire(eventStart)

	if err := p.SetState(pipeline.StatePlaying); err != nil {
		s.life.fire(eventFail)
		return &StateChangeError{Target: pipeline.StatePlaying, Wrapped: err}
	}

	for _, poller := range s.cfg.Pollers {
		poller.Start(ctx)
	}

	runErr := s.loop(ctx)

	if err := p.SetState(pipeline.StateNull); err != nil && runErr == nil {
		runErr = &StateChangeError{Target: pipeline.StateNull, Wrapped: err}
	}
	for _, poller := range s.cfg.Pollers {
		poller.Stop()
	}

	if runErr != nil {
		s.life.fire(eventFail)
	} else {
		s.life.fire(eventStop)
	}
	return runErr
}

func (s *Supervisor) loop(ctx context.Context) error {
	messages := make(chan pipeline.Message)
	done := make(chan struct{})
	defer close(done)
	go pump(s.cfg.Pipeline.Bus(), messages, done)

	cancelled := ctx.Done()
	var drainTimer <-chan time.Time

	for {
		select {
		case <-cancelled:
			cancelled = nil
			s.logger.Info(ctx, "shutdown requested, sending EOS")
			s.life.fire(eventDrain)
			if !s.cfg.Pipeline.SendEOS() {
				s.logger.Warn(ctx, "pipeline did not accept EOS")
			}
			if s.cfg.DrainTimeout > 0 {
				drainTimer = time.After(s.cfg.DrainTimeout)
			}

		case <-drainTimer:
			return &DrainTimeoutError{Timeout: s.cfg.DrainTimeout.String()}

		case msg, ok := <-messages:
			if !ok {
				return ErrBusClosed
			}
			stop, err := s.handle(ctx, msg)
			if stop {
				return err
			}
		}
	}
}

// handle разбирает одно сообщение шины. stop == true завершает цикл.
func (s *Supervisor) handle(ctx context.Context, msg pipeline.Message) (stop bool, err error) {
	switch msg.Kind {
	case pipeline.MessageEOS:
		s.logger.Info(ctx, "Stream ended")
		return true, nil

	case pipeline.MessageError:
		errMsg := &ErrorMessage{Src: msg.Source, Text: msg.Text, Debug: msg.Debug}
		s.logger.LogError(logging.WithElement(ctx, msg.Source), errMsg, "pipeline error")
		return true, errMsg

	case pipeline.MessageWarning:
		s.logger.Warn(logging.WithElement(ctx, msg.Source), msg.Text,
			logging.String("debug", msg.Debug))

	case pipeline.MessageStateChanged:
		if msg.FromPipeline && msg.NewState == pipeline.StatePlaying {
			s.playingOnce.Do(func() { s.onPlaying(ctx) })
		}
	}
	return false, nil
}

func (s *Supervisor) onPlaying(ctx context.Context) {
	s.life.fire(eventConfirm)
	s.logger.Info(ctx, "PLAYING")
	if s.cfg.DotName != "" {
		s.cfg.Pipeline.DumpDot(s.cfg.DotName)
	}
	if s.cfg.OnPlaying != nil {
		s.cfg.OnPlaying()
	}
}

func pump(bus pipeline.Bus, out chan<- pipeline.Message, done <-chan struct{}) {
	for {
		msg, ok := bus.Pop()
		if !ok {
			close(out)
			return
		}
		select {
		case out <- msg:
		case <-done:
			return
		}
	}
}
