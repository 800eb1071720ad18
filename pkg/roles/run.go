package roles

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline"
	"github.com/arzzra/opus_fec/pkg/session"
	"github.com/arzzra/opus_fec/pkg/stats"
	"github.com/arzzra/opus_fec/pkg/supervisor"
)

// Role роль процесса
type Role string

const (
	RoleReceiver    Role = "receiver"
	RoleTransmitter Role = "transmitter"
)

// DotName имя dot файла, выгружаемого при переходе в PLAYING
func (r Role) DotName() string {
	if r == RoleReceiver {
		return "client-playing"
	}
	return "server-playing"
}

// defaultPtime длительность кадра opusenc, если frame-size не задан
const defaultPtime = 20 * time.Millisecond

const metricsShutdownTimeout = 2 * time.Second

// Runtime окружение запуска: фреймворк, корневой конвейер и общие параметры
type Runtime struct {
	Factory  pipeline.Factory
	Pipeline pipeline.Pipeline
	Options  Options
	Logger   logging.StructuredLogger
}

// runPlan что нужно обслуживать после сборки графа
type runPlan struct {
	role    Role
	router  *session.Router
	fec     *session.FECNegotiator
	targets []stats.Target
	sdp     session.DescribeParams
}

// RunReceiver собирает граф приемника и обслуживает его до EOS или ошибки
func RunReceiver(ctx context.Context, rt Runtime, cfg ReceiverConfig) error {
	rt = rt.withDefaults()
	if sink := rt.Options.SinkFactory; sink != "" && sink != cfg.SinkFactory {
		// buffer-time по умолчанию относится к jackaudiosink; у другого sink
		// такого свойства может не быть
		cfg.SinkFactory = sink
		cfg.BufferTime = rt.Options.BufferTime
	}
	if rt.Options.BufferTime > 0 {
		cfg.BufferTime = rt.Options.BufferTime
	}
	g, err := BuildReceiver(rt.Factory, rt.Pipeline, cfg, rt.Logger)
	if err != nil {
		return err
	}
	return run(ctx, rt, runPlan{
		role:    RoleReceiver,
		router:  g.Router,
		fec:     g.FEC,
		targets: stats.ReceiverTargets(session.FECDecoderName(0)),
		sdp: session.DescribeParams{
			Host:        rt.Options.SDPHost,
			Port:        cfg.Port,
			SessionName: "opus_fec receiver",
			Direction:   session.DirectionRecvOnly,
			Payloads:    g.Payloads,
		},
	})
}

// RunTransmitter собирает граф передатчика и обслуживает его до EOS или ошибки
func RunTransmitter(ctx context.Context, rt Runtime, cfg TransmitterConfig) error {
	rt = rt.withDefaults()
	if !cfg.Source.TestSignal && rt.Options.SourceFactory != "" {
		cfg.Source.Factory = rt.Options.SourceFactory
	}
	g, err := BuildTransmitter(rt.Factory, rt.Pipeline, cfg, rt.Logger)
	if err != nil {
		return err
	}
	ptime := cfg.FrameSize.Duration()
	if ptime == 0 {
		ptime = defaultPtime
	}
	return run(ctx, rt, runPlan{
		role:    RoleTransmitter,
		fec:     g.FEC,
		targets: stats.TransmitterTargets(session.FECEncoderName(0)),
		sdp: session.DescribeParams{
			Host:        cfg.Address,
			Port:        cfg.Port,
			SessionName: "opus_fec transmitter",
			Direction:   session.DirectionSendOnly,
			Ptime:       ptime,
		},
	})
}

func (rt Runtime) withDefaults() Runtime {
	if rt.Logger == nil {
		rt.Logger = logging.NoOpLogger{}
	}
	return rt
}

func run(ctx context.Context, rt Runtime, plan runPlan) error {
	opts := rt.Options
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := rt.Logger.WithFields(logging.String("role", string(plan.role)))

	metrics := stats.NewMetrics()
	metrics.SetRunInfo(runID, string(plan.role))
	if plan.router != nil {
		metrics.WatchRouter(plan.router)
	}
	if plan.fec != nil {
		metrics.WatchFEC(plan.fec)
	}

	if opts.SDPPath != "" {
		// SDP вспомогательный артефакт, его отказ не останавливает поток
		if err := WriteSDP(opts.SDPPath, plan.sdp); err != nil {
			logger.LogError(ctx, err, "failed to write SDP", logging.String("path", opts.SDPPath))
		} else {
			logger.Info(ctx, "SDP written", logging.String("path", opts.SDPPath))
		}
	}

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(ctx, opts.MetricsAddr, metrics, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	var pollers []supervisor.Poller
	if opts.Stats {
		pollers = append(pollers, stats.NewPoller(stats.Config{
			Source:    rt.Pipeline,
			Targets:   plan.targets,
			Interval:  opts.StatsInterval,
			Logger:    logger,
			Reporters: []stats.Reporter{metrics},
		}))
	}

	dotName := ""
	if opts.Dot {
		dotName = plan.role.DotName()
	}

	sup := supervisor.New(supervisor.Config{
		Pipeline: rt.Pipeline,
		Logger:   logger,
		DotName:  dotName,
		OnPhase: func(_, to supervisor.Phase) {
			metrics.SetPhase(string(to))
		},
		Pollers:      pollers,
		DrainTimeout: opts.DrainTimeout,
	})
	return sup.Run(ctx)
}

// WriteSDP записывает SDP описание потока в файл
func WriteSDP(path string, p session.DescribeParams) error {
	desc, err := session.Describe(p)
	if err != nil {
		return err
	}
	data, err := desc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal SDP: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// serveMetrics поднимает HTTP сервер /metrics; stop останавливает его
func serveMetrics(ctx context.Context, addr string, metrics *stats.Metrics, logger logging.StructuredLogger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError(ctx, err, "metrics server stopped")
		}
	}()
	logger.Info(ctx, "metrics server listening", logging.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
