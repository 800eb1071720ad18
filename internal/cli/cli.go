// Package cli общая обвязка cobra для бинарников ролей: флаги Options,
// загрузка YAML конфигурации, логгер, сигналы и код выхода.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/pipeline/gstreamer"
	"github.com/arzzra/opus_fec/pkg/roles"
)

// Env окружение, готовое к запуску роли
type Env struct {
	Options roles.Options
	Logger  logging.StructuredLogger
}

// RunFunc тело команды: позиционные аргументы уже не проверены cobra,
// их разбирает сама роль, чтобы сообщение об использовании называло бинарник
type RunFunc func(ctx context.Context, env *Env, args []string) error

// flagSet флаги Options; применяются поверх YAML только если заданы явно
type flagSet struct {
	config      string
	printConfig bool
	opts        roles.Options
}

// NewRootCommand создает корневую команду роли
func NewRootCommand(use, short string, run RunFunc) *cobra.Command {
	fs := &flagSet{opts: roles.DefaultOptions()}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := fs.resolve(cmd)
			if err != nil {
				return err
			}
			if fs.printConfig {
				data, err := opts.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			logger, err := opts.Logger()
			if err != nil {
				return err
			}
			return run(cmd.Context(), &Env{Options: opts, Logger: logger}, args)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&fs.config, "config", "c", "", "YAML file with run options")
	flags.BoolVar(&fs.printConfig, "print-config", false, "print effective options and exit")
	flags.StringVar(&fs.opts.LogLevel, "log-level", fs.opts.LogLevel, "log level: trace, debug, info, warn, error")
	flags.BoolVar(&fs.opts.LogJSON, "log-json", fs.opts.LogJSON, "log in JSON")
	flags.BoolVar(&fs.opts.Stats, "stats", fs.opts.Stats, "poll FEC and jitter buffer statistics")
	flags.DurationVar(&fs.opts.StatsInterval, "stats-interval", fs.opts.StatsInterval, "statistics poll interval")
	flags.StringVar(&fs.opts.MetricsAddr, "metrics-addr", fs.opts.MetricsAddr, "serve Prometheus /metrics on this address")
	flags.StringVar(&fs.opts.SDPPath, "sdp", fs.opts.SDPPath, "write SDP description of the stream to this file")
	flags.StringVar(&fs.opts.SDPHost, "sdp-host", fs.opts.SDPHost, "connection address in the receiver SDP")
	flags.BoolVar(&fs.opts.Dot, "dot", fs.opts.Dot, "dump the graph to a dot file on PLAYING (needs GST_DEBUG_DUMP_DOT_DIR)")
	flags.StringVar(&fs.opts.SinkFactory, "sink", fs.opts.SinkFactory, "audio sink element factory")
	flags.Int64Var(&fs.opts.BufferTime, "buffer-time", fs.opts.BufferTime, "audio sink buffer-time in microseconds, 0 keeps the sink default")
	flags.StringVar(&fs.opts.SourceFactory, "source", fs.opts.SourceFactory, "audio source element factory")
	flags.DurationVar(&fs.opts.DrainTimeout, "drain-timeout", fs.opts.DrainTimeout, "how long to wait for EOS after interrupt, 0 waits forever")

	return cmd
}

// resolve YAML поверх значений по умолчанию, затем явно заданные флаги
func (fs *flagSet) resolve(cmd *cobra.Command) (roles.Options, error) {
	opts, err := roles.LoadOptions(fs.config)
	if err != nil {
		return opts, err
	}
	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	override("log-level", func() { opts.LogLevel = fs.opts.LogLevel })
	override("log-json", func() { opts.LogJSON = fs.opts.LogJSON })
	override("stats", func() { opts.Stats = fs.opts.Stats })
	override("stats-interval", func() { opts.StatsInterval = fs.opts.StatsInterval })
	override("metrics-addr", func() { opts.MetricsAddr = fs.opts.MetricsAddr })
	override("sdp", func() { opts.SDPPath = fs.opts.SDPPath })
	override("sdp-host", func() { opts.SDPHost = fs.opts.SDPHost })
	override("dot", func() { opts.Dot = fs.opts.Dot })
	override("sink", func() { opts.SinkFactory = fs.opts.SinkFactory })
	override("buffer-time", func() { opts.BufferTime = fs.opts.BufferTime })
	override("source", func() { opts.SourceFactory = fs.opts.SourceFactory })
	override("drain-timeout", func() { opts.DrainTimeout = fs.opts.DrainTimeout })
	return opts, opts.Validate()
}

// GStreamerRuntime инициализирует GStreamer и создает пустой конвейер
func (e *Env) GStreamerRuntime(name string) (roles.Runtime, error) {
	gstreamer.Init()
	p, err := gstreamer.NewPipeline(name)
	if err != nil {
		return roles.Runtime{}, err
	}
	return roles.Runtime{
		Factory:  gstreamer.NewFactory(),
		Pipeline: p,
		Options:  e.Options,
		Logger:   e.Logger,
	}, nil
}

// Main выполняет команду с контекстом, отменяемым по SIGINT/SIGTERM,
// и возвращает код выхода
func Main(cmd *cobra.Command, args []string, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args == nil {
		// nil заставил бы cobra читать os.Args
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error!", err)
		return 1
	}
	return 0
}
