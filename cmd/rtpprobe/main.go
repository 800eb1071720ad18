// rtpprobe проверяет RTP поток без GStreamer.
//
//	rtpprobe listen 127.0.0.1:5000     считает пакеты по PT/SSRC
//	rtpprobe send 127.0.0.1:5000       шлет синтетический PT 96
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arzzra/opus_fec/internal/cli"
	"github.com/arzzra/opus_fec/pkg/logging"
	"github.com/arzzra/opus_fec/pkg/rtpprobe"
)

func main() {
	os.Exit(cli.Main(newRootCommand(), os.Args[1:], os.Stderr))
}

type rootFlags struct {
	logLevel string
	logJSON  bool
}

func (f *rootFlags) logger() (logging.StructuredLogger, error) {
	level, err := logging.ParseLevel(f.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: level, Output: os.Stderr, JSON: f.logJSON}), nil
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "rtpprobe",
		Short:         "Inspect or generate RTP streams on UDP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level")
	cmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "log in JSON")
	cmd.AddCommand(newListenCommand(flags), newSendCommand(flags))
	return cmd
}

func newListenCommand(root *rootFlags) *cobra.Command {
	var (
		duration    time.Duration
		interval    time.Duration
		metricsAddr string
		reusePort   bool
		requirePTs  []uint
	)
	cmd := &cobra.Command{
		Use:   "listen ADDR",
		Short: "Count RTP packets per payload type and SSRC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			l, err := rtpprobe.Listen(rtpprobe.ListenConfig{Addr: args[0], ReusePort: reusePort})
			if err != nil {
				return err
			}
			defer l.Close()

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			probe := rtpprobe.NewProbe(l, logger)
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(rtpprobe.NewCollector(probe.Counter()))
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.LogError(ctx, err, "metrics server stopped")
					}
				}()
				defer srv.Close()
			}
			if interval > 0 {
				go probe.Report(ctx, interval)
			}

			if err := probe.Run(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, st := range probe.Counter().Snapshot() {
				fmt.Fprintf(out, "pt=%d ssrc=%d packets=%d lost=%d reordered=%d\n",
					st.PT, st.SSRC, st.Packets, st.Lost, st.Reordered)
			}
			for _, pt := range requirePTs {
				if !probe.Counter().HasPT(uint8(pt)) {
					return fmt.Errorf("no packets with payload type %d", pt)
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long, 0 runs until interrupted")
	cmd.Flags().DurationVar(&interval, "report-interval", time.Second, "log counters periodically, 0 disables")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus /metrics on this address")
	cmd.Flags().BoolVar(&reusePort, "reuse-port", false, "share the port with another listener (Linux)")
	cmd.Flags().UintSliceVar(&requirePTs, "require-pt", nil, "fail unless these payload types were seen (e.g. 96,100)")
	return cmd
}

func newSendCommand(root *rootFlags) *cobra.Command {
	var (
		count     int
		ssrc      uint32
		ptime     time.Duration
		size      int
		dscp      int
	)
	cmd := &cobra.Command{
		Use:   "send ADDR",
		Short: "Send a synthetic PT 96 RTP stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ptime <= 0 {
				return fmt.Errorf("ptime must be positive, got %s", ptime)
			}
			logger, err := root.logger()
			if err != nil {
				return err
			}
			s, err := rtpprobe.Dial(rtpprobe.SendConfig{Remote: args[0], DSCP: dscp})
			if err != nil {
				return err
			}
			defer s.Close()

			if ssrc == 0 {
				ssrc = rand.Uint32()
			}
			g := rtpprobe.NewGenerator(ssrc, uint16(rand.Intn(1<<16)))
			g.Ptime = ptime
			g.PayloadSize = size

			ctx := cmd.Context()
			logger.Info(ctx, "sending",
				logging.String("remote", args[0]),
				logging.Int64("ssrc", int64(ssrc)),
				logging.Duration("ptime", ptime))
			sent, err := g.Run(ctx, s, count)
			logger.Info(ctx, "done", logging.Int("sent", sent))
			return err
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "packets to produce, 0 sends until interrupted")
	cmd.Flags().Uint32Var(&ssrc, "ssrc", 0, "SSRC, random when 0")
	cmd.Flags().DurationVar(&ptime, "ptime", rtpprobe.DefaultPtime, "packet duration")
	cmd.Flags().IntVar(&size, "payload-size", rtpprobe.DefaultPayloadSize, "payload bytes per packet")
	cmd.Flags().IntVar(&dscp, "dscp", 46, "DSCP marking, 0 leaves the default")
	return cmd
}
