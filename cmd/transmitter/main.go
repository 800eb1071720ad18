// transmitter кодирует звук с JACK в Opus и отправляет по RTP с ULPFEC.
//
//	transmitter ADDRESS PORT OPUS_BITRATE PERCENTAGE PERCENTAGE_IMPORTANT
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/arzzra/opus_fec/internal/cli"
	"github.com/arzzra/opus_fec/pkg/roles"
)

func main() {
	os.Exit(cli.Main(newRootCommand(os.Args[0]), os.Args[1:], os.Stderr))
}

func newRootCommand(binary string) *cobra.Command {
	return cli.NewRootCommand("transmitter "+roles.TransmitterUsage,
		"Send Opus over RTP protected with ULPFEC",
		func(ctx context.Context, env *cli.Env, args []string) error {
			cfg, err := roles.ParseTransmitterArgs(binary, args)
			if err != nil {
				return err
			}
			rt, err := env.GStreamerRuntime("transmitter")
			if err != nil {
				return err
			}
			return roles.RunTransmitter(ctx, rt, cfg)
		})
}
