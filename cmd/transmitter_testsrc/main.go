// transmitter_testsrc передатчик с синтетическим источником audiotestsrc.
//
//	transmitter_testsrc ADDRESS PORT OPUS_BITRATE OPUS_FRAME_SIZE PERCENTAGE PERCENTAGE_IMPORTANT WAVE FREQ
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
	return cli.NewRootCommand("transmitter_testsrc "+roles.TestSrcTransmitterUsage,
		"Send a test tone as Opus over RTP protected with ULPFEC",
		func(ctx context.Context, env *cli.Env, args []string) error {
			cfg, err := roles.ParseTestSrcTransmitterArgs(binary, args)
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
