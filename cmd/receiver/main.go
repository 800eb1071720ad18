// receiver принимает Opus поток с ULPFEC по RTP и воспроизводит его.
//
//	receiver PORT LATENCY SIZE-TIME(ms)
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
	return cli.NewRootCommand("receiver "+roles.ReceiverUsage,
		"Receive Opus over RTP with ULPFEC recovery",
		func(ctx context.Context, env *cli.Env, args []string) error {
			cfg, err := roles.ParseReceiverArgs(binary, args)
			if err != nil {
				return err
			}
			rt, err := env.GStreamerRuntime("receiver")
			if err != nil {
				return err
			}
			return roles.RunReceiver(ctx, rt, cfg)
		})
}
