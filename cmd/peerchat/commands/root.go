package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"peerchat/internal/app"
)

var appCtx *app.Wire

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "peerchat",
		Short:        "Encrypted two-peer chat and file transfer",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := app.NewViper()
			if err := app.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := app.Load(v)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			appCtx = w
			return nil
		},
	}

	app.RegisterFlags(root.PersistentFlags())

	root.AddCommand(listenCmd(), connectCmd(), tokenCmd(), netinfoCmd())
	return root
}
