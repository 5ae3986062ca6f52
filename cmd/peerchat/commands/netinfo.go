package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"peerchat/internal/netinfo"
)

func netinfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "netinfo",
		Short: "Print the local and public IP address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if ip, err := netinfo.LocalIP(); err != nil {
				fmt.Fprintf(out, "Local IP:  unavailable (%v)\n", err)
			} else {
				fmt.Fprintf(out, "Local IP:  %s\n", netinfo.Describe(ip))
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), netinfo.DefaultTimeout)
			defer cancel()
			ip, err := appCtx.NetInfo.PublicIP(ctx)
			if err != nil {
				fmt.Fprintf(out, "Public IP: unavailable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "Public IP: %s\n", netinfo.Describe(ip))
			return nil
		},
	}
}
