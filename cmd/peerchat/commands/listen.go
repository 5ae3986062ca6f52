package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"peerchat/internal/netinfo"
	"peerchat/internal/services/identity"
	"peerchat/internal/services/session"
)

// listenCmd waits for exactly one peer on the configured port.
func listenCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Issue a token and wait for a peer to connect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token = identity.NormalizeToken(token)
			if token == "" {
				tok, err := identity.IssueToken()
				if err != nil {
					return err
				}
				token = tok
			}

			q := session.NewEventQueue(eventBuffer)
			defer q.Close()
			s, err := appCtx.NewSession(q, token)
			if err != nil {
				return err
			}
			defer s.Close()

			addr, err := s.Listen(cmd.Context(), net.JoinHostPort("", strconv.Itoa(appCtx.Config.Port)))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token: %s\n", token)
			fmt.Fprintln(out, "Share the token with your peer over a channel you trust.")
			if ip, err := netinfo.LocalIP(); err == nil {
				fmt.Fprintf(out, "Peers on your network can run: peerchat connect %s\n",
					net.JoinHostPort(ip.String(), strconv.Itoa(addr.(*net.TCPAddr).Port)))
			}
			return runChat(cmd.Context(), s, q, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reuse this token instead of issuing a new one")
	return cmd
}
