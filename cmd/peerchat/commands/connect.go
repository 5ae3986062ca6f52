package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"peerchat/internal/services/identity"
	"peerchat/internal/services/session"
)

func connectCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "connect <host[:port]>",
		Short: "Connect to a listening peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if token == "" {
				tok, err := promptToken(cmd.ErrOrStderr(), in)
				if err != nil {
					return err
				}
				token = tok
			}
			token = identity.NormalizeToken(token)

			q := session.NewEventQueue(eventBuffer)
			defer q.Close()
			s, err := appCtx.NewSession(q, token)
			if err != nil {
				return err
			}
			defer s.Close()

			addr := session.JoinDefaultPort(args[0], appCtx.Config.Port)
			if err := s.Connect(cmd.Context(), addr); err != nil {
				return err
			}
			return runChat(cmd.Context(), s, q, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "token issued by the listening peer (prompted if omitted)")
	return cmd
}

// promptToken reads the token without echo when stdin is a terminal.
func promptToken(prompt io.Writer, in *bufio.Reader) (string, error) {
	fmt.Fprint(prompt, "Token: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if line == "" {
		return "", errors.New("no token given")
	}
	return line, nil
}
