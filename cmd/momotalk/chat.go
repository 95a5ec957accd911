package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/chat"
	"github.com/zulandar/momotalk/internal/models"
	"golang.org/x/term"
)

// describedError renders an exchange error the way chat.Describe does while
// keeping the cause available to errors.Is/As.
type describedError struct{ err error }

func (e describedError) Error() string { return chat.Describe(e.err) }
func (e describedError) Unwrap() error { return e.err }

func newChatCmd(v *viper.Viper) *cobra.Command {
	var (
		message string
		role    string
	)

	cmd := &cobra.Command{
		Use:   "chat <conversation-id>",
		Short: "Chat with a conversation's student",
		Long: `Sends turns to the model and stores both sides of the exchange.

With -m a single turn is sent and the reply printed. Without it, lines are
read from stdin until EOF; each line is one turn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			orch := a.orchestrator()
			if cmd.Flags().Changed("message") {
				return chatOnce(cmd.Context(), cmd.OutOrStdout(), orch, args[0], models.Turn{Role: r, Content: message})
			}
			return chatLoop(cmd, orch, args[0], r)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleUser), "role of the sent turns")
	return cmd
}

func chatOnce(ctx context.Context, out io.Writer, ex exchanger, convID string, turn models.Turn) error {
	reply, err := ex.Exchange(ctx, turn, convID)
	if err != nil {
		return describedError{err}
	}
	fmt.Fprintln(out, reply.Content)
	return nil
}

// chatLoop reads one turn per line. Exchange errors are printed and the
// loop continues; the failed turn stays in the transcript.
func chatLoop(cmd *cobra.Command, ex exchanger, convID string, role models.Role) error {
	in := cmd.InOrStdin()
	out := cmd.OutOrStdout()
	interactive := isTerminal(in)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := chatOnce(cmd.Context(), out, ex, convID, models.Turn{Role: role, Content: line}); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}
	return scanner.Err()
}

// exchanger is the part of the orchestrator the chat command uses.
type exchanger interface {
	Exchange(ctx context.Context, incoming models.Turn, conversationID string) (models.Turn, error)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
