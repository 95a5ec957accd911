package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/models"
	"github.com/zulandar/momotalk/internal/store"
)

func newMessageCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "message",
		Aliases: []string{"msg"},
		Short:   "Transcript message commands",
	}

	cmd.AddCommand(newMessageListCmd(v))
	cmd.AddCommand(newMessageAddCmd(v))
	return cmd
}

func newMessageListCmd(v *viper.Viper) *cobra.Command {
	var (
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list <conversation-id>",
		Short: "List a conversation's messages in transcript order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if _, err := a.store.FindConversation(ctx, args[0]); err != nil {
				return err
			}

			var msgs []models.Message
			if cmd.Flags().Changed("page") || cmd.Flags().Changed("page-size") {
				msgs, err = a.store.ListMessagesPage(ctx, args[0], page, pageSize)
			} else {
				msgs, err = a.store.ListMessages(ctx, args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tROLE\tCONTENT")
			for _, m := range msgs {
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Index, m.Role, oneLine(m.Content, 80))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "0-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "messages per page")
	return cmd
}

func newMessageAddCmd(v *viper.Viper) *cobra.Command {
	var (
		role    string
		content string
		name    string
		index   int
	)

	cmd := &cobra.Command{
		Use:   "add <conversation-id>",
		Short: "Append a message to a transcript without calling the model",
		Long:  "Stores a message as-is. With --index the message is pinned to that position and later messages shift up by one.",
		Args:  cobra.ExactArgs(1),
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

			data := store.MessageData{
				ConversationID: args[0],
				Role:           r,
				Content:        content,
				Name:           name,
			}
			if cmd.Flags().Changed("index") {
				data.Index = &index
			}
			msg, err := a.store.InsertMessage(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s message at index %d\n", msg.Role, msg.Index)
			return nil
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", string(models.RoleUser), "message role (system, user, assistant)")
	cmd.Flags().StringVarP(&content, "message", "m", "", "message content (required)")
	cmd.Flags().StringVar(&name, "name", "", "optional author name")
	cmd.Flags().IntVar(&index, "index", 0, "pin the message to this transcript index")
	cmd.MarkFlagRequired("message")
	return cmd
}

// oneLine flattens s to a single line of at most limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit-3]) + "..."
	}
	return s
}
