package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/store"
)

func newConversationCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Conversation management commands",
	}

	cmd.AddCommand(newConversationListCmd(v))
	cmd.AddCommand(newConversationShowCmd(v))
	cmd.AddCommand(newConversationCreateCmd(v))
	cmd.AddCommand(newConversationRenameCmd(v))
	cmd.AddCommand(newConversationDeleteCmd(v))
	return cmd
}

func newConversationListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			convs, err := a.store.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(convs) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTUDENT\tTITLE\tUPDATED")
			for _, c := range convs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.StudentName, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newConversationShowCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			conv, err := a.store.FindConversation(ctx, args[0])
			if err != nil {
				return err
			}
			count, err := a.store.CountMessages(ctx, conv.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", conv.ID)
			fmt.Fprintf(out, "Title:     %s\n", conv.Title)
			fmt.Fprintf(out, "Student:   %s\n", conv.StudentName)
			fmt.Fprintf(out, "Messages:  %d\n", count)
			fmt.Fprintf(out, "Created:   %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Updated:   %s\n", conv.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newConversationCreateCmd(v *viper.Viper) *cobra.Command {
	var (
		student string
		title   string
		id      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a conversation with a student",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.store.CreateConversation(cmd.Context(), store.ConversationData{
				ID:          id,
				Title:       title,
				StudentName: student,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created conversation %s with %s (%q)\n", conv.ID, conv.StudentName, conv.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&student, "student", "s", "", "student name (required)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "conversation title (defaults to the student name)")
	cmd.Flags().StringVar(&id, "id", "", "conversation uuid (generated when empty)")
	cmd.MarkFlagRequired("student")
	return cmd
}

func newConversationRenameCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			title := args[1]
			conv, err := a.store.UpdateConversation(cmd.Context(), args[0], store.ConversationUpdate{Title: &title})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed conversation %s to %q\n", conv.ID, conv.Title)
			return nil
		},
	}
}

func newConversationDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.store.DeleteConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation %s (%q)\n", conv.ID, conv.Title)
			return nil
		},
	}
}
