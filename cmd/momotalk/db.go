package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/db"
	"github.com/zulandar/momotalk/internal/roster"
)

func newDBCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd(v))
	return cmd
}

func newDBInitCmd(v *viper.Viper) *cobra.Command {
	var skipRoster bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the momotalk database",
		Long:  "Migrates all tables, then seeds students from the roster and gives every student a conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, v, skipRoster)
		},
	}

	cmd.Flags().BoolVar(&skipRoster, "skip-roster", false, "only migrate; do not fetch the student roster")
	return cmd
}

func runDBInit(cmd *cobra.Command, v *viper.Viper, skipRoster bool) error {
	out := cmd.OutOrStdout()

	rt, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer rt.Close()
	fmt.Fprintf(out, "Migrated %d tables (%s)\n", len(db.AllModels()), rt.cfg.Database.Driver)

	if skipRoster {
		fmt.Fprintln(out, "Skipped roster sync.")
		return nil
	}

	res, err := roster.Sync(cmd.Context(), rt.db, rosterOpts(rt))
	if err != nil {
		return err
	}
	printSyncResult(cmd, res)
	fmt.Fprintln(out, "\nmomotalk database initialized successfully.")
	return nil
}

func rosterOpts(rt *app) roster.Opts {
	return roster.Opts{
		URL:       rt.cfg.Roster.URL,
		AvatarURL: rt.cfg.Roster.AvatarURL,
	}
}

func printSyncResult(cmd *cobra.Command, res roster.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d students: %d created, %d updated, %d conversations created\n",
		res.Fetched, res.Created, res.Updated, res.Conversations)
}
