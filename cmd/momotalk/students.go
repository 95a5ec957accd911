package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/roster"
)

func newStudentsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "students",
		Aliases: []string{"student"},
		Short:   "Student persona commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List seeded students",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsList(cmd, v)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Fetch the roster and upsert students",
		Long:  "Downloads the student roster, creates missing students, merges avatar lists, and gives every student without one a conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsSync(cmd, v)
		},
	})
	return cmd
}

func runStudentsList(cmd *cobra.Command, v *viper.Viper) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	students, err := a.store.ListStudents(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(students) == 0 {
		fmt.Fprintln(out, "No students. Run `momotalk students sync` to fetch the roster.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAVATARS")
	for _, s := range students {
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Name, s.Avatars)
	}
	return w.Flush()
}

func runStudentsSync(cmd *cobra.Command, v *viper.Viper) error {
	a, err := openApp(cmd, v)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := roster.Sync(cmd.Context(), a.db, rosterOpts(a))
	if err != nil {
		return err
	}
	printSyncResult(cmd, res)
	return nil
}
