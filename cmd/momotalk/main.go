package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/momotalk/internal/config"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "momotalk",
		Short:         "momotalk: persona chat over an OpenAI-compatible API",
		Long:          "momotalk keeps per-student conversation transcripts and exchanges turns with a chat-completion endpoint.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindRuntimeFlags(v, cmd.Root())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("config", "c", config.DefaultConfigPath, "path to momotalk config file")
	pf.String("log-level", "", "log level (trace, debug, info, warn, error); overrides log.level")
	pf.String("log-format", "", "log format (text, json); overrides log.format")
	pf.String("log-file", "", "also write logs to this rotating file; overrides log.file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd(v))
	cmd.AddCommand(newStudentsCmd(v))
	cmd.AddCommand(newConversationCmd(v))
	cmd.AddCommand(newMessageCmd(v))
	cmd.AddCommand(newChatCmd(v))
	cmd.AddCommand(newServeCmd(v))
	return cmd
}

// bindRuntimeFlags wires the persistent flags and MOMOTALK_* environment
// variables into v. Flags win over the environment.
func bindRuntimeFlags(v *viper.Viper, root *cobra.Command) error {
	v.SetEnvPrefix("momotalk")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v.BindPFlags(root.PersistentFlags())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "momotalk %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
