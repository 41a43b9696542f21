package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/roc/cmd/admin"
	"github.com/ValentinKolb/roc/cmd/kv"
	"github.com/ValentinKolb/roc/cmd/serve"
	"github.com/ValentinKolb/roc/cmd/shell"
	"github.com/ValentinKolb/roc/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "roc",
		Short: "durable per-user key-value store",
		Long: fmt.Sprintf(`roc (v%s)

A networked key-value store written in Go. Every client owns a private
keyspace of uint64 values, all writes go through a single engine that
logs them to a write-ahead log before they are applied.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of roc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("roc v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper for all commands
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(shell.ShellCmd)
	RootCmd.AddCommand(admin.AdminCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "transport"
	RootCmd.PersistentFlags().String(key, "quic", util.WrapString("transport to use (quic, tcp, unix, http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
