package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "handshake",
		Short: "Mailbox login handshake simulator",
		Long: `handshake runs one responder and a crowd of concurrent requesters that
log in, send credentials and log out through a shared mailbox: a FIFO request
queue and a single addressed reply slot.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default searches ./handshake.yaml, ./config, /etc/handshake)")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	v.SetEnvPrefix("HANDSHAKE")
	// e.g. HANDSHAKE_LOG_LEVEL for --log-level
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(newRunCmd(v), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "handshake "+version)
		},
	}
}
