package cmd

import (
	"fmt"
	"os"

	"github.com/accordlabs/accord/cmd/events"
	"github.com/accordlabs/accord/cmd/kv"
	"github.com/accordlabs/accord/cmd/serve"
	"github.com/accordlabs/accord/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.4.2"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "accord",
		Short: "state synchronization engine",
		Long: fmt.Sprintf(`accord (v%s)

A state synchronization engine written in Go. It keeps versioned local
state, publishes every change on an event bus, and reconciles divergent
replicas through pluggable conflict resolution strategies.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of accord",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("accord v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(events.EventCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "codec"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("codec to use for the wire format (json, gob)"))

	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use for client server communication (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
