package events

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/accordlabs/accord/cmd/util"
	"github.com/accordlabs/accord/lib/bus/eventlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// EventCommands represents the events command group
	EventCommands = &cobra.Command{
		Use:   "events",
		Short: "Inspect a persisted event log",
		Long:  "Inspect the SQLite event log written by a server running with --data-dir. The commands open the log file directly, so they work offline.",
	}

	// getEventCmd represents the get command
	getEventCmd = &cobra.Command{
		Use:   "get [eventID]",
		Short: "Print one persisted event",
		Long:  "Print one persisted event as JSON. Event ids are recorded in the payloads of the event log itself and in debug level server logs.",
		Args:  cobra.ExactArgs(1),
		RunE:  runGetEvent,
	}

	// countCmd represents the count command
	countCmd = &cobra.Command{
		Use:   "count",
		Short: "Print the number of persisted events",
		RunE:  runCount,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to events command
	EventCommands.AddCommand(getEventCmd)
	EventCommands.AddCommand(countCmd)

	// Add flags
	EventCommands.PersistentFlags().String("data-dir", "data", util.WrapString("Directory holding the event log written by accord serve"))
}

// openLog opens the event log of the configured data directory
func openLog(cmd *cobra.Command) (*eventlog.Log, error) {
	if err := util.BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	return eventlog.Open(filepath.Join(viper.GetString("data-dir"), "events.db"))
}

// runGetEvent handles the get command
func runGetEvent(cmd *cobra.Command, args []string) error {
	elog, err := openLog(cmd)
	if err != nil {
		return err
	}
	defer elog.Close()

	e, found, err := elog.GetEvent(args[0])
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("id=%s, found=false\n", args[0])
		return nil
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))

	return nil
}

// runCount handles the count command
func runCount(cmd *cobra.Command, _ []string) error {
	elog, err := openLog(cmd)
	if err != nil {
		return err
	}
	defer elog.Close()

	n, err := elog.Len()
	if err != nil {
		return err
	}
	fmt.Printf("events=%d\n", n)

	return nil
}
