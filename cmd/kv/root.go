package kv

import (
	"fmt"

	"github.com/accordlabs/accord/cmd/util"
	"github.com/accordlabs/accord/lib/bus"
	"github.com/accordlabs/accord/lib/resolve"
	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/syncmgr"
	"github.com/accordlabs/accord/remote/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	endpoint *client.Endpoint

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Read and synchronize state on an accord server",
		PersistentPreRunE: setupEndpoint,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common connection flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Set the conflict strategy used by the local engine of each invocation
	KeyValueCommands.PersistentFlags().String("strategy", resolve.StrategyLastWriteWins,
		util.WrapString("Conflict resolution strategy (last-write-wins, server-wins, client-wins, auto-merge)"))

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(syncCmd)
	KeyValueCommands.AddCommand(statusCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupEndpoint initializes the remote endpoint client
func setupEndpoint(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get the codec
	c, err := util.GetCodec()
	if err != nil {
		return err
	}

	// Get the transport
	tr, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the endpoint client
	endpoint, err = client.NewEndpoint(
		*util.GetClientConfig(),
		tr,
		c,
	)

	return err
}

// engine bundles the local components of a one-shot client invocation.
type engine struct {
	store *state.Store
	bus   *bus.Bus
	orch  *syncmgr.Orchestrator
}

// newEngine wires a fresh local engine around the shared endpoint
func newEngine() (*engine, error) {
	strategy := viper.GetString("strategy")
	switch strategy {
	case resolve.StrategyLastWriteWins, resolve.StrategyServerWins, resolve.StrategyClientWins, resolve.StrategyAutoMerge:
	default:
		return nil, fmt.Errorf("invalid strategy %s", strategy)
	}

	st := state.New(nil)
	b := bus.New(nil)
	orch, err := syncmgr.New(st, b, resolve.New(&resolve.Options{DefaultStrategy: strategy}), endpoint, nil)
	if err != nil {
		b.Destroy()
		st.Destroy()
		return nil, err
	}

	return &engine{store: st, bus: b, orch: orch}, nil
}

func (e *engine) close() {
	e.orch.Destroy()
	e.bus.Destroy()
	e.store.Destroy()
}
