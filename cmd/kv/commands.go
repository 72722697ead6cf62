package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/accordlabs/accord/cmd/util"
	"github.com/accordlabs/accord/lib/value"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets a value and pushes it to the server",
		Long: "Sets a value in a local engine and synchronizes it to the server. " +
			"Values that parse as JSON keep their JSON type, everything else is stored as a string. " +
			"A conflicting server entry is resolved with the configured strategy and the resolution is pushed back.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			key := args[0]
			if _, err := eng.store.Set(key, util.ParseValue(args[1]), nil); err != nil {
				return err
			}

			ctx, cancel := timeoutContext()
			defer cancel()

			if err := syncAndConverge(ctx, eng); err != nil {
				return err
			}

			if stats := eng.orch.Statistics(); stats.ConflictsResolved > 0 {
				entry, _ := eng.store.GetEntry(key)
				fmt.Printf("set resolved a conflict (%s), effective value: %s\n",
					viper.GetString("strategy"), entry.Value)
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeoutContext()
			defer cancel()

			key := args[0]
			entry, found, err := endpoint.Get(ctx, key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			fmt.Printf("key=%s, found=true, value=%s, version=%d, timestamp=%s\n",
				key, entry.Value, entry.Version, entry.Timestamp.Format(time.RFC3339))
			return nil
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync [file]",
		Short: "Pushes all entries of a JSON document to the server",
		Long: "Reads a JSON object mapping keys to values from the given file (or stdin when " +
			"the file is \"-\"), loads it into a local engine and synchronizes everything " +
			"to the server in one cycle.",
		Args: cobra.ExactArgs(1),
		RunE: runSync,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Checks whether the server is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := timeoutContext()
			defer cancel()

			start := time.Now()
			if err := endpoint.Ping(ctx); err != nil {
				return fmt.Errorf("server not reachable: %v", err)
			}
			fmt.Printf("server reachable, round trip took %s\n", time.Since(start).Round(time.Microsecond))
			fmt.Println()
			fmt.Println(util.GetClientConfig().String())
			return nil
		},
	}
)

// runSync handles the sync command
func runSync(_ *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	var doc map[string]value.Value
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %v", args[0], err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("document contains no entries")
	}

	eng, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.close()

	for key, v := range doc {
		if _, err := eng.store.Set(key, v, nil); err != nil {
			return err
		}
	}

	ctx, cancel := timeoutContext()
	defer cancel()

	if err := syncAndConverge(ctx, eng); err != nil {
		return err
	}

	stats := eng.orch.Statistics()
	fmt.Printf("synchronized %d changes (%d conflicts resolved, %d errors)\n",
		stats.ChangesProcessed, stats.ConflictsResolved, stats.BatchErrors)
	return nil
}

// syncAndConverge runs one sync cycle and, when conflicts were resolved,
// a second one so the resolutions reach the server.
func syncAndConverge(ctx context.Context, eng *engine) error {
	if err := eng.orch.Sync(ctx); err != nil {
		return err
	}
	if eng.orch.Statistics().ConflictsResolved > 0 {
		return eng.orch.Sync(ctx)
	}
	return nil
}

// timeoutContext derives the operation deadline from the client timeout flag
func timeoutContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
}
