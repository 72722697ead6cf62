package serve

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/accordlabs/accord/cmd/util"
	"github.com/accordlabs/accord/lib/bus"
	"github.com/accordlabs/accord/lib/bus/eventlog"
	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/syncmgr"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/server"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/accordlabs/accord/remote/transport/httpt"
	"github.com/accordlabs/accord/remote/transport/tcpt"
	"github.com/accordlabs/accord/remote/transport/unixt"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the accord sync server",
		Long:    `Start the accord sync server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is ACCORD_<flag> (e.g. ACCORD_HISTORY_SIZE=200)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "history-size"
	ServeCmd.PersistentFlags().Int(key, 100, util.WrapString("How many versions of every key the server keeps in its history ring"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", util.WrapString("Directory for the SQLite event log recording every state change for later inspection. Leave empty to disable persistence"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", util.WrapString("The address on which the sync API will listen, a socket path for the unix transport"))

	key = "debug-endpoint"
	ServeCmd.PersistentFlags().String(key, "", util.WrapString("Optional address for the debug API serving pprof and prometheus metrics (e.g. localhost:6060). Leave empty to disable"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 0, util.WrapString("Write timeout in seconds for the socket transports (0 disables)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, util.WrapString("Disable Nagle's algorithm on the tcp transport"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.HistorySize = viper.GetInt("history-size")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DebugEndpoint = viper.GetString("debug-endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.Socket.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the accord sync server
func run(_ *cobra.Command, _ []string) error {

	// parse the codec
	c, err := util.GetCodec()
	if err != nil {
		return err
	}

	// parse the transport
	var tr transport.ServerTransport
	switch viper.GetString("transport") {
	case "http":
		tr = httpt.NewHTTPServerTransport()
	case "tcp":
		tr = tcpt.NewTCPServerTransport()
	case "unix":
		tr = unixt.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	// create the server side state store
	store := state.New(&state.Options{HistorySize: serveCmdConfig.HistorySize})

	// record every state change on the event bus, persisted when configured
	b, err := setupBus(store)
	if err != nil {
		return err
	}
	defer b.Destroy()

	// start the debug API
	if serveCmdConfig.DebugEndpoint != "" {
		startDebugServer(serveCmdConfig.DebugEndpoint, b)
	}

	serv := server.NewSyncServer(
		*serveCmdConfig,
		store,
		tr,
		c,
	)

	return serv.Serve()
}

// setupBus creates the server side event bus and bridges store updates onto
// it. With a data directory configured, events are persisted to SQLite.
func setupBus(store *state.Store) (*bus.Bus, error) {
	opts := bus.DefaultOptions()

	if serveCmdConfig.HasEventLog() {
		if err := os.MkdirAll(serveCmdConfig.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %v", err)
		}
		elog, err := eventlog.Open(filepath.Join(serveCmdConfig.DataDir, "events.db"))
		if err != nil {
			return nil, fmt.Errorf("opening event log: %v", err)
		}
		opts.EventLog = elog
	}

	b := bus.New(opts)
	store.OnUpdate(func(u state.Update) {
		if _, err := b.Publish(syncmgr.EventStateChanged, u, nil); err != nil {
			log.Printf("failed to publish state change for %q: %v\n", u.Key, err)
		}
	})

	return b, nil
}

// startDebugServer serves pprof and prometheus metrics on a side listener
func startDebugServer(addr string, b *bus.Bus) {
	// pprof registers itself on the default mux
	http.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
		b.WritePrometheus(w)
	})

	go func() {
		log.Printf("debug API listening on %s\n", addr)
		log.Printf("debug API stopped: %v\n", http.ListenAndServe(addr, nil))
	}()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("accord")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
