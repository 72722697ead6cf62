package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/accordlabs/accord/cmd/util"
	"github.com/accordlabs/accord/lib/state"
	"github.com/accordlabs/accord/lib/value"
	"github.com/accordlabs/accord/remote/client"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/server"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for accord servers",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfIterations       = 1000
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
	perfLoopback         = false
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,push)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of worker goroutines to use for the benchmark"))
	key = "iterations"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the push-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "loopback"
	perfTestCmd.Flags().Bool(key, false, util.WrapString("Benchmark against an in-process loopback server instead of a remote endpoint"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfIterations = viper.GetInt("iterations")
	perfLoopback = viper.GetBool("loopback")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for accord servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Iterations: %d\n", perfIterations)
	if perfLoopback {
		fmt.Println("Target: in-process loopback server")
	}
	fmt.Println()

	// Swap the shared endpoint for a loopback rig if requested
	if perfLoopback {
		cleanup, err := setupLoopback()
		if err != nil {
			return err
		}
		defer cleanup()
	}

	fmt.Println("starting benchmarks...")

	// Create results map
	results := make(map[string]metrics.Timer)

	setTimer := runBenchmark("set", func(eng *engine, i int) error {
		_, err := eng.store.Set(benchKey("set", i), value.String("test"), nil)
		return err
	})
	results["set"] = setTimer
	printPerfResult("set", setTimer)

	pushTimer := runBenchmark("push", func(eng *engine, i int) error {
		if _, err := eng.store.Set(benchKey("push", i), value.String("test"), nil); err != nil {
			return err
		}
		return eng.orch.Sync(context.Background())
	})
	results["push"] = pushTimer
	printPerfResult("push", pushTimer)

	largeValue := value.String(strings.Repeat("x", perfLargeValueSizeKB*1024))
	pushLargeTimer := runBenchmark("push-large", func(eng *engine, i int) error {
		if _, err := eng.store.Set(benchKey("push-large", i), largeValue, nil); err != nil {
			return err
		}
		return eng.orch.Sync(context.Background())
	})
	results["push-large"] = pushLargeTimer
	printPerfResult("push-large", pushLargeTimer)

	getTimer := runBenchmark("get", func(eng *engine, i int) error {
		_, _, err := endpoint.Get(context.Background(), benchKey("push", i))
		return err
	})
	results["get"] = getTimer
	printPerfResult("get", getTimer)

	pingTimer := runBenchmark("ping", func(eng *engine, i int) error {
		return endpoint.Ping(context.Background())
	})
	results["ping"] = pingTimer
	printPerfResult("ping", pingTimer)

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writePerfResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// benchKey returns a test key by index (with wraparound)
func benchKey(prefix string, i int) string {
	return fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i%perfKeySpread)
}

// runBenchmark runs one operation across the configured worker count and
// iteration budget and samples every operation into a timer. Every worker
// drives its own engine, since concurrent cycles on one engine coalesce.
func runBenchmark(name string, op func(eng *engine, i int) error) metrics.Timer {
	timer := metrics.NewTimer()
	if shouldSkip(name) {
		return timer
	}

	perWorker := perfIterations / perfNumThreads
	if perWorker == 0 {
		perWorker = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			eng, err := newEngine()
			if err != nil {
				log.Printf("(%s) - error creating engine: %v\n", name, err)
				return
			}
			defer eng.close()

			for i := 0; i < perWorker; i++ {
				start := time.Now()
				if err := op(eng, worker*perWorker+i); err != nil {
					log.Printf("(%s) - error: %v\n", name, err)
				}
				timer.UpdateSince(start)
			}
		}(w)
	}
	wg.Wait()

	return timer
}

// setupLoopback replaces the shared endpoint with one wired to an
// in-process server, so the benchmark measures the engine without a network.
func setupLoopback() (func(), error) {
	c, err := util.GetCodec()
	if err != nil {
		return nil, err
	}

	serverStore := state.New(nil)
	clientTr, serverTr := transport.NewLoopback()
	server.NewSyncServer(common.ServerConfig{}, serverStore, serverTr, c)

	ep, err := client.NewEndpoint(common.ClientConfig{}, clientTr, c)
	if err != nil {
		serverStore.Destroy()
		return nil, err
	}

	previous := endpoint
	endpoint = ep
	return func() {
		endpoint = previous
		serverStore.Destroy()
	}, nil
}

// printPerfResult prints the result of a benchmark test in a formatted way
func printPerfResult(test string, timer metrics.Timer) {
	if timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(timer.Mean(), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\tp99=%s\t%.0f ops/sec\n",
		test, nsPerOp, time.Duration(nsPerOp), time.Duration(timer.Percentile(0.99)), opsPerSec)
}

// writePerfResultsToCSV writes benchmark results to a CSV file
func writePerfResultsToCSV(csvPath string, results map[string]metrics.Timer, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "Count", "NsPerOp", "DurationPerOp", "P99", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount", "Codec",
		"Threads", "Iterations", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, timer := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if timer.Count() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(timer.Mean(), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			strconv.FormatInt(timer.Count(), 10),
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			time.Duration(timer.Percentile(0.99)).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			viper.GetString("codec"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfIterations),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
