package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/roc/cmd/util"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for roc servers",
		Long:    "Runs a set of benchmarks against a roc server. All keys are written for the client's own user id and removed afterwards.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)

	// perfRegistry holds one latency timer per benchmark
	perfRegistry = metrics.NewRegistry()
)

// perfResult combines the testing.Benchmark result with the latency distribution
type perfResult struct {
	bench testing.BenchmarkResult
	timer metrics.Timer
}

// benchmark describes one test of the perf command
type benchmark struct {
	name string
	// setup runs once before the timer starts
	setup func(getKey func(int) string) error
	// op is executed b.N times, i is a per goroutine counter
	op func(getKey func(int) string, i int) error
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for roc servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(clientConfig.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("User ID: %s\n", userID)
	fmt.Println()

	fmt.Println("staring tests...")

	fill := func(getKey func(int) string) error {
		for i := 0; i < perfKeySpread; i++ {
			if err := rpcStore.Set(userID, getKey(i), uint64(i)); err != nil {
				return err
			}
		}
		return nil
	}

	benchmarks := []benchmark{
		{
			name: "set",
			op: func(getKey func(int) string, i int) error {
				return rpcStore.Set(userID, getKey(i), uint64(i))
			},
		},
		{
			name: "update",
			op: func(getKey func(int) string, i int) error {
				return rpcStore.Update(userID, getKey(i), uint64(i))
			},
		},
		{
			name:  "get",
			setup: fill,
			op: func(getKey func(int) string, i int) error {
				_, _, err := rpcStore.Get(userID, getKey(i))
				return err
			},
		},
		{
			name: "get-missing",
			op: func(getKey func(int) string, i int) error {
				_, _, err := rpcStore.Get(userID, getKey(i))
				return err
			},
		},
		{
			name:  "delete",
			setup: fill,
			op: func(getKey func(int) string, i int) error {
				return rpcStore.Delete(userID, getKey(i))
			},
		},
		{
			name:  "range",
			setup: fill,
			op: func(getKey func(int) string, i int) error {
				_, err := rpcStore.Range(userID, getKey(0), getKey(min(9, perfKeySpread-1)))
				return err
			},
		},
		{
			name:  "list",
			setup: fill,
			op: func(getKey func(int) string, i int) error {
				_, err := rpcStore.List(userID)
				return err
			},
		},
		{
			name:  "mixed",
			setup: fill,
			// 50% get, 30% set, 10% delete, 10% range
			op: func(getKey func(int) string, i int) error {
				var err error
				switch i % 10 {
				case 0, 1, 2, 3, 4:
					_, _, err = rpcStore.Get(userID, getKey(i))
				case 5, 6, 7:
					err = rpcStore.Set(userID, getKey(i), uint64(i))
				case 8:
					err = rpcStore.Delete(userID, getKey(i))
				default:
					_, err = rpcStore.Range(userID, getKey(i), getKey(i+5))
				}
				return err
			},
		},
	}

	// Create results map
	results := make(map[string]perfResult)
	for _, bm := range benchmarks {
		result := runBenchmark(bm)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, clientConfig); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		fmt.Println("CSV export completed successfully")
	}

	return nil
}

// runBenchmark executes one benchmark in parallel and records the latency of every call
func runBenchmark(bm benchmark) perfResult {
	timer := metrics.GetOrRegisterTimer(bm.name, perfRegistry)

	result := testing.Benchmark(func(b *testing.B) {
		if shouldSkip(bm.name) {
			return
		}

		// prepare keys
		getKey, iter := getKeys(bm.name)

		// cleanup
		b.Cleanup(func() {
			iter(func(k string) {
				if err := rpcStore.Delete(userID, k); err != nil {
					log.Printf("(%s) - error deleting key: %v\n", bm.name, err)
				}
			})
		})

		if bm.setup != nil {
			if err := bm.setup(getKey); err != nil {
				log.Printf("(%s) - error during setup: %v\n", bm.name, err)
				return
			}
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := bm.op(getKey, counter); err != nil {
					log.Printf("(%s) - error: %v\n", bm.name, err)
				}
				timer.UpdateSince(start)
				counter++
			}
		})
	})

	return perfResult{bench: result, timer: timer.Snapshot()}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%06d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// percentiles returns p50, p95 and p99 of the recorded latencies
func percentiles(t metrics.Timer) []time.Duration {
	ps := t.Percentiles([]float64{0.5, 0.95, 0.99})
	out := make([]time.Duration, len(ps))
	for i, p := range ps {
		out[i] = time.Duration(p)
	}
	return out
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := percentiles(result.timer)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p95=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p[0], p[1], p[2])
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Calls", "P50", "P95", "P99",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Transport", "Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		p := percentiles(result.timer)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.FormatInt(result.timer.Count(), 10),
			p[0].String(),
			p[1].String(),
			p[2].String(),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			string(config.Transport.Type),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
