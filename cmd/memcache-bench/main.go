package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"

	memcache "github.com/pior/memcache-async"
	"github.com/pior/memcache-async/reactor"
)

type OperationType string

const (
	CacheHit     OperationType = "cache-hit"
	DynamicValue OperationType = "dynamic-value"
	CacheMiss    OperationType = "cache-miss"
	Increment    OperationType = "increment"
	NoReplySet   OperationType = "noreply-set"
	All          OperationType = "all"
)

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// worker state shared by the goroutines of one benchmark.
type benchRun struct {
	totalOps     atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
	totalLatency atomic.Int64

	mu           sync.Mutex
	correctness  bool
	errorMessage string
}

func (r *benchRun) mismatch(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correctness = false
	r.errorMessage = msg
}

func main() {
	var (
		operation   = flag.String("operation", "all", "Operation type: cache-hit, dynamic-value, cache-miss, increment, noreply-set, or all")
		duration    = flag.Duration("duration", 5*time.Second, "Duration to run benchmarks")
		concurrency = flag.Int("concurrency", 4, "Number of concurrent workers")
		depth       = flag.Int("depth", 32, "Commands in flight per worker")
		addr        = flag.String("addr", "localhost:11211", "Memcached server address")
	)
	flag.Parse()

	fmt.Printf("Memcache Pipelining Benchmark\n")
	fmt.Printf("=============================\n")
	fmt.Printf("Operation: %s\n", *operation)
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Pipeline depth: %d\n", *depth)
	fmt.Printf("Server: %s\n", *addr)
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := reactor.New()
	go func() { _ = loop.Run(ctx) }()

	client := memcache.NewClient(*addr, loop, memcache.Config{})
	defer client.Close()

	fmt.Print("Testing connection...")
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	reply, err := client.Version().Wait(pingCtx)
	pingCancel()
	if err != nil {
		fmt.Printf(" failed: %v\n", err)
		fmt.Printf("Make sure memcached is running on %s\n", *addr)
		fmt.Printf("You can start it with: docker-compose up -d\n")
		return
	}
	fmt.Printf(" success! (%s)\n\n", reply.Line)

	operations := []OperationType{OperationType(*operation)}
	if OperationType(*operation) == All {
		operations = []OperationType{CacheHit, DynamicValue, CacheMiss, Increment, NoReplySet}
	}

	for _, op := range operations {
		fmt.Printf("--- Running %s benchmark ---\n", op)
		printResult(runBenchmark(ctx, client, op, *duration, *concurrency, *depth))
	}

	stats := client.Stats()
	fmt.Printf("Client: %d requests, %d replies, %d errors, %d connects\n",
		stats.Requests, stats.Replies, stats.Errors, stats.Connects)
}

// batchFunc issues one pipelined batch and returns a check per command.
type batchFunc func(workerID, batch int) []check

type check struct {
	result *memcache.Result
	verify func(value any, line string) string
}

func runBenchmark(ctx context.Context, client *memcache.Client, op OperationType, duration time.Duration, concurrency, depth int) *BenchmarkResult {
	batch, err := prepare(ctx, client, op, depth)
	if err != nil {
		return &BenchmarkResult{Operation: op, ErrorMessage: err.Error()}
	}

	run := &benchRun{correctness: true}
	startTime := time.Now()

	var wg sync.WaitGroup
	for i := range concurrency {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for n := 0; time.Since(startTime) < duration; n++ {
				batchStart := time.Now()
				checks := batch(workerID, n)
				for _, c := range checks {
					reply, err := c.result.Wait(ctx)
					run.totalOps.Inc()
					if err != nil {
						run.failures.Inc()
						continue
					}
					run.successes.Inc()
					if c.verify != nil {
						if msg := c.verify(reply.Value(), reply.Line); msg != "" {
							run.mismatch(msg)
						}
					}
				}
				run.totalLatency.Add(int64(time.Since(batchStart)))
			}
		}(i)
	}
	wg.Wait()

	result := &BenchmarkResult{
		Operation:    op,
		Duration:     time.Since(startTime),
		TotalOps:     run.totalOps.Load(),
		Successes:    run.successes.Load(),
		Failures:     run.failures.Load(),
		Correctness:  run.correctness,
		ErrorMessage: run.errorMessage,
	}
	if result.TotalOps > 0 {
		result.AvgLatency = time.Duration(run.totalLatency.Load() / result.TotalOps)
		result.OpsPerSecond = float64(result.TotalOps) / result.Duration.Seconds()
	}
	return result
}

func prepare(ctx context.Context, client *memcache.Client, op OperationType, depth int) (batchFunc, error) {
	switch op {
	case CacheHit:
		key, value := "cache-hit-key", "cache-hit-value"
		if _, err := client.Set(key, value, time.Hour, false).Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to set initial value: %w", err)
		}
		return func(int, int) []check {
			checks := make([]check, depth)
			for i := range checks {
				checks[i] = check{result: client.Get(key), verify: expectValue(value)}
			}
			return checks
		}, nil

	case DynamicValue:
		return func(workerID, batch int) []check {
			checks := make([]check, 0, depth)
			for i := range depth / 2 {
				key := fmt.Sprintf("dynamic-key-%d-%d-%d", workerID, batch, i)
				value := fmt.Sprintf("dynamic-value-%d-%d-%d", workerID, batch, i)
				checks = append(checks,
					check{result: client.Set(key, value, time.Hour, false), verify: expectLine("STORED")},
					check{result: client.Get(key), verify: expectValue(value)},
				)
			}
			return checks
		}, nil

	case CacheMiss:
		return func(workerID, batch int) []check {
			checks := make([]check, depth)
			for i := range checks {
				key := fmt.Sprintf("nonexistent-key-%d-%d-%d", workerID, batch, i)
				checks[i] = check{result: client.Get(key), verify: expectValue(nil)}
			}
			return checks
		}, nil

	case Increment:
		if _, err := client.Set("increment-key", 0, time.Hour, false).Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to set initial value: %w", err)
		}
		return func(int, int) []check {
			checks := make([]check, depth)
			for i := range checks {
				checks[i] = check{result: client.Incr("increment-key", 1, false)}
			}
			return checks
		}, nil

	case NoReplySet:
		return func(workerID, batch int) []check {
			checks := make([]check, 0, depth+1)
			for i := range depth {
				key := fmt.Sprintf("noreply-key-%d-%d", workerID, i)
				client.Set(key, batch, time.Hour, true)
			}
			// The get is answered once every set before it was processed.
			key := fmt.Sprintf("noreply-key-%d-%d", workerID, depth-1)
			checks = append(checks, check{result: client.Get(key), verify: expectValue(fmt.Sprint(batch))})
			return checks
		}, nil

	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
}

func expectValue(expected any) func(any, string) string {
	return func(value any, _ string) string {
		if value != expected {
			return fmt.Sprintf("value mismatch: got %v, want %v", value, expected)
		}
		return ""
	}
}

func expectLine(expected string) func(any, string) string {
	return func(_ any, line string) string {
		if line != expected {
			return fmt.Sprintf("reply mismatch: got %q, want %q", line, expected)
		}
		return ""
	}
}

func printResult(result *BenchmarkResult) {
	fmt.Printf("Operation: %s\n", result.Operation)
	fmt.Printf("Duration: %v\n", result.Duration)
	fmt.Printf("Total Operations: %d\n", result.TotalOps)
	fmt.Printf("Successes: %d\n", result.Successes)
	fmt.Printf("Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Printf("Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Printf("Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Printf("Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Printf("Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		log.Printf("Error: %s", result.ErrorMessage)
	}
	fmt.Println()
}
