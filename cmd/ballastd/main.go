package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/cuemby/ballast/pkg/hashring"
	"github.com/cuemby/ballast/pkg/loadbalancer"
	"github.com/cuemby/ballast/pkg/log"
	"github.com/cuemby/ballast/pkg/metrics"
	"github.com/cuemby/ballast/pkg/transport"
	"github.com/cuemby/ballast/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ballastd",
	Short: "ballast - a reliability-and-routing toolkit for request-serving infrastructure",
	Long: `ballastd is a reference harness for the ballast library: a load balancer
with pluggable selection strategies, a circuit breaker, rate limiters, a
consistent-hashing ring, a task queue and worker pool, request hedging, and
retry/timeout policies.

The demo subcommands exercise the library components end to end against an
in-memory transport; serve-metrics exposes the Prometheus registry any of
those components report to.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ballastd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	demoCmd.AddCommand(demoLoadBalancerCmd)
	demoCmd.AddCommand(demoRingCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a component demonstration against an in-memory backend",
}

var demoLoadBalancerCmd = &cobra.Command{
	Use:   "loadbalancer",
	Short: "Dispatch sample requests through a LoadBalancer and print observability metrics",
	RunE:  runDemoLoadBalancer,
}

var demoRingCmd = &cobra.Command{
	Use:   "ring",
	Short: "Build a consistent-hashing ring and report server capacity shares",
	RunE:  runDemoRing,
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve the Prometheus metrics registry and health endpoints",
	RunE:  runServeMetrics,
}

func init() {
	serveMetricsCmd.Flags().String("addr", ":9090", "Listen address for /metrics, /health, /ready, /live")
	demoLoadBalancerCmd.Flags().String("strategy", string(loadbalancer.StrategyRoundRobin), "Selection strategy: least_connections, round_robin, weighted_round_robin, least_time")
	demoLoadBalancerCmd.Flags().Int("requests", 12, "Number of sample requests to dispatch")
}

func runDemoLoadBalancer(cmd *cobra.Command, args []string) error {
	strategy, _ := cmd.Flags().GetString("strategy")
	requests, _ := cmd.Flags().GetInt("requests")

	stub := transport.NewStub()
	backendLatency := map[string]time.Duration{
		"backend-a": 10 * time.Millisecond,
		"backend-b": 25 * time.Millisecond,
		"backend-c": 5 * time.Millisecond,
	}
	for id, latency := range backendLatency {
		latency := latency
		stub.HandleDelayed("http://"+id, latency, types.Response{Status: 200}, nil)
	}

	lb, err := loadbalancer.New(loadbalancer.Options{
		Name:             "demo",
		Strategy:         loadbalancer.StrategyName(strategy),
		Timeout:          2 * time.Second,
		HealthyThreshold: 0.5,
		Transport:        stub,
		Backends: []loadbalancer.BackendSpec{
			{ID: "backend-a", Endpoint: "http://backend-a", Weight: 4, MaxConcurrent: 10},
			{ID: "backend-b", Endpoint: "http://backend-b", Weight: 2, MaxConcurrent: 10},
			{ID: "backend-c", Endpoint: "http://backend-c", Weight: 1, MaxConcurrent: 10},
		},
	})
	if err != nil {
		return fmt.Errorf("building load balancer: %w", err)
	}

	for i := 0; i < requests; i++ {
		_, err := lb.Handle(context.Background(), types.Request{Method: "GET", Path: "/"})
		if err != nil {
			fmt.Printf("request %d: %v\n", i, err)
		}
	}

	fmt.Println("traffic:")
	for id, stat := range lb.TrafficMetrics() {
		fmt.Printf("  %-10s total=%-4d success=%-4d rate=%.2f\n", id, stat.Total, stat.Success, stat.SuccessRate)
	}
	fmt.Println("performance:")
	for id, stat := range lb.PerformanceMetrics() {
		fmt.Printf("  %-10s avg=%-12s last=%-12s active=%d\n", id, stat.AverageLatency, stat.LastLatency, stat.Active)
	}
	return nil
}

func runDemoRing(cmd *cobra.Command, args []string) error {
	servers := []string{"node-1", "node-2", "node-3", "node-4", "node-5"}
	ring, err := hashring.New("demo", servers, 100, rand.New(rand.NewSource(1)))
	if err != nil {
		return fmt.Errorf("building ring: %w", err)
	}

	counts := make(map[string]int)
	const sampleKeys = 10000
	for i := 0; i < sampleKeys; i++ {
		key := fmt.Sprintf("key-%d", i)
		id, err := ring.GetServer(key)
		if err != nil {
			return fmt.Errorf("looking up key: %w", err)
		}
		counts[id]++
	}

	fmt.Println("key distribution (before):")
	for _, s := range servers {
		fmt.Printf("  %-10s %d\n", s, counts[s])
	}

	const newServer = "node-6"
	if err := ring.InsertServer(newServer, 100); err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}
	fmt.Printf("added %s\n", newServer)

	fmt.Println("capacity share (after):")
	for _, id := range ring.Servers() {
		capacity, err := ring.GetServerCapacity(id)
		if err != nil {
			return fmt.Errorf("reading capacity for %s: %w", id, err)
		}
		fmt.Printf("  %-10s %.4f%%\n", id, float64(capacity)/float64(uint64(1)<<32)*100)
	}
	return nil
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	log.Info(fmt.Sprintf("serving metrics on %s", addr))
	return http.ListenAndServe(addr, mux)
}
