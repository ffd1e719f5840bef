// Command benchmark measures LTQ publish and end-to-end throughput
// against an in-memory broker, grounded on the teacher's
// benchmark/main.go structure (BenchmarkResult, goroutine-per-worker
// enqueue loop, atomic counters).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tclesius/ltq"
)

type benchmarkResult struct {
	Name     string
	Tasks    int
	Duration time.Duration
	RatePerS float64
	Success  int64
	Failed   int64
}

func (r benchmarkResult) String() string {
	return fmt.Sprintf("%-18s tasks=%-8d duration=%-12s rate=%.0f/s success=%d failed=%d",
		r.Name, r.Tasks, r.Duration, r.RatePerS, r.Success, r.Failed)
}

func benchmarkPublish(numTasks, concurrency int) benchmarkResult {
	broker := ltq.NewMemoryBroker()
	defer broker.Close()

	worker := ltq.NewWorker("bench", broker, ltq.WorkerConfig{})
	task, err := worker.Register("task", func(context.Context, *ltq.Message) error { return nil }, ltq.TaskOptions{})
	if err != nil {
		log.Fatalf("register: %v", err)
	}

	var wg sync.WaitGroup
	var success, failed int64
	perWorker := numTasks / concurrency

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := task.Send(context.Background(), nil, map[string]any{"i": i}); err != nil {
					atomic.AddInt64(&failed, 1)
				} else {
					atomic.AddInt64(&success, 1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	return benchmarkResult{
		Name:     "publish",
		Tasks:    numTasks,
		Duration: elapsed,
		RatePerS: float64(success) / elapsed.Seconds(),
		Success:  success,
		Failed:   failed,
	}
}

func benchmarkRoundTrip(numTasks, concurrency int) benchmarkResult {
	broker := ltq.NewMemoryBroker()
	defer broker.Close()

	var processed int64
	done := make(chan struct{})

	worker := ltq.NewWorker("bench", broker, ltq.WorkerConfig{Concurrency: concurrency})
	task, err := worker.Register("task", func(context.Context, *ltq.Message) error {
		if atomic.AddInt64(&processed, 1) == int64(numTasks) {
			close(done)
		}
		return nil
	}, ltq.TaskOptions{})
	if err != nil {
		log.Fatalf("register: %v", err)
	}

	start := time.Now()
	for i := 0; i < numTasks; i++ {
		if err := task.Send(context.Background(), nil, map[string]any{"i": i}); err != nil {
			log.Fatalf("send: %v", err)
		}
	}
	if err := worker.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("round-trip benchmark timed out waiting for completion")
	}
	elapsed := time.Since(start)
	worker.Stop()

	return benchmarkResult{
		Name:     "round-trip",
		Tasks:    numTasks,
		Duration: elapsed,
		RatePerS: float64(processed) / elapsed.Seconds(),
		Success:  processed,
	}
}

func main() {
	numTasks := flag.Int("tasks", 10000, "number of tasks to run through the benchmark")
	concurrency := flag.Int("concurrency", 50, "number of concurrent goroutines / worker permits")
	flag.Parse()

	results := []benchmarkResult{
		benchmarkPublish(*numTasks, *concurrency),
		benchmarkRoundTrip(*numTasks, *concurrency),
	}
	fmt.Println()
	fmt.Println("=== RESULTS ===")
	for _, r := range results {
		fmt.Println(r)
	}
}
