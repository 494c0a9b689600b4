package benchmarks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comalice/btreex"
	"github.com/comalice/btreex/realtime"
)

// Realtime runtime benchmarks
//
// These measure the fixed-rate driver rather than the tick engine:
// - Throughput: posts actually run per second (verified with a counter)
// - Latency: time from Post until the closure runs on the tick goroutine
// - Concurrent posting: many producers feeding one runtime

func startRuntime(b *testing.B, rate time.Duration, maxPosts int) *realtime.Runtime {
	b.Helper()
	tree := MustTree(GenWideTree(10))
	rt := realtime.NewRuntime(tree, realtime.Config{
		TickRate:        rate,
		MaxPostsPerTick: maxPosts,
	})
	if err := rt.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = rt.Stop() })
	return rt
}

func waitFor(b *testing.B, counter *int64, want int64) {
	b.Helper()
	timeout := time.After(30 * time.Second)
	for atomic.LoadInt64(counter) < want {
		select {
		case <-timeout:
			b.Fatalf("timeout waiting for posts, processed: %d / %d", atomic.LoadInt64(counter), want)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// BenchmarkRealtimeThroughput measures posts processed per second.
func BenchmarkRealtimeThroughput(b *testing.B) {
	var processed int64
	rt := startRuntime(b, time.Millisecond, 10000)
	post := func(*btreex.Tree) { atomic.AddInt64(&processed, 1) }

	b.ResetTimer()
	b.ReportAllocs()
	sent := 0
	for i := 0; i < b.N; i++ {
		if err := rt.Post(post); err != nil {
			// let the tick goroutine drain and retry once
			time.Sleep(time.Millisecond)
			if err := rt.Post(post); err != nil {
				b.Logf("stopped at backpressure after %d posts (%.1f%% of b.N)",
					sent, float64(sent)/float64(b.N)*100)
				break
			}
		}
		sent++
	}
	waitFor(b, &processed, int64(sent))
	b.ReportMetric(float64(sent)/b.Elapsed().Seconds(), "posts/sec")
}

// BenchmarkRealtimeLatency measures the time from Post to execution,
// including tick scheduling.
func BenchmarkRealtimeLatency(b *testing.B) {
	rt := startRuntime(b, time.Millisecond, 1000)
	ran := make(chan time.Duration, 1)

	b.ResetTimer()
	var total time.Duration
	n := min(b.N, 50)
	for i := 0; i < n; i++ {
		sentAt := time.Now()
		if err := rt.Post(func(*btreex.Tree) { ran <- time.Since(sentAt) }); err != nil {
			b.Fatal(err)
		}
		select {
		case d := <-ran:
			total += d
		case <-time.After(5 * time.Second):
			b.Fatalf("timeout after %d measurements", i)
		}
	}
	avg := total / time.Duration(n)
	b.ReportMetric(float64(avg.Microseconds()), "µs/latency")
}

// BenchmarkRealtimeConcurrentPosts feeds one runtime from several goroutines.
func BenchmarkRealtimeConcurrentPosts(b *testing.B) {
	var processed, sent int64
	rt := startRuntime(b, time.Millisecond, 100000)
	post := func(*btreex.Tree) { atomic.AddInt64(&processed, 1) }

	workers := 8
	perWorker := max(b.N/workers, 1)
	var wg sync.WaitGroup
	b.ResetTimer()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := rt.Post(post); err != nil {
					return
				}
				atomic.AddInt64(&sent, 1)
			}
		}()
	}
	wg.Wait()
	waitFor(b, &processed, atomic.LoadInt64(&sent))
	b.ReportMetric(float64(atomic.LoadInt64(&sent))/b.Elapsed().Seconds(), "posts/sec")
}

// BenchmarkRealtimeTick measures one runtime step (posts plus tree tick) at
// a rate fast enough to keep the loop saturated.
func BenchmarkRealtimeTick(b *testing.B) {
	rt := startRuntime(b, time.Microsecond, 1000)
	start := rt.TickNumber()
	b.ResetTimer()
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ticks := rt.TickNumber() - start
	b.ReportMetric(float64(ticks)/b.Elapsed().Seconds(), "ticks/sec")
}
