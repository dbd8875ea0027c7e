package main

import (
	"flag"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lucaspons9/TelBot/network"
	"github.com/lucaspons9/TelBot/router"
	"github.com/sirupsen/logrus"
)

var (
	benchmarkCount = flag.Int("benchmark.count", 1000, "the random routing count for benchmark")
	benchmarkSeed  = flag.Int64("benchmark.seed", 0, "the seed for benchmark")
	benchmarkCPU   = flag.Int("benchmark.cpu", 1, "the cpu count for benchmark")
)

// randomQueries draws count coordinate pairs uniformly inside the bound of
// the graph.
func randomQueries(r *router.Router, count int, seed int64) [][2]network.Coord {
	e := rand.New(rand.NewSource(seed))
	sw, ne := r.Graph().Bound()
	random := func() network.Coord {
		return network.Coord{
			Lon: sw.Lon + e.Float64()*(ne.Lon-sw.Lon),
			Lat: sw.Lat + e.Float64()*(ne.Lat-sw.Lat),
		}
	}
	queries := make([][2]network.Coord, count)
	for i := range queries {
		queries[i] = [2]network.Coord{random(), random()}
	}
	return queries
}

// runQueries routes every query on cpu goroutines and returns the number of
// queries answered with a path.
func runQueries(r *router.Router, queries [][2]network.Coord, cpu int) int32 {
	var success atomic.Int32
	do := func(q [2]network.Coord) {
		if _, err := r.Route(q[0], q[1]); err != nil {
			log.Debugf("benchmark %v -> %v failed: %v", q[0], q[1], err)
			return
		}
		success.Add(1)
	}
	if cpu <= 1 {
		for _, q := range queries {
			do(q)
		}
		return success.Load()
	}
	// 设置cpu数量
	runtime.GOMAXPROCS(cpu)
	ch := make(chan [2]network.Coord)
	var wg sync.WaitGroup
	wg.Add(cpu)
	for i := 0; i < cpu; i++ {
		go func() {
			defer wg.Done()
			for q := range ch {
				do(q)
			}
		}()
	}
	for _, q := range queries {
		ch <- q
	}
	close(ch)
	wg.Wait()
	return success.Load()
}

func runBenchmark(r *router.Router) {
	log.Logger.SetLevel(logrus.WarnLevel)
	queries := randomQueries(r, *benchmarkCount, *benchmarkSeed)

	start := time.Now()
	success := runQueries(r, queries, *benchmarkCPU)
	timeCost := time.Since(start)
	log.Warn(
		"benchmark finished", "\n",
		"count: ", *benchmarkCount, "\n",
		"cpu: ", *benchmarkCPU, "\n",
		"time: ", timeCost, "\n",
		"avg: ", timeCost/time.Duration(max(*benchmarkCount, 1)), "\n",
		"success: ", success, "\n",
	)
}
