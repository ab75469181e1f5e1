package main

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/reactorgo/reactor/reactor"
)

type shapeConfig struct {
	name           string  // friendly name for the test, should be unique
	width          int     // width of dependency graph to construct
	totalLayers    int     // depth of dependency graph to construct
	staticFraction float64 // fraction of nodes with a fixed source set
	nSources       int     // number of sources feeding each node
	readFraction   float64 // fraction of leaves read back per iteration
	iterations     int
}

var shapeConfigs = []shapeConfig{
	{
		name:           "simple component",
		width:          10,
		staticFraction: 1,
		nSources:       2,
		totalLayers:    5,
		readFraction:   0.2,
		iterations:     600000,
	},
	{
		name:           "dynamic component",
		width:          10,
		totalLayers:    10,
		staticFraction: 0.75,
		nSources:       6,
		readFraction:   0.2,
		iterations:     15000,
	},
	{
		name:           "large web app",
		width:          1000,
		totalLayers:    12,
		staticFraction: 0.95,
		nSources:       4,
		readFraction:   1,
		iterations:     7000,
	},
	{
		name:           "wide dense",
		width:          1000,
		totalLayers:    5,
		staticFraction: 1,
		nSources:       25,
		readFraction:   1,
		iterations:     3000,
	},
	{
		name:           "deep",
		width:          5,
		totalLayers:    500,
		staticFraction: 1,
		nSources:       3,
		readFraction:   1,
		iterations:     500,
	},
	{
		name:           "very dynamic",
		width:          100,
		totalLayers:    15,
		staticFraction: 0.5,
		nSources:       6,
		readFraction:   1,
		iterations:     2000,
	},
}

type shapeGraph struct {
	rt      *reactor.Runtime
	sources []*reactor.WriteableSignal[int]
	layers  [][]*reactor.ReadonlySignal[int]
}

func runShapes(repeats int) error {
	log.Print("Starting graph-shape benchmark, please wait...")
	defer log.Print("Finished graph-shape benchmark")

	type results struct {
		sum      int
		count    int64
		duration time.Duration
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{
		"size", "nSources", "read%", "static%",
		"nTimes", "test", "time",
		"updateRate", "title",
	})

	for _, cfg := range shapeConfigs {
		log.Printf("Running '%s' config", cfg.name)
		counter := new(int64)
		graph := makeShapeGraph(&cfg, counter)

		runOnce := func() int {
			return runShapeGraph(graph, cfg.iterations, cfg.readFraction)
		}
		// run once to warm up
		runOnce()

		bestResult := &results{
			duration: time.Hour,
		}

		for i := 0; i < repeats; i++ {
			log.Printf("Running '%s' config, iteration %d/%d %d%%", cfg.name, i+1, repeats, (i+1)*100/repeats)
			*counter = 0
			start := time.Now()
			sum := runOnce()
			duration := time.Since(start)

			if duration < bestResult.duration {
				bestResult.duration = duration
				bestResult.sum = sum
				bestResult.count = *counter
			}
		}

		makeTitle := func() string {
			sb := strings.Builder{}
			sb.WriteString(fmt.Sprintf("%dx%d %d sources", cfg.width, cfg.totalLayers, cfg.nSources))
			if cfg.staticFraction < 1 {
				sb.WriteString(" dynamic")
			}
			if cfg.readFraction < 1 {
				sb.WriteString(fmt.Sprintf(" read %0.2f%%", 100*cfg.readFraction))
			}
			return sb.String()
		}

		updateRate := float64(bestResult.count) / (float64(bestResult.duration) / float64(time.Millisecond))

		tbl.Append([]string{
			fmt.Sprintf("%dx%d", cfg.width, cfg.totalLayers),
			fmt.Sprint(cfg.nSources),
			fmt.Sprint(cfg.readFraction),
			fmt.Sprint(cfg.staticFraction),
			humanize.Comma(int64(cfg.iterations)),
			cfg.name,
			fmt.Sprint(bestResult.duration),
			humanize.Comma(int64(updateRate)),
			makeTitle(),
		})
	}
	tbl.Render()
	return nil
}

func makeShapeGraph(cfg *shapeConfig, counter *int64) *shapeGraph {
	rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
		log.Panic(err)
	}))
	sources := make([]*reactor.WriteableSignal[int], cfg.width)
	for i := range sources {
		sources[i] = reactor.Signal(rt, i)
	}

	random := rand.New(rand.NewSource(0))
	prevRow := make([]*reactor.ReadonlySignal[int], len(sources))
	for i, s := range sources {
		s := s
		prevRow[i] = reactor.Computed(rt, func(int) (int, error) {
			return s.Value(), nil
		})
	}

	layers := make([][]*reactor.ReadonlySignal[int], cfg.totalLayers-1)
	for l := range layers {
		layers[l] = makeShapeRow(rt, prevRow, cfg, counter, random)
		prevRow = layers[l]
	}

	return &shapeGraph{rt: rt, sources: sources, layers: layers}
}

func makeShapeRow(rt *reactor.Runtime, sources []*reactor.ReadonlySignal[int], cfg *shapeConfig, counter *int64, random *rand.Rand) []*reactor.ReadonlySignal[int] {
	row := make([]*reactor.ReadonlySignal[int], len(sources))
	for myDex := range sources {
		mySources := make([]*reactor.ReadonlySignal[int], 0, cfg.nSources)
		for sourceDex := 0; sourceDex < cfg.nSources; sourceDex++ {
			mySources = append(mySources, sources[(myDex+sourceDex)%len(sources)])
		}

		staticNode := random.Float64() < cfg.staticFraction
		if staticNode {
			// static node, always reference sources
			row[myDex] = reactor.Computed(rt, func(int) (int, error) {
				*counter++
				sum := 0
				for _, source := range mySources {
					sum += source.Value()
				}
				return sum, nil
			})
		} else {
			// dynamic node, drops one source depending on the first
			first := mySources[0]
			tail := mySources[1:]
			row[myDex] = reactor.Computed(rt, func(int) (int, error) {
				*counter++
				sum := first.Value()
				shouldDrop := sum&0x1 > 0
				dropDex := sum % len(tail)

				for i := 0; i < len(tail); i++ {
					if shouldDrop && i == dropDex {
						continue
					}
					sum += tail[i].Value()
				}
				return sum, nil
			})
		}
	}
	return row
}

// runShapeGraph writes one of the sources and reads some or all of the
// leaves per iteration, returning the sum of the leaf values.
func runShapeGraph(graph *shapeGraph, iterations int, readFraction float64) int {
	random := rand.New(rand.NewSource(0))
	leaves := graph.layers[len(graph.layers)-1]
	skipCount := int(math.Round(float64(len(leaves)) * (1 - readFraction)))
	readLeaves := removeElems(leaves, skipCount, random)

	for i := 0; i < iterations; i++ {
		sourceDex := i % len(graph.sources)
		if err := graph.sources[sourceDex].SetValue(i + sourceDex); err != nil {
			log.Panic(err)
		}

		for _, leaf := range readLeaves {
			leaf.Value()
		}
	}

	sum := 0
	for _, leaf := range readLeaves {
		sum += leaf.Value()
	}
	return sum
}

func removeElems[T comparable](src []T, rmCount int, random *rand.Rand) []T {
	copyWithRemovals := make([]T, len(src))
	copy(copyWithRemovals, src)
	for i := 0; i < rmCount; i++ {
		rmDex := random.Intn(len(copyWithRemovals))
		copyWithRemovals[rmDex] = copyWithRemovals[len(copyWithRemovals)-1]
		copyWithRemovals = copyWithRemovals[:len(copyWithRemovals)-1]
	}
	return copyWithRemovals
}
