package main

import (
	"context"
	"log"
	"os"
	"runtime/pprof"

	"github.com/urfave/cli/v3"
)

const (
	profileKey = "profile"
	itersKey   = "iters"
	repeatsKey = "repeats"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Benchmark the reactor engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to the given file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "propagate",
				Usage: "Measure write propagation latency over w*h chain grids",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  itersKey,
						Usage: "Writes per grid configuration",
						Value: 100,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					stop, err := maybeProfile(cmd)
					if err != nil {
						return err
					}
					defer stop()
					return runPropagate(int(cmd.Uint(itersKey)))
				},
			},
			{
				Name:  "shapes",
				Usage: "Run the graph-shape suite (wide, deep, dynamic)",
				Flags: []cli.Flag{
					&cli.UintFlag{
						Name:  repeatsKey,
						Usage: "Repeats per shape, best run wins",
						Value: 5,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					stop, err := maybeProfile(cmd)
					if err != nil {
						return err
					}
					defer stop()
					return runShapes(int(cmd.Uint(repeatsKey)))
				},
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func maybeProfile(cmd *cli.Command) (func(), error) {
	path := cmd.String(profileKey)
	if path == "" {
		return func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}
