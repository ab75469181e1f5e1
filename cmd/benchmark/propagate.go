package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/reactorgo/reactor/reactor"
)

var (
	ww = []int{1, 10, 100, 1_000}
	hh = []int{1, 10, 100, 1_000}
)

// runPropagate builds w parallel chains of h computeds off one source, each
// chain terminated by an effect, and times how long a single source write
// takes to flush through all of them.
func runPropagate(iters int) error {
	tbl := table.NewWriter()
	tbl.SetTitle("Reactor Signals")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rt := reactor.NewRuntime(reactor.WithUnhandled(func(err error) {
				log.Panic(err)
			}))
			src := reactor.Signal(rt, 1)
			for i := 0; i < w; i++ {
				last := reactor.Computed(rt, func(int) (int, error) {
					return src.Value() + 1, nil
				})
				for j := 1; j < h; j++ {
					prev := last
					last = reactor.Computed(rt, func(int) (int, error) {
						return prev.Value() + 1, nil
					})
				}

				tail := last
				reactor.Effect(rt, func() error {
					tail.Value()
					return nil
				})
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := src.SetValue(src.Value() + 1); err != nil {
					return err
				}
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
	return nil
}
