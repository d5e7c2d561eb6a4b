package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/proxyparty/reactive"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"
)

const (
	widthsKey     = "widths"
	heightsKey    = "heights"
	iterationsKey = "iterations"
	profileKey    = "cpuprofile"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure propagation through reactive records, computed chains and collections",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:  widthsKey,
				Usage: "Number of effects per graph",
				Value: []int64{1, 10, 100, 1_000},
			},
			&cli.IntSliceFlag{
				Name:  heightsKey,
				Usage: "Length of the computed chain in front of each effect",
				Value: []int64{1, 10, 100},
			},
			&cli.IntFlag{
				Name:  iterationsKey,
				Usage: "Writes per graph",
				Value: 100,
			},
			&cli.StringFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to this file",
			},
		},
		Action: benchmark,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func benchmark(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String(profileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	widths, heights := cmd.IntSlice(widthsKey), cmd.IntSlice(heightsKey)
	iters := int(cmd.Int(iterationsKey))

	log.Printf("warming up")
	benchmarkPropagate([]int64{10}, []int64{10}, iters, false)

	benchmarkPropagate(widths, heights, iters, true)
	benchmarkFanOut(widths, iters, true)
	benchmarkCollection(widths, iters, true)
	return nil
}

func newTable(title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetTitle(title)
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "effects", "avg", "min", "p75", "p99", "max"})
	return tbl
}

func appendCalc(tbl table.Writer, name string, effects int, tach *tachymeter.Tachymeter) {
	calc := tach.Calc()
	tbl.AppendRow(table.Row{
		name,
		humanize.Comma(int64(effects)),
		calc.Time.Avg,
		calc.Time.Min,
		calc.Time.P75,
		calc.Time.P99,
		calc.Time.Max,
	})
}

func newSystem() *reactive.ReactiveSystem {
	return reactive.CreateReactiveSystem(
		reactive.WithDevMode(false),
		reactive.WithOnError(func(from *reactive.EffectRunner, err error) {
			log.Panic(err)
		}),
	)
}

// benchmarkPropagate writes one field that w chains of h computed values
// depend on.
func benchmarkPropagate(ww, hh []int64, iters int, shouldRender bool) {
	tbl := newTable("Propagate")

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rs := newSystem()
			state := rs.Reactive(reactive.NewRecord(map[string]any{"src": 1})).(*reactive.Proxy)
			for i := int64(0); i < w; i++ {
				last := reactive.Computed(rs, func() int {
					return state.Get("src").(int) + 1
				})
				for j := int64(1); j < h; j++ {
					prev := last
					last = reactive.Computed(rs, func() int {
						return prev.Value() + 1
					})
				}

				reactive.Effect(rs, func() error {
					last.Value()
					return nil
				})
			}

			for i := 0; i < iters; i++ {
				start := time.Now()
				state.Set("src", state.Get("src").(int)+1)
				tach.AddTime(time.Since(start))
			}

			appendCalc(tbl, fmt.Sprintf("propagate: %d * %d", w, h), rs.ArenaSize(), tach)
		}
	}

	if shouldRender {
		tbl.Render()
	}
}

// benchmarkFanOut gives each effect its own key so a write reaches exactly
// one subscriber.
func benchmarkFanOut(ww []int64, iters int, shouldRender bool) {
	tbl := newTable("Fan out")

	for _, w := range ww {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		rs := newSystem()
		state := rs.Reactive(reactive.NewRecord(nil)).(*reactive.Proxy)
		for i := int64(0); i < w; i++ {
			key := fmt.Sprintf("k%d", i)
			state.Set(key, 0)
			reactive.Effect(rs, func() error {
				state.Get(key)
				return nil
			})
		}

		for i := 0; i < iters; i++ {
			key := fmt.Sprintf("k%d", int64(i)%w)
			start := time.Now()
			state.Set(key, i+1)
			tach.AddTime(time.Since(start))
		}

		appendCalc(tbl, fmt.Sprintf("fan out: %d", w), rs.ArenaSize(), tach)
	}

	if shouldRender {
		tbl.Render()
	}
}

// benchmarkCollection adds and deletes map entries under w iteration
// readers.
func benchmarkCollection(ww []int64, iters int, shouldRender bool) {
	tbl := newTable("Collection")

	for _, w := range ww {
		tach := tachymeter.New(&tachymeter.Config{Size: iters})

		rs := newSystem()
		m := rs.Reactive(reactive.NewMap()).(*reactive.Proxy)
		for i := int64(0); i < w; i++ {
			reactive.Effect(rs, func() error {
				m.Size()
				return nil
			})
		}

		for i := 0; i < iters; i++ {
			start := time.Now()
			if i%2 == 0 {
				m.Set(i, i)
			} else {
				m.Delete(i - 1)
			}
			tach.AddTime(time.Since(start))
		}

		appendCalc(tbl, fmt.Sprintf("add/delete: %d", w), rs.ArenaSize(), tach)
	}

	if shouldRender {
		tbl.Render()
	}
}
