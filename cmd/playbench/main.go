// playbench exercises the playback pipeline against a synthetic image
// stack and reports delivery and cache statistics. Useful for tuning
// block size and buffer capacity on real hardware.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/phagelab/go-playback/cache"
	"github.com/phagelab/go-playback/frame"
	"github.com/phagelab/go-playback/logger"
	"github.com/phagelab/go-playback/playback"
	"github.com/phagelab/go-playback/prefetch"
	"github.com/phagelab/go-playback/ringbuf"
)

func main() {
	var (
		frames      int
		width       int
		height      int
		fps         int
		capacity    int
		blockSize   int
		inflight    int
		loop        bool
		duration    time.Duration
		readLatency time.Duration
		budgetMB    int64
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "playbench",
		Short: "benchmark the playback prefetch pipeline against a synthetic stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewConsoleLogger(logger.ParseLevel(logLevel))
			source := syntheticSource(frames, width, height, readLatency)

			ring := ringbuf.New(capacity)
			pf := prefetch.New(source, ring,
				prefetch.WithTuning(blockSize, inflight),
				prefetch.WithLogger(log.WithPrefix("prefetch")),
			)

			projections := cache.New(
				cache.WithBudget(budgetMB*1024*1024),
				cache.WithLogger(log.WithPrefix("cache")),
				cache.WithWarningFunc(func(msg string) {
					fmt.Fprintf(os.Stderr, "warning: %s\n", msg)
				}),
			)

			player := playback.New(ring, pf,
				playback.Config{FPS: fps, UpperBound: frames - 1, Loop: loop},
				playback.WithLogger(log.WithPrefix("playback")),
				playback.WithFrameFunc(func(f frame.Frame) {
					// Cache a mean projection per frame the way an
					// interactive viewer would.
					key := cache.PrimaryKey{ImageID: 1, Kind: "mean", TimeIndex: f.Index}
					if _, ok := projections.Get(key); !ok {
						projections.Put(key, f)
					}
				}),
			)

			log.Info("playing %d frames of %dx%d at %d fps", frames, width, height, fps)
			start := time.Now()
			player.Start(-1)

			select {
			case <-player.Done():
			case <-time.After(duration):
				player.Stop()
			}
			elapsed := time.Since(start)

			if err := pf.Err(); err != nil {
				return err
			}

			st := player.Stats()
			cs := projections.Stats()
			tel := projections.Telemetry()
			fmt.Printf("delivered %d frames in %s (%.1f fps effective), %d underruns\n",
				st.Delivered, elapsed.Round(time.Millisecond),
				float64(st.Delivered)/elapsed.Seconds(), st.Underruns)
			fmt.Printf("cache: %d entries, %d bytes, %.0f%% hit ratio, %d evictions\n",
				cs.Entries, cs.BytesUsed, tel.HitRatio()*100, tel.Evictions+tel.PyramidEvictions)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&frames, "frames", 500, "number of frames in the synthetic stack")
	flags.IntVar(&width, "width", 512, "frame width in pixels")
	flags.IntVar(&height, "height", 512, "frame height in pixels")
	flags.IntVar(&fps, "fps", 60, "target playback frame rate")
	flags.IntVar(&capacity, "capacity", 5, "ring buffer capacity in frames")
	flags.IntVar(&blockSize, "block-size", 64, "frames per prefetch read")
	flags.IntVar(&inflight, "inflight", 2, "max in-flight prefetch blocks")
	flags.BoolVar(&loop, "loop", false, "loop playback at the end of the stack")
	flags.DurationVar(&duration, "duration", 30*time.Second, "maximum run time")
	flags.DurationVar(&readLatency, "read-latency", time.Millisecond, "simulated latency per block read")
	flags.Int64Var(&budgetMB, "cache-budget-mb", 256, "projection cache budget in MB")
	flags.StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn, error")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// syntheticSource produces deterministic gradient frames with a fixed
// per-read latency, standing in for a memmap-backed stack.
func syntheticSource(frames, width, height int, latency time.Duration) frame.BlockReader {
	return func(start, stop, selection int) ([]frame.Frame, error) {
		if latency > 0 {
			time.Sleep(latency)
		}
		if stop > frames {
			stop = frames
		}
		var out []frame.Frame
		for i := start; i < stop; i++ {
			pix := make([]float32, width*height)
			base := float32(i % 256)
			for j := range pix {
				pix[j] = base + float32(j%97)
			}
			out = append(out, frame.Frame{Index: i, Width: width, Height: height, Pix: pix})
		}
		return out, nil
	}
}
