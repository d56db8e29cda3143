package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EE/goals/internal/dispatch"
)

// ThreadSpec is one `--threads` tier: Count logical workers, each
// claiming only goals whose deadline falls within Horizon (nil means
// unbounded).
type ThreadSpec struct {
	Count   int
	Horizon *time.Duration
}

// ParseThreadSpec parses one `--threads` value: "N" or "N:Δ", where Δ
// is `<int>(s|m|h|d)` or the literal "none".
func ParseThreadSpec(s string) (ThreadSpec, error) {
	n, horizonStr, hasHorizon := strings.Cut(s, ":")
	count, err := strconv.Atoi(n)
	if err != nil || count <= 0 {
		return ThreadSpec{}, fmt.Errorf("worker: invalid thread count %q", n)
	}
	if !hasHorizon {
		return ThreadSpec{Count: count}, nil
	}

	horizon, err := parseHorizon(horizonStr)
	if err != nil {
		return ThreadSpec{}, fmt.Errorf("worker: thread spec %q: %w", s, err)
	}
	return ThreadSpec{Count: count, Horizon: horizon}, nil
}

// ParseThreadSpecs parses every `--threads` flag occurrence.
func ParseThreadSpecs(args []string) ([]ThreadSpec, error) {
	specs := make([]ThreadSpec, 0, len(args))
	for _, a := range args {
		spec, err := ParseThreadSpec(a)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseHorizon(s string) (*time.Duration, error) {
	if s == "none" {
		return nil, nil
	}
	if len(s) < 2 {
		return nil, fmt.Errorf("invalid horizon %q", s)
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return nil, fmt.Errorf("invalid horizon %q", s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return nil, fmt.Errorf("invalid horizon unit in %q", s)
	}
	d := time.Duration(value) * unit
	return &d, nil
}

// RunThreaded spawns N logical workers per ThreadSpec, each a busy
// loop restricted to its tier's horizon. The Killer-Task Guard scan and retention sweeper each run
// exactly once for the whole process, not once per thread. RunThreaded
// blocks until ctx is canceled or any thread returns a non-context
// error, at which point it cancels the rest and returns that error.
func RunThreaded(ctx context.Context, d Deps, workerIDPrefix string, specs []ThreadSpec) error {
	if err := runKillerScan(ctx, d); err != nil {
		return err
	}
	maybeStartSweeper(ctx, d)

	g, gctx := errgroup.WithContext(ctx)
	threadIndex := 0
	for _, spec := range specs {
		for i := 0; i < spec.Count; i++ {
			idx := threadIndex
			threadIndex++
			horizon := spec.Horizon
			workerID := fmt.Sprintf("%s-%d", workerIDPrefix, idx)
			g.Go(func() error {
				disp, tracking, err := newDispatcher(gctx, d, workerID)
				if err != nil {
					return err
				}
				defer func() { _ = tracking.Close(context.Background()) }()

				for {
					select {
					case <-gctx.Done():
						return nil
					default:
					}
					outcome, err := disp.Once(gctx, horizon)
					if err != nil {
						if !logOnceErr(d.log(), workerID, err) {
							sleep(gctx, d.pollInterval())
						}
						continue
					}
					if outcome == dispatch.OutcomeIdle {
						sleep(gctx, d.pollInterval())
					}
				}
			})
		}
	}
	return g.Wait()
}
