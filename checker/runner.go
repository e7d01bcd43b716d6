package checker

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cnosuke/imgcheck/report"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrInvalidConfig is returned when a checker or runner is built with unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Strategy selects how requests are scheduled.
type Strategy string

const (
	StrategyAuto     Strategy = "auto"
	StrategyStreamed Strategy = "streamed"
	StrategyChunked  Strategy = "chunked"
)

type RunnerConfig struct {
	Concurrency    int
	Strategy       Strategy
	ChunkSize      int
	ChunkThreshold int
	ChunkDelayMin  time.Duration
	ChunkDelayMax  time.Duration
	ProgressEvery  int
	// RequestsPerSecond paces request starts across the whole run; 0 disables pacing.
	RequestsPerSecond float64
	// Budget stops dispatching once elapsed; 0 means no limit.
	Budget time.Duration
}

// Hooks connect a run to its caller. All callbacks run on the goroutine that called Run.
type Hooks struct {
	OnProgress func(completed, total, interesting int)
	OnAlert    func(r types.CheckResult)
	// OnResult receives every new result with its deduplicated index.
	OnResult func(index int, r types.CheckResult)
	// Interesting selects results for OnAlert and the interesting count. Defaults to non-ok.
	Interesting func(r types.CheckResult) bool
	// Completed holds results resolved by an earlier run, keyed by deduplicated index.
	Completed map[int]types.CheckResult
}

// Runner schedules checks under a fixed concurrency ceiling.
type Runner struct {
	cfg      RunnerConfig
	checker  Checker
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerObserver reports token usage to o.
func WithRunnerObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithPause replaces the inter-chunk wait.
func WithPause(sleep func(ctx context.Context, d time.Duration) error) RunnerOption {
	return func(r *Runner) { r.sleep = sleep }
}

// WithClock replaces the clock used for the budget.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a new Runner.
func NewRunner(cfg RunnerConfig, c Checker, opts ...RunnerOption) (*Runner, error) {
	if c == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "checker is required")
	}
	if cfg.Concurrency < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.ChunkDelayMax < cfg.ChunkDelayMin {
		return nil, errors.Wrapf(ErrInvalidConfig, "chunk delay range [%s, %s] is inverted", cfg.ChunkDelayMin, cfg.ChunkDelayMax)
	}
	switch cfg.Strategy {
	case "":
		cfg.Strategy = StrategyAuto
	case StrategyAuto, StrategyStreamed, StrategyChunked:
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown strategy %q", cfg.Strategy)
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = 50
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 1
	}

	r := &Runner{
		cfg:      cfg,
		checker:  c,
		observer: nopObserver{},
		sleep:    sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// completion carries one finished check from its goroutine to the collector.
type completion struct {
	index  int
	result types.CheckResult
	// aborted marks checks cut short by cancellation; they are not recorded.
	aborted bool
}

// Run checks every unique URL in reqs and returns the aggregated report.
// It returns the partial report with ctx.Err() when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, reqs []types.CheckRequest, hooks Hooks) (*types.Report, error) {
	unique, duplicates := report.Dedupe(reqs)
	collector := report.NewCollector(unique)

	interesting := hooks.Interesting
	if interesting == nil {
		interesting = func(res types.CheckResult) bool { return !res.OK() }
	}

	interestingCount := 0
	for idx, res := range hooks.Completed {
		// Stored results only apply while the input still has the same URL at that index.
		if idx < 0 || idx >= len(unique) || unique[idx].Key() != strings.TrimSpace(res.URL) {
			continue
		}
		if collector.Add(idx, res) && interesting(res) {
			interestingCount++
		}
	}

	pending := make([]int, 0, len(unique)-collector.Completed())
	for i := range unique {
		if !collector.Has(i) {
			pending = append(pending, i)
		}
	}

	strategy := r.cfg.Strategy
	if strategy == StrategyAuto {
		strategy = StrategyStreamed
		if len(pending) > r.cfg.ChunkThreshold {
			strategy = StrategyChunked
		}
	}

	zap.S().Infow("starting run",
		"unique", len(unique),
		"duplicates", duplicates,
		"resumed", collector.Completed(),
		"pending", len(pending),
		"strategy", strategy,
		"concurrency", r.cfg.Concurrency)

	out := make(chan completion, r.cfg.Concurrency)
	d := &dispatch{
		runner:  r,
		unique:  unique,
		out:     out,
		tokens:  newTokenPool(r.cfg.Concurrency, r.observer),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		started: r.now(),
	}
	if r.cfg.RequestsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), 1)
	}

	go func() {
		defer close(out)
		if strategy == StrategyChunked {
			d.chunked(ctx, pending)
		} else {
			d.group(ctx, pending)
		}
	}()

	total := len(unique)
	sinceProgress := 0
	for c := range out {
		if c.aborted {
			continue
		}
		if !collector.Add(c.index, c.result) {
			continue
		}
		if hooks.OnResult != nil {
			hooks.OnResult(c.index, c.result)
		}
		if interesting(c.result) {
			interestingCount++
			if hooks.OnAlert != nil {
				hooks.OnAlert(c.result)
			}
		}
		sinceProgress++
		if hooks.OnProgress != nil && sinceProgress >= r.cfg.ProgressEvery {
			sinceProgress = 0
			hooks.OnProgress(collector.Completed(), total, interestingCount)
		}
	}
	if hooks.OnProgress != nil {
		hooks.OnProgress(collector.Completed(), total, interestingCount)
	}

	rep := collector.Report()
	rep.Duplicates = duplicates

	zap.S().Infow("run finished",
		"completed", rep.Completed,
		"total", rep.Total,
		"complete", rep.Complete,
		"next_index", rep.NextIndex,
		"budget_expired", d.expired.Load(),
		"max_in_flight", d.tokens.Max())

	if err := ctx.Err(); err != nil {
		return rep, errors.Wrap(err, "run interrupted")
	}
	return rep, nil
}

// dispatch is the per-run scheduling state owned by the dispatcher goroutine.
// Runs sharing a Runner never share a dispatch.
type dispatch struct {
	runner  *Runner
	unique  []types.CheckRequest
	out     chan<- completion
	tokens  *tokenPool
	limiter *rate.Limiter
	// rnd is only read by the dispatcher goroutine.
	rnd     *rand.Rand
	started time.Time
	expired atomic.Bool
}

func (d *dispatch) stop(ctx context.Context) bool {
	if ctx.Err() != nil || d.expired.Load() {
		return true
	}
	if b := d.runner.cfg.Budget; b > 0 && d.runner.now().Sub(d.started) >= b {
		zap.S().Warnw("run budget expired, no further checks will be started", "budget", b)
		d.expired.Store(true)
		return true
	}
	return false
}

func (d *dispatch) chunked(ctx context.Context, pending []int) {
	size := d.runner.cfg.ChunkSize
	for start := 0; start < len(pending); start += size {
		end := start + size
		if end > len(pending) {
			end = len(pending)
		}
		if !d.group(ctx, pending[start:end]) {
			return
		}
		if end == len(pending) {
			return
		}
		pause := d.pause()
		zap.S().Debugw("chunk finished", "checked", end, "pending", len(pending), "pause", pause)
		if err := d.runner.sleep(ctx, pause); err != nil {
			return
		}
	}
}

func (d *dispatch) pause() time.Duration {
	lo, hi := d.runner.cfg.ChunkDelayMin, d.runner.cfg.ChunkDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(d.rnd.Int63n(int64(hi-lo)+1))
}

// group checks indices against the token pool and waits for all of them.
// It returns false when dispatch stopped early.
func (d *dispatch) group(ctx context.Context, indices []int) bool {
	var wg sync.WaitGroup
	defer wg.Wait()

	for _, idx := range indices {
		if d.stop(ctx) {
			return false
		}
		req := d.unique[idx]

		// Malformed entries never take a token.
		if _, err := Normalize(req.URL); err != nil {
			d.out <- completion{index: idx, result: invalidResult(req, err)}
			continue
		}

		if err := d.tokens.Acquire(ctx); err != nil {
			return false
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.tokens.Release()
				return false
			}
		}

		wg.Add(1)
		go func(idx int, req types.CheckRequest) {
			defer wg.Done()
			defer d.tokens.Release()
			res := d.runner.checker.Check(ctx, req)
			d.out <- completion{
				index:   idx,
				result:  res,
				aborted: ctx.Err() != nil && res.Code == 0,
			}
		}(idx, req)
	}
	return true
}

func invalidResult(req types.CheckRequest, err error) types.CheckResult {
	identifier := req.Identifier
	if identifier == "" {
		identifier = types.DefaultIdentifier
	}
	return types.CheckResult{
		Identifier:    identifier,
		URL:           req.URL,
		Status:        types.StatusInvalidURL,
		Reason:        err.Error(),
		ContentLength: -1,
	}
}

// tokenPool is the run's concurrency ceiling, instrumented with the in-flight count.
type tokenPool struct {
	sem      *semaphore.Weighted
	observer Observer
	inFlight atomic.Int64
	max      atomic.Int64
}

func newTokenPool(size int, observer Observer) *tokenPool {
	return &tokenPool{sem: semaphore.NewWeighted(int64(size)), observer: observer}
}

func (p *tokenPool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := p.inFlight.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			break
		}
	}
	p.observer.InFlight(1)
	return nil
}

func (p *tokenPool) Release() {
	p.inFlight.Add(-1)
	p.observer.InFlight(-1)
	p.sem.Release(1)
}

// Max returns the highest number of tokens held at once.
func (p *tokenPool) Max() int {
	return int(p.max.Load())
}
