package scan

import (
	"context"
	"time"

	"github.com/cnosuke/imgcheck/checker"
	"github.com/cnosuke/imgcheck/checkpoint"
	"github.com/cnosuke/imgcheck/config"
	"github.com/cnosuke/imgcheck/report"
	"github.com/cnosuke/imgcheck/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scanner runs batches and keeps their progress in an optional checkpoint store.
type Scanner struct {
	runner *checker.Runner
	store  checkpoint.Store
}

// New creates a Scanner. store may be nil.
func New(runner *checker.Runner, store checkpoint.Store) *Scanner {
	return &Scanner{runner: runner, store: store}
}

// NewFromConfig builds the HTTP checker and runner described by cfg.
func NewFromConfig(cfg *config.Config, observer checker.Observer, store checkpoint.Store) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	var checkerOpts []checker.Option
	var runnerOpts []checker.RunnerOption
	if observer != nil {
		checkerOpts = append(checkerOpts, checker.WithObserver(observer))
		runnerOpts = append(runnerOpts, checker.WithRunnerObserver(observer))
	}

	c, err := checker.NewHTTPChecker(checker.Config{
		Timeout:            time.Duration(cfg.Check.Timeout) * time.Second,
		UserAgent:          cfg.Check.UserAgent,
		Method:             cfg.Check.Method,
		RangeBytes:         cfg.Check.RangeBytes,
		HeadFallback:       !cfg.Check.DisableHeadFallback,
		MaxAttempts:        cfg.Check.MaxAttempts,
		BackoffBase:        time.Duration(cfg.Check.BackoffBaseMS) * time.Millisecond,
		MaxRedirects:       cfg.Check.MaxRedirects,
		InsecureSkipVerify: cfg.Check.InsecureSkipVerify,
		MaxConnsPerHost:    cfg.Run.Concurrency,
	}, checkerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create checker")
	}

	runner, err := checker.NewRunner(checker.RunnerConfig{
		Concurrency:       cfg.Run.Concurrency,
		Strategy:          checker.Strategy(cfg.Run.Strategy),
		ChunkSize:         cfg.Run.ChunkSize,
		ChunkThreshold:    cfg.Run.ChunkThreshold,
		ChunkDelayMin:     time.Duration(cfg.Run.ChunkDelayMinMS) * time.Millisecond,
		ChunkDelayMax:     time.Duration(cfg.Run.ChunkDelayMaxMS) * time.Millisecond,
		ProgressEvery:     cfg.Run.ProgressEvery,
		RequestsPerSecond: cfg.Run.RequestsPerSecond,
		Budget:            time.Duration(cfg.Run.BudgetSeconds) * time.Second,
	}, c, runnerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create runner")
	}
	return New(runner, store), nil
}

// Scan checks reqs. With a store, results already resolved for the same input are reused
// and every new result is persisted as it arrives.
func (s *Scanner) Scan(ctx context.Context, reqs []types.CheckRequest, hooks checker.Hooks) (*types.Report, error) {
	runID := uuid.NewString()
	unique, _ := report.Dedupe(reqs)
	key := checkpoint.ScanKey(unique)

	if s.store != nil {
		done, err := s.store.Load(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load checkpoint")
		}
		if len(done) > 0 {
			zap.S().Infow("resuming from checkpoint", "scan", key, "resolved", len(done))
		}
		hooks.Completed = done

		next := hooks.OnResult
		hooks.OnResult = func(index int, r types.CheckResult) {
			// Persisting uses a fresh context so results that finish during shutdown are kept.
			if err := s.store.Save(context.WithoutCancel(ctx), key, index, r); err != nil {
				zap.S().Warnw("failed to persist result", "scan", key, "index", index, "error", err)
			}
			if next != nil {
				next(index, r)
			}
		}
	}

	rep, runErr := s.runner.Run(ctx, reqs, hooks)
	if rep == nil {
		return nil, runErr
	}
	rep.RunID = runID

	if s.store != nil {
		err := s.store.SaveCursor(context.WithoutCancel(ctx), key, checkpoint.Cursor{
			RunID:     runID,
			NextIndex: rep.NextIndex,
			Total:     rep.Total,
		})
		if err != nil {
			zap.S().Warnw("failed to persist cursor", "scan", key, "error", err)
		}
	}

	zap.S().Infow("scan finished", "run_id", runID, "scan", key, "summary", report.Summary(rep))
	return rep, runErr
}

// Reset clears stored progress for the input reqs.
func (s *Scanner) Reset(ctx context.Context, reqs []types.CheckRequest) error {
	if s.store == nil {
		return errors.New("no checkpoint store configured")
	}
	unique, _ := report.Dedupe(reqs)
	return s.store.Reset(ctx, checkpoint.ScanKey(unique))
}
