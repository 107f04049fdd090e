package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/rankset/internal/clients/redis"
	"github.com/yungbote/rankset/internal/platform/dbctx"
	"github.com/yungbote/rankset/internal/platform/logger"
	"github.com/yungbote/rankset/internal/ranking"
)

const (
	RefreshStatusOK      = "ok"
	RefreshStatusFailed  = "failed"
	RefreshStatusLocked  = "locked"
	RefreshStatusDryRun  = "dry_run"
	RefreshStatusSkipped = "skipped"
)

type RefreshRequest struct {
	// Models restricts the run to these entity types. Empty means every
	// registered handler.
	Models []string
	// Typologies restricts every selected handler to these names; each
	// selected handler must implement all of them.
	Typologies      []string
	DryRun          bool
	ContinueOnError bool
	// Purge removes unusable leftovers instead of refreshing.
	Purge       bool
	Concurrency int
	// Progress receives human-readable step messages. May be nil.
	Progress io.Writer
}

type TypologyResult struct {
	EntityType string
	Typology   string
	Status     string
	Purged     int64
	Duration   time.Duration
	Err        error
}

type RefreshReport struct {
	RunID   uuid.UUID
	Results []TypologyResult
}

// Failed counts results that did not complete.
func (r RefreshReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == RefreshStatusFailed || res.Status == RefreshStatusLocked {
			n++
		}
	}
	return n
}

// LockObserver is told when a typology is skipped because its lock is held.
type LockObserver interface {
	ObserveLockNotObtained(entityType, typology string)
}

type RankingRefreshService interface {
	Run(ctx context.Context, req RefreshRequest) (RefreshReport, error)
}

type rankingRefreshService struct {
	log      *logger.Logger
	registry *ranking.Registry
	locker   redis.Locker
	lockTTL  time.Duration
	locks    LockObserver
}

func NewRankingRefreshService(
	baseLog *logger.Logger,
	registry *ranking.Registry,
	locker redis.Locker,
	lockTTL time.Duration,
	locks LockObserver,
) RankingRefreshService {
	return &rankingRefreshService{
		log:      baseLog.With("service", "RankingRefreshService"),
		registry: registry,
		locker:   locker,
		lockTTL:  lockTTL,
		locks:    locks,
	}
}

type refreshJob struct {
	handler  *ranking.Handler
	typology string
}

func (s *rankingRefreshService) Run(ctx context.Context, req RefreshRequest) (RefreshReport, error) {
	report := RefreshReport{RunID: uuid.New()}
	if s == nil || s.registry == nil || s.locker == nil {
		return report, fmt.Errorf("ranking refresh service not configured")
	}
	log := s.log.With("run_id", report.RunID.String())

	jobs, err := s.plan(req)
	if err != nil {
		return report, err
	}
	if len(jobs) == 0 {
		log.Warn("Nothing to refresh, no ranking handler registered")
		return report, nil
	}

	out := &syncWriter{w: req.Progress}
	switch {
	case req.Purge && req.DryRun:
		out.write([]byte("Simulating purge...\n"))
	case req.Purge:
		out.write([]byte("Purging...\n"))
	case req.DryRun:
		out.write([]byte("Simulating flushing...\n"))
	default:
		out.write([]byte("Flushing...\n"))
	}

	conc := req.Concurrency
	if conc < 1 {
		conc = 1
	}
	log.Info("Ranking refresh started", "jobs", len(jobs), "concurrency", conc, "dry_run", req.DryRun, "purge", req.Purge)
	started := time.Now()

	results := make([]TypologyResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for i, job := range jobs {
		i, job := i, job
		results[i] = TypologyResult{
			EntityType: string(job.handler.EntityType()),
			Typology:   job.typology,
			Status:     RefreshStatusSkipped,
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := s.runJob(gctx, log, job, req, out)
			results[i] = res
			if res.Err != nil && !req.ContinueOnError {
				return res.Err
			}
			return nil
		})
	}
	firstErr := g.Wait()
	report.Results = results

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if firstErr != nil && len(errs) == 0 {
		errs = append(errs, firstErr)
	}
	err = errors.Join(errs...)
	log.Info("Ranking refresh finished", "jobs", len(jobs), "failed", report.Failed(), "duration_ms", time.Since(started).Milliseconds())
	return report, err
}

// plan resolves the request into (handler, typology) jobs. Every name is
// validated before any job runs.
func (s *rankingRefreshService) plan(req RefreshRequest) ([]refreshJob, error) {
	var handlers []*ranking.Handler
	if len(req.Models) == 0 {
		handlers = s.registry.Handlers()
	} else {
		seen := map[string]bool{}
		for _, m := range req.Models {
			if seen[m] {
				continue
			}
			seen[m] = true
			h, err := s.registry.Handler(ranking.EntityType(m))
			if err != nil {
				return nil, err
			}
			handlers = append(handlers, h)
		}
	}

	var jobs []refreshJob
	for _, h := range handlers {
		names := h.Typologies()
		if len(req.Typologies) > 0 {
			names = names[:0]
			seen := map[string]bool{}
			for _, spec := range req.Typologies {
				name, _ := ranking.ParseTypologySpec(spec)
				if err := h.ValidateTypology(name); err != nil {
					return nil, fmt.Errorf("%s: %w", h, err)
				}
				if !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
		for _, name := range names {
			jobs = append(jobs, refreshJob{handler: h, typology: name})
		}
	}
	return jobs, nil
}

func (s *rankingRefreshService) runJob(ctx context.Context, log *logger.Logger, job refreshJob, req RefreshRequest, out *syncWriter) (res TypologyResult) {
	entityType := string(job.handler.EntityType())
	res = TypologyResult{EntityType: entityType, Typology: job.typology}
	log = log.With("entity_type", entityType, "typology", job.typology)
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	dbc := dbctx.Context{Ctx: ctx}
	var buf bytes.Buffer
	defer func() { out.write(buf.Bytes()) }()

	if req.DryRun {
		if req.Purge {
			n, err := job.handler.UnusableCount(dbc, job.typology)
			if err != nil {
				res.Status, res.Err = RefreshStatusFailed, err
				return res
			}
			fmt.Fprintf(&buf, "Handler: %s - Typology: %s - would purge %d\n", job.handler, job.typology, n)
			res.Status, res.Purged = RefreshStatusDryRun, n
			return res
		}
		if err := job.handler.RefreshTypology(dbc, job.typology, true, &buf); err != nil {
			res.Status, res.Err = RefreshStatusFailed, err
			return res
		}
		res.Status = RefreshStatusDryRun
		return res
	}

	key := redis.RefreshLockKey(entityType, job.typology)
	lease, err := s.locker.Obtain(ctx, key, s.lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrNotObtained) {
			log.Warn("Typology refresh already in progress elsewhere, skipping", "lock", key)
			fmt.Fprintf(&buf, "Handler: %s - Typology: %s - locked by another run\n", job.handler, job.typology)
			if s.locks != nil {
				s.locks.ObserveLockNotObtained(entityType, job.typology)
			}
			res.Status, res.Err = RefreshStatusLocked, err
			return res
		}
		res.Status, res.Err = RefreshStatusFailed, err
		return res
	}

	// Work runs under jobCtx so a lost lease cancels the open transaction
	// before it can commit.
	jobCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	stopKeepalive := s.keepalive(jobCtx, log, lease, key, abort)
	dbc = dbctx.Context{Ctx: jobCtx}
	defer func() {
		stopKeepalive()
		if cause := context.Cause(jobCtx); errors.Is(cause, redis.ErrLockLost) {
			res.Status, res.Err = RefreshStatusFailed, cause
		}
		// The refresh may have consumed ctx's deadline; release regardless.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(rctx); err != nil {
			if !errors.Is(err, redis.ErrLockLost) {
				log.Warn("Failed to release refresh lock", "lock", key, "error", err)
				return
			}
			log.Error("Refresh lock expired before release", "lock", key, "error", err)
			if res.Err == nil {
				res.Status, res.Err = RefreshStatusFailed, err
			}
		}
	}()

	if req.Purge {
		n, err := job.handler.PurgeTypology(dbc, job.typology)
		fmt.Fprintf(&buf, "Handler: %s - Typology: %s - purged %d\n", job.handler, job.typology, n)
		res.Purged = n
		if err != nil {
			res.Status, res.Err = RefreshStatusFailed, err
			return res
		}
		res.Status = RefreshStatusOK
		return res
	}

	if err := job.handler.RefreshTypology(dbc, job.typology, false, &buf); err != nil {
		res.Status, res.Err = RefreshStatusFailed, err
		return res
	}
	res.Status = RefreshStatusOK
	return res
}

// keepalive refreshes lease every half TTL until stop is called. A failed
// refresh cancels ctx with a cause wrapping redis.ErrLockLost.
func (s *rankingRefreshService) keepalive(ctx context.Context, log *logger.Logger, lease redis.Lease, key string, abort context.CancelCauseFunc) (stop func()) {
	interval := s.lockTTL / 2
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lease.Refresh(ctx, s.lockTTL)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.ErrLockLost) {
					err = fmt.Errorf("%w: %w", redis.ErrLockLost, err)
				}
				log.Error("Refresh lock could not be extended, aborting typology", "lock", key, "error", err)
				abort(err)
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// syncWriter serializes whole job transcripts onto one writer so concurrent
// typologies do not interleave their lines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) {
	if s.w == nil || len(p) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.w.Write(p)
}
