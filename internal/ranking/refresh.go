package ranking

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	rankingrepo "github.com/yungbote/rankset/internal/data/repos/ranking"
	types "github.com/yungbote/rankset/internal/domain/ranking"
	"github.com/yungbote/rankset/internal/pkg/batch"
	"github.com/yungbote/rankset/internal/platform/dbctx"
)

type RefreshOptions struct {
	// DryRun reports what would be refreshed without writing.
	DryRun bool
	// Progress receives human-readable step messages. May be nil.
	Progress io.Writer
	// Typologies restricts the run. Empty means all, in lexical order.
	Typologies []string
	// ContinueOnError attempts every typology and joins the failures.
	// Otherwise the first failure stops the run.
	ContinueOnError bool
}

// Refresh rebuilds the rankings of h, one transaction per typology:
//
//  1. purge rows left unusable by an aborted run,
//  2. insert the new generation as unusable, positions 1..n in rank order,
//  3. delete the usable generation,
//  4. mark the new generation usable.
//
// Readers observe either the old generation or the new one. Refreshing the
// same typology concurrently can publish two generations; callers must
// serialize refreshes per (entity type, typology).
func (h *Handler) Refresh(dbc dbctx.Context, opts RefreshOptions) error {
	names, err := h.selectTypologies(opts.Typologies)
	if err != nil {
		return err
	}
	p := progress{w: opts.Progress}
	if opts.DryRun {
		p.printf("Simulating flushing...\n")
	} else {
		p.printf("Flushing...\n")
	}

	var errs []error
	for _, name := range names {
		if err := h.refreshOne(dbc, name, opts.DryRun, p); err != nil {
			if !opts.ContinueOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RefreshTypology refreshes a single typology without the run header.
// Callers driving several typologies themselves, possibly concurrently,
// use it instead of Refresh.
func (h *Handler) RefreshTypology(dbc dbctx.Context, typology string, dryRun bool, w io.Writer) error {
	if err := h.typs.Validate(typology); err != nil {
		return fmt.Errorf("refresh %s: %w", h, err)
	}
	return h.refreshOne(dbc, typology, dryRun, progress{w: w})
}

func (h *Handler) refreshOne(dbc dbctx.Context, typology string, dryRun bool, p progress) error {
	p.printf("Handler: %s - Typology: %s\n", h, typology)
	if dryRun {
		p.printf("Skipped purge, insert, delete, activate (dry run)\n")
		h.log.Info("Dry run, ranking left untouched", "typology", typology)
		h.observer.ObserveRefresh(string(h.entity.Type), typology, StatusDryRun, 0)
		return nil
	}
	return h.refreshTypology(dbc, typology, p)
}

func (h *Handler) selectTypologies(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return h.typs.Names(), nil
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, spec := range requested {
		name, _ := ParseTypologySpec(spec)
		if err := h.typs.Validate(name); err != nil {
			return nil, fmt.Errorf("refresh %s: %w", h, err)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func (h *Handler) refreshTypology(dbc dbctx.Context, typology string, p progress) error {
	rank, err := h.typs.get(typology)
	if err != nil {
		return err
	}
	entityType := string(h.entity.Type)
	ctx, span := h.tracer.Start(dbc.Context(), "ranking.refresh", trace.WithAttributes(
		attribute.String("ranking.entity_type", entityType),
		attribute.String("ranking.typology", typology),
	))
	defer span.End()

	started := time.Now()
	inserted := 0
	run := func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}

		if err := h.runPhase(txc, p, typology, "Purge", PhasePurge, func(txc dbctx.Context) (int, error) {
			n, err := h.repo.DeleteScope(txc, h.scope(typology, false))
			return int(n), err
		}); err != nil {
			return err
		}

		if err := h.runPhase(txc, p, typology, "Insert", PhaseInsert, func(txc dbctx.Context) (int, error) {
			n, err := h.insertGeneration(txc, typology, rank)
			inserted = n
			return n, err
		}); err != nil {
			return err
		}

		if err := h.runPhase(txc, p, typology, "Delete", PhaseDelete, func(txc dbctx.Context) (int, error) {
			return batch.Run(h.batchSize, func(ids []int64) error {
				_, err := h.repo.DeleteByIDs(txc, ids)
				return err
			}, func(w *batch.Writer[int64]) error {
				return h.eachID(txc, h.scope(typology, true), w.Add)
			})
		}); err != nil {
			return err
		}

		return h.runPhase(txc, p, typology, "Update", PhaseActivate, func(txc dbctx.Context) (int, error) {
			return batch.Run(h.batchSize, func(ids []int64) error {
				_, err := h.repo.MarkUsable(txc, ids)
				return err
			}, func(w *batch.Writer[int64]) error {
				return h.eachID(txc, h.scope(typology, false), w.Add)
			})
		})
	}

	base := dbc.Tx
	if base == nil {
		base = h.db
	}
	err = base.WithContext(ctx).Transaction(run)
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.log.Error("Ranking refresh failed, transaction rolled back", "typology", typology, "error", err, "duration_ms", elapsed.Milliseconds())
		h.observer.ObserveRefresh(entityType, typology, StatusError, elapsed)
		return err
	}
	span.SetAttributes(attribute.Int("ranking.rows", inserted))
	h.log.Info("Ranking refreshed", "typology", typology, "rows", inserted, "duration_ms", elapsed.Milliseconds())
	h.observer.ObserveRefresh(entityType, typology, StatusOK, elapsed)
	return nil
}

func (h *Handler) insertGeneration(txc dbctx.Context, typology string, rank RankFunc) (int, error) {
	ids, err := rank(txc)
	if err != nil {
		return 0, fmt.Errorf("compute ranking: %w", err)
	}
	positions := NewPositions(1)
	return batch.Run(h.batchSize, func(rows []*types.RankingEntry) error {
		return h.repo.Create(txc, rows)
	}, func(w *batch.Writer[*types.RankingEntry]) error {
		for i, raw := range ids {
			id, err := FormatEntityID(raw)
			if err != nil {
				return fmt.Errorf("identifier at index %d: %w", i, err)
			}
			if h.entity.intKey {
				if _, err := strconv.ParseInt(id, 10, 64); err != nil {
					return fmt.Errorf("identifier at index %d: %w: %q is not an integer key", i, ErrInvalidIdentifier, id)
				}
			}
			if err := w.Add(&types.RankingEntry{
				EntityType: string(h.entity.Type),
				EntityID:   id,
				Typology:   typology,
				Usable:     false,
				Position:   positions.Next(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// eachID feeds fn every row id in scope, ascending, paging with a keyset
// cursor so fn may delete or move rows it has been handed.
func (h *Handler) eachID(dbc dbctx.Context, scope rankingrepo.Scope, fn func(id int64) error) error {
	var after int64
	for {
		ids, err := h.repo.PageIDs(dbc, scope, after, h.batchSize)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			if err := fn(id); err != nil {
				return err
			}
		}
		after = ids[len(ids)-1]
	}
}

func (h *Handler) runPhase(dbc dbctx.Context, p progress, typology, label, phase string, fn func(dbc dbctx.Context) (int, error)) error {
	ctx, span := h.tracer.Start(dbc.Context(), "ranking.refresh."+phase)
	defer span.End()

	p.start(label)
	started := time.Now()
	rows, err := fn(dbctx.Context{Ctx: ctx, Tx: dbc.Tx})
	elapsed := time.Since(started)
	if err != nil {
		p.failed(elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("refresh %s/%s: %s: %w", h, typology, phase, err)
	}
	p.done(elapsed)
	span.SetAttributes(attribute.Int("ranking.rows", rows))
	h.log.Debug("Ranking phase done", "typology", typology, "phase", phase, "rows", rows, "duration_ms", elapsed.Milliseconds())
	h.observer.ObservePhase(string(h.entity.Type), typology, phase, rows, elapsed)
	return nil
}

// PurgeUnusable removes rows abandoned by aborted refreshes of every
// typology of h. It must not run while a refresh of h is in flight.
func (h *Handler) PurgeUnusable(dbc dbctx.Context) (int64, error) {
	var total int64
	for _, name := range h.typs.Names() {
		n, err := h.PurgeTypology(dbc, name)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// PurgeTypology removes the unusable rows of one typology.
func (h *Handler) PurgeTypology(dbc dbctx.Context, typology string) (int64, error) {
	if err := h.typs.Validate(typology); err != nil {
		return 0, fmt.Errorf("purge %s: %w", h, err)
	}
	n, err := h.repo.DeleteScope(dbc, h.scope(typology, false))
	if err != nil {
		return 0, fmt.Errorf("purge %s/%s: %w", h, typology, err)
	}
	if n > 0 {
		h.log.Info("Purged unusable ranking entries", "typology", typology, "rows", n)
	}
	return n, nil
}

// UnusableCount reports how many rows PurgeTypology would remove.
func (h *Handler) UnusableCount(dbc dbctx.Context, typology string) (int64, error) {
	if err := h.typs.Validate(typology); err != nil {
		return 0, fmt.Errorf("purge %s: %w", h, err)
	}
	return h.repo.Count(dbc, h.scope(typology, false))
}
