// Package enrich drives the end-to-end enrichment pipeline: worklist
// fetch, batched identity lookups, one reachability check per batch,
// merge, and persistence.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/leadfactor/enrich-cli/internal/merge"
	"github.com/leadfactor/enrich-cli/internal/model"
	"github.com/leadfactor/enrich-cli/internal/phone"
	"github.com/leadfactor/enrich-cli/internal/store"
	"github.com/leadfactor/enrich-cli/pkg/lookup"
	"github.com/leadfactor/enrich-cli/pkg/reachability"
)

// Config tunes the orchestrator. Values come from configuration, not user
// input.
type Config struct {
	// BatchSize is the number of records per reachability call.
	BatchSize int
	// RecordDelay paces consecutive identity lookups.
	RecordDelay time.Duration
	// MaxErrors bounds the per-record error list on the outcome.
	MaxErrors int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 25
	}
	return c
}

// Scope selects the worklist for one run.
type Scope struct {
	OwnerID int64
	// Limit caps the worklist size; 0 means no cap.
	Limit int
	// Force re-enriches records even when already checked or complete.
	Force bool
}

// Runner executes enrichment runs. A Runner is safe for concurrent use;
// each Run call is an independent single-worker pipeline.
type Runner struct {
	store  store.Store
	lookup lookup.Client
	reach  reachability.Client
	cfg    Config
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, lc lookup.Client, rc reachability.Client, cfg Config) *Runner {
	return &Runner{store: st, lookup: lc, reach: rc, cfg: cfg.withDefaults()}
}

// pending is a worklist record that passed the lookup stage and awaits
// reachability + merge.
type pending struct {
	rec    model.ClientRecord
	result *lookup.Result // nil when the lookup failed non-fatally
}

// Run executes the pipeline for one scope and returns the aggregate
// outcome. Cancellation is cooperative: it is honored at batch
// boundaries, and an in-flight batch always runs to completion.
func (r *Runner) Run(ctx context.Context, scope Scope) (*model.BatchOutcome, error) {
	if scope.OwnerID == 0 {
		return nil, eris.New("enrich: scope is missing an owner")
	}

	log := zap.L().With(zap.Int64("owner_id", scope.OwnerID))

	run, err := r.store.CreateRun(ctx, scope.OwnerID)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create run")
	}
	log = log.With(zap.String("run_id", run.ID))

	r.setStatus(ctx, log, run.ID, model.RunStatusFetching)

	filter := store.Filter{OwnerID: scope.OwnerID, Limit: scope.Limit}
	if !scope.Force {
		unchecked := false
		filter.Checked = &unchecked
	}
	worklist, err := r.store.Worklist(ctx, filter)
	if err != nil {
		r.setStatus(ctx, log, run.ID, model.RunStatusFailed)
		return nil, eris.Wrap(err, "enrich: fetch worklist")
	}

	outcome := &model.BatchOutcome{}
	total := (len(worklist) + r.cfg.BatchSize - 1) / r.cfg.BatchSize
	log.Info("enrich: run starting", zap.Int("records", len(worklist)), zap.Int("batches", total))

	r.setStatus(ctx, log, run.ID, model.RunStatusRunning)

	limiter := rate.NewLimiter(rate.Every(r.cfg.RecordDelay), 1)
	if r.cfg.RecordDelay <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	for i := 0; i < len(worklist); i += r.cfg.BatchSize {
		if ctx.Err() != nil {
			r.setStatus(context.WithoutCancel(ctx), log, run.ID, model.RunStatusCancelling)
			outcome.Cancelled = true
			log.Info("enrich: run cancelled", zap.Int("batch", i/r.cfg.BatchSize+1), zap.Int("batches", total))
			break
		}

		end := min(i+r.cfg.BatchSize, len(worklist))
		log.Info("enrich: processing batch",
			zap.Int("batch", i/r.cfg.BatchSize+1),
			zap.Int("batches", total),
			zap.Int("size", end-i),
		)
		r.processBatch(ctx, log, scope, worklist[i:end], limiter, outcome)
	}

	status := model.RunStatusComplete
	persistCtx := context.WithoutCancel(ctx)
	if err := r.store.FinishRun(persistCtx, run.ID, status, outcome); err != nil {
		log.Error("enrich: persist run outcome", zap.Error(err))
	}

	log.Info("enrich: run finished",
		zap.Int("attempted", outcome.Attempted),
		zap.Int("succeeded", outcome.Succeeded),
		zap.Int("failed", outcome.Failed),
		zap.Int("excluded", outcome.Excluded),
		zap.Bool("cancelled", outcome.Cancelled),
	)
	return outcome, nil
}

// processBatch runs lookups sequentially, one reachability call for the
// batch union, then merge + persist per record. Errors never escape: they
// become outcome entries.
func (r *Runner) processBatch(ctx context.Context, log *zap.Logger, scope Scope, batch []model.ClientRecord, limiter *rate.Limiter, outcome *model.BatchOutcome) {
	// A started batch runs to completion even if the run is cancelled
	// mid-flight; cancellation is only honored at batch boundaries.
	ctx = context.WithoutCancel(ctx)

	var pendings []pending

	for _, rec := range batch {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		result, err := r.lookup.Lookup(ctx, lookup.Request{
			CPF:        rec.CPF,
			KnownName:  rec.HasName(),
			KnownPhone: rec.HasPhone(),
			Force:      scope.Force,
		})
		switch {
		case errors.Is(err, lookup.ErrSkipped):
			// Already enriched, so no remote call was made. The record
			// still flows through reachability and merge: otherwise
			// checked never gets set and it re-enters every worklist.
			log.Debug("enrich: lookup skipped", zap.String("cpf", rec.CPF))
			outcome.Attempted++
			pendings = append(pendings, pending{rec: rec})
			continue
		case errors.Is(err, lookup.ErrNoData) && !rec.HasPhone():
			// The provider confirmed nothing exists and the record never
			// had a phone: an empty shell not worth keeping.
			outcome.Attempted++
			if err := r.store.DeleteClient(ctx, rec.ID); err != nil {
				r.recordFailure(log, outcome, rec, eris.Wrap(err, "delete"))
				continue
			}
			outcome.Excluded++
			log.Info("enrich: record excluded, no data exists", zap.String("cpf", rec.CPF))
			continue
		case errors.Is(err, lookup.ErrNoData):
			// Keep going with the data we already have.
			log.Warn("enrich: lookup returned no data, keeping existing record", zap.String("cpf", rec.CPF))
			outcome.Attempted++
			pendings = append(pendings, pending{rec: rec})
			continue
		case err != nil:
			outcome.Attempted++
			r.recordFailure(log, outcome, rec, err)
			continue
		}

		outcome.Attempted++
		pendings = append(pendings, pending{rec: rec, result: result})
	}

	if len(pendings) == 0 {
		return
	}

	reach, err := r.checkReachability(ctx, log, pendings)
	if err != nil {
		// A transport-level failure fails the whole batch; the next batch
		// still runs.
		for _, p := range pendings {
			r.recordFailure(log, outcome, p.rec, eris.Wrap(err, "reachability"))
		}
		return
	}

	for _, p := range pendings {
		decision := merge.Merge(p.rec, p.result, reach)
		switch decision.Action {
		case merge.ActionDelete:
			if err := r.store.DeleteClient(ctx, p.rec.ID); err != nil {
				r.recordFailure(log, outcome, p.rec, eris.Wrap(err, "delete"))
				continue
			}
			outcome.Excluded++
			log.Info("enrich: record excluded after merge", zap.String("cpf", p.rec.CPF))
		case merge.ActionUpdate:
			if err := r.store.UpdateClient(ctx, p.rec.ID, decision.Update); err != nil {
				r.recordFailure(log, outcome, p.rec, eris.Wrap(err, "persist"))
				continue
			}
			outcome.Succeeded++
			log.Info("enrich: record enriched",
				zap.String("cpf", p.rec.CPF),
				zap.Bool("has_phone", decision.Update.Phone != nil),
			)
		}
	}
}

// checkReachability queries the union of the batch's expanded candidates.
// Credential exhaustion is not an error: the batch proceeds unannotated.
func (r *Runner) checkReachability(ctx context.Context, log *zap.Logger, pendings []pending) (map[string]bool, error) {
	var raws []string
	for _, p := range pendings {
		if p.rec.Phone != nil {
			raws = append(raws, phone.SplitField(*p.rec.Phone)...)
		}
		if p.result != nil {
			raws = append(raws, p.result.Phones...)
		}
	}

	candidates := phone.Candidates(raws)
	if len(candidates) == 0 {
		return nil, nil
	}

	reach, err := r.reach.Check(ctx, candidates)
	if errors.Is(err, reachability.ErrUnavailable) {
		log.Warn("enrich: reachability unavailable, proceeding unannotated")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reach, nil
}

func (r *Runner) recordFailure(log *zap.Logger, outcome *model.BatchOutcome, rec model.ClientRecord, err error) {
	outcome.Failed++
	if len(outcome.Errors) < r.cfg.MaxErrors {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", rec.CPF, err))
	}
	log.Warn("enrich: record failed", zap.String("cpf", rec.CPF), zap.Error(err))
}

func (r *Runner) setStatus(ctx context.Context, log *zap.Logger, runID string, status model.RunStatus) {
	if err := r.store.UpdateRunStatus(ctx, runID, status); err != nil {
		log.Warn("enrich: update run status", zap.String("status", string(status)), zap.Error(err))
	}
}
