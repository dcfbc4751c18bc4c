// Package view republishes the filtered evidence view. A run recomputes the
// filtered tables from the unfiltered baseline and swaps them in atomically;
// readers see either the previous filtered view or the new one.
package view

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ChrisMcGann/IDFilter/pkg/filter"
	"github.com/ChrisMcGann/IDFilter/pkg/store"
)

// ErrFilterInProgress is returned when another run holds the store.
var ErrFilterInProgress = errors.New("a filtering run is already in progress for this store")

// Options configures a Publisher.
type Options struct {
	// Threads bounds the workers used for coverage and graph construction;
	// 0 means GOMAXPROCS.
	Threads int

	// LockPath overrides the cross-process lock file, "<db>.lock" by default.
	LockPath string

	Logger *slog.Logger

	// Now is the clock used for the criteria timestamp.
	Now func() time.Time
}

// Result reports what one run did.
type Result struct {
	RunID         string
	Config        filter.Config
	Candidates    int
	Retained      int
	Dropped       []int64
	Cascade       store.CascadeResult
	ExplainedPSMs int
	Clusters      int
	FilteredAt    time.Time
	Elapsed       time.Duration
}

// Publisher serializes filtering runs against one store.
type Publisher struct {
	store   store.Store
	threads int
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	lock *flock.Flock
}

// NewPublisher returns a publisher for st.
func NewPublisher(st store.Store, opts Options) *Publisher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lockPath := opts.LockPath
	if lockPath == "" && st.Path() != "" {
		lockPath = st.Path() + ".lock"
	}

	p := &Publisher{
		store:   st,
		threads: opts.Threads,
		logger:  logger,
		now:     now,
	}
	if lockPath != "" {
		p.lock = flock.New(lockPath)
	}
	return p
}

// acquire takes the in-process mutex and the cross-process file lock.
// Contention on either is reported as ErrFilterInProgress.
func (p *Publisher) acquire() (func(), error) {
	if !p.mu.TryLock() {
		return nil, ErrFilterInProgress
	}
	if p.lock == nil {
		return p.mu.Unlock, nil
	}

	ok, err := p.lock.TryLock()
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("acquire filter lock: %w", err)
	}
	if !ok {
		p.mu.Unlock()
		return nil, ErrFilterInProgress
	}
	return func() {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Warn("failed to release filter lock", "path", p.lock.Path(), "error", err)
		}
		p.mu.Unlock()
	}, nil
}

// Publish runs the threshold filter, parsimony and clustering for cfg and
// replaces the canonical view with the result. On any error the transaction
// is rolled back and the previous canonical view stays in place.
//
// Only the four thresholds shape the published view; cfg.Scope narrows read
// queries and is cleared here.
func (p *Publisher) Publish(ctx context.Context, cfg filter.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Scope = store.Scope{}

	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Config: cfg}
	logger := p.logger.With("run_id", res.RunID)
	logger.Info("filtering started", "criteria", cfg.String())

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil {
			logger.Error("rollback failed", "error", err)
		}
	}()

	if err := p.run(ctx, tx, cfg, res, logger); err != nil {
		logger.Error("filtering failed", "error", err)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	res.Elapsed = time.Since(start)
	logger.Info("filtering finished",
		"candidates", res.Candidates,
		"retained", res.Retained,
		"dropped", len(res.Dropped),
		"clusters", res.Clusters,
		"elapsed", res.Elapsed)
	return res, nil
}

func (p *Publisher) run(ctx context.Context, tx store.Tx, cfg filter.Config, res *Result, logger *slog.Logger) error {
	// leftovers of an interrupted run never survive a commit, but a store
	// edited by hand might carry them
	if err := tx.DropView(ctx, store.Staged); err != nil {
		return err
	}

	if err := restoreBaseline(ctx, tx); err != nil {
		return err
	}

	rows, err := tx.QueryEvidence(ctx, store.Canonical, store.Scope{})
	if err != nil {
		return err
	}
	candidates, err := filter.SelectCandidates(rows, cfg)
	if err != nil {
		return fmt.Errorf("failed to select candidates: %w", err)
	}
	res.Candidates = len(candidates.Proteins)
	logger.Debug("threshold filter applied",
		"proteins", len(candidates.Proteins),
		"peptides", len(candidates.Peptides),
		"psms", len(candidates.PSMs))

	if err := tx.BulkCreateFilteredSet(ctx, store.Canonical, store.Staged, candidates); err != nil {
		return err
	}

	pairs, err := tx.QueryInstances(ctx, store.Staged)
	if err != nil {
		return err
	}
	if err := tx.PersistAuxiliaryTable(ctx, store.ProteinGroups(filter.ProteinGroupKeys(pairs))); err != nil {
		return err
	}

	psmRows, err := tx.QueryPSMEvidence(ctx, store.Staged, store.Scope{})
	if err != nil {
		return err
	}
	parsimony, err := filter.CalculateAdditionalPeptides(ctx, candidates.Proteins, psmRows, p.threads)
	if err != nil {
		return fmt.Errorf("failed to calculate additional peptides: %w", err)
	}
	res.ExplainedPSMs = parsimony.Explained
	if err := tx.PersistAuxiliaryTable(ctx, store.AdditionalMatches(parsimony.Additional)); err != nil {
		return err
	}

	res.Dropped = parsimony.Dropped(cfg.MinimumAdditionalPeptidesPerProtein)
	if res.Cascade, err = tx.DeleteProteins(ctx, store.Staged, res.Dropped); err != nil {
		return err
	}
	res.Retained = res.Candidates - len(res.Dropped)
	logger.Debug("parsimony applied", "explained_psms", res.ExplainedPSMs, "removed", res.Cascade.String())

	clusterRows, err := tx.QueryPSMEvidence(ctx, store.Staged, store.Scope{})
	if err != nil {
		return err
	}
	clusters, err := filter.CalculateClusters(ctx, clusterRows, p.threads)
	if err != nil {
		return fmt.Errorf("failed to calculate clusters: %w", err)
	}
	res.Clusters = clusters.Count
	if err := tx.PersistAuxiliaryTable(ctx, store.ProteinClusters(clusters.ByProtein)); err != nil {
		return err
	}

	if err := tx.RenameView(ctx, store.Canonical, store.Unfiltered); err != nil {
		return err
	}
	if err := tx.RenameView(ctx, store.Staged, store.Canonical); err != nil {
		return err
	}

	res.FilteredAt = p.now()
	return tx.PersistAuxiliaryTable(ctx, store.Criteria(cfg.Criteria(res.RunID, res.FilteredAt)))
}

// restoreBaseline makes the unfiltered baseline canonical again, discarding
// the previous filtered view.
func restoreBaseline(ctx context.Context, tx store.Tx) error {
	exists, err := tx.ViewExists(ctx, store.Unfiltered)
	if err != nil || !exists {
		return err
	}
	if err := tx.DropView(ctx, store.Canonical); err != nil {
		return err
	}
	return tx.RenameView(ctx, store.Unfiltered, store.Canonical)
}

// Reset discards the filtered view and auxiliary tables, restoring the
// baseline as canonical. It is a no-op on an unfiltered store.
func (p *Publisher) Reset(ctx context.Context) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.DropView(ctx, store.Staged); err != nil {
		return err
	}
	if err := restoreBaseline(ctx, tx); err != nil {
		return err
	}
	for _, name := range store.AuxiliaryTables {
		if err := tx.DropAuxiliaryTable(ctx, name); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.logger.Info("filter reset", "store", p.store.Path())
	return nil
}
