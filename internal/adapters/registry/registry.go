// Package registry stores model bundles under immutable versions and moves
// the "current" alias between them.
//
// Layout in the object store:
//
//	models/<version>/model.json
//	models/<version>/transformer.json
//	models/<version>/manifest.json
//	models/current     alias: JSON of the current RegistryEntry
//	models/history.json promotion and rollback log
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/domain/evaluation"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/metric"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
	"github.com/okian/autotrain/pkg/metrics"
)

const (
	aliasKey   = "models/current"
	historyKey = "models/history.json"

	// ReasonRejected is reported when the verdict did not accept the bundle.
	ReasonRejected = "rejected"
)

// ConflictPolicy decides what happens when the alias moved between
// evaluation and promotion.
type ConflictPolicy string

// Conflict policies.
const (
	// PolicyReject fails the late promotion with failure.ErrRegistryConflict.
	PolicyReject ConflictPolicy = "reject"
	// PolicyRecheck re-applies the decision against the new current entry's
	// recorded score and promotes only if the candidate still qualifies.
	PolicyRecheck ConflictPolicy = "recheck"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReject, PolicyRecheck:
		return p, nil
	case "":
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// PromotionResult is the externally observable outcome of Promote.
type PromotionResult struct {
	Promoted bool                 `json:"promoted"`
	// Entry is the new current entry, or the untouched current entry when
	// nothing was promoted. It is zero when no model has ever been promoted.
	Entry    model.RegistryEntry  `json:"entry"`
	Previous *model.RegistryEntry `json:"previous,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// HistoryEvent is one alias move.
type HistoryEvent struct {
	Action string              `json:"action"` // promote or rollback
	Entry  model.RegistryEntry `json:"entry"`
	From   string              `json:"from,omitempty"`
	At     time.Time           `json:"at"`
}

// Registry is the model registry. It is safe for concurrent use; promotions
// within a process are serialized by a mutex and across processes by a
// compare-and-swap on the alias when the store supports it.
type Registry struct {
	store      objectstore.Store
	policy     ConflictPolicy
	now        func() time.Time
	newVersion func(time.Time) string
	log        logger.Logger

	mu sync.Mutex
}

var _ evaluation.Baseline = (*Registry)(nil)

// New creates a registry over store.
func New(store objectstore.Store, opts ...Option) *Registry {
	r := &Registry{
		store:      store,
		policy:     PolicyReject,
		now:        time.Now,
		newVersion: versionID,
		log:        logger.Get().Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func versionID(t time.Time) string {
	return "v" + t.UTC().Format("20060102T150405.000Z") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Current returns the current entry or failure.ErrNoModelAvailable.
func (r *Registry) Current(ctx context.Context) (model.RegistryEntry, error) {
	entry, _, err := r.readAlias(ctx)
	return entry, err
}

func (r *Registry) readAlias(ctx context.Context) (model.RegistryEntry, []byte, error) {
	raw, err := r.store.Get(ctx, aliasKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return model.RegistryEntry{}, nil, fmt.Errorf("registry: %w", failure.ErrNoModelAvailable)
	}
	if err != nil {
		return model.RegistryEntry{}, nil, fmt.Errorf("read alias: %w", err)
	}
	var entry model.RegistryEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Version == "" {
		return model.RegistryEntry{}, nil, fmt.Errorf("%w: alias %s is unreadable", ErrCorruptBundle, aliasKey)
	}
	return entry, raw, nil
}

// Promote makes bundle the current model if verdict accepted it. A rejected
// verdict writes nothing and returns the current entry unchanged.
func (r *Registry) Promote(ctx context.Context, bundle model.Bundle, verdict model.EvaluationVerdict) (PromotionResult, error) {
	if !verdict.Accepted {
		res := PromotionResult{Reason: ReasonRejected}
		cur, err := r.Current(ctx)
		switch {
		case err == nil:
			res.Entry = cur
		case !errors.Is(err, failure.ErrNoModelAvailable):
			return PromotionResult{}, err
		}
		metrics.RecordPromotion("rejected")
		r.log.Info(ctx, "promotion skipped",
			logger.String("run_id", bundle.RunID),
			logger.Float64("new_score", verdict.NewScore),
			logger.Float64("delta", verdict.Delta),
		)
		return res, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, oldAlias, err := r.readAlias(ctx)
	var previous *model.RegistryEntry
	switch {
	case err == nil:
		previous = &cur
	case errors.Is(err, failure.ErrNoModelAvailable):
	default:
		return PromotionResult{}, err
	}

	if err := r.checkBaseline(previous, verdict); err != nil {
		metrics.RecordPromotion("conflict")
		r.log.Warn(ctx, "promotion lost a race", logger.String("run_id", bundle.RunID), logger.Error(err))
		return PromotionResult{}, err
	}

	now := r.now().UTC()
	entry := model.RegistryEntry{
		Version:    r.newVersion(now),
		PromotedAt: now,
		Metric:     verdict.Metric,
		Score:      verdict.NewScore,
		RunID:      bundle.RunID,
		Kind:       bundle.Model.Kind,
	}
	if err := r.writeVersion(ctx, entry, bundle, verdict); err != nil {
		return PromotionResult{}, err
	}

	// The alias only moves once every version file is durable.
	if err := ctx.Err(); err != nil {
		return PromotionResult{}, err
	}
	if err := r.swapAlias(ctx, oldAlias, entry); err != nil {
		metrics.RecordPromotion("conflict")
		return PromotionResult{}, err
	}
	from := ""
	if previous != nil {
		from = previous.Version
	}
	r.appendHistory(ctx, HistoryEvent{Action: "promote", Entry: entry, From: from, At: now})

	metrics.RecordPromotion("promoted")
	metrics.SetModelScore(entry.Metric, entry.Score)
	r.log.Info(ctx, "model promoted",
		logger.String("version", entry.Version),
		logger.String("previous", from),
		logger.String("run_id", entry.RunID),
		logger.Float64("score", entry.Score),
	)
	return PromotionResult{Promoted: true, Entry: entry, Previous: previous}, nil
}

// checkBaseline compares the alias the verdict was computed against with the
// alias now in place.
func (r *Registry) checkBaseline(current *model.RegistryEntry, v model.EvaluationVerdict) error {
	now := ""
	if current != nil {
		now = current.Version
	}
	if now == v.BaselineVersion {
		return nil
	}
	if r.policy != PolicyRecheck || current == nil {
		return fmt.Errorf("%w: evaluated against %q but current is %q", failure.ErrRegistryConflict, v.BaselineVersion, now)
	}

	m, err := metric.Lookup(v.Metric)
	if err != nil {
		return fmt.Errorf("%w: %w", failure.ErrRegistryConflict, err)
	}
	if current.Metric != v.Metric {
		return fmt.Errorf("%w: current %s is scored by %s, candidate by %s", failure.ErrRegistryConflict, current.Version, current.Metric, v.Metric)
	}
	if _, _, ok := evaluation.Decide(m, v.NewScore, current.Score, v.MinDelta); !ok {
		return fmt.Errorf("%w: %s=%v no longer beats current %s (%v) by %v", failure.ErrRegistryConflict, v.Metric, v.NewScore, current.Version, current.Score, v.MinDelta)
	}
	return nil
}

func (r *Registry) writeVersion(ctx context.Context, entry model.RegistryEntry, b model.Bundle, v model.EvaluationVerdict) error {
	if b.Model.Estimator == nil || b.Transformer.Transformer == nil {
		return fmt.Errorf("%w: bundle is missing its model or transformer", ErrCorruptBundle)
	}
	modelBytes, err := encodeModel(b.Model)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	trBytes, err := json.Marshal(b.Transformer.Transformer)
	if err != nil {
		return fmt.Errorf("encode transformer: %w", err)
	}

	prefix := "models/" + entry.Version + "/"
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.store.Put(gctx, prefix+"model.json", modelBytes) })
	g.Go(func() error { return r.store.Put(gctx, prefix+"transformer.json", trBytes) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("write bundle %s: %w", entry.Version, err)
	}

	man, err := json.MarshalIndent(manifest{
		Entry:        entry,
		FeatureNames: b.Transformer.FeatureNames,
		Files:        map[string]string{"model": "model.json", "transformer": "transformer.json"},
		Verdict:      v,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := r.store.Put(ctx, prefix+"manifest.json", man); err != nil {
		return fmt.Errorf("write manifest %s: %w", entry.Version, err)
	}
	return nil
}

func (r *Registry) swapAlias(ctx context.Context, old []byte, entry model.RegistryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode alias: %w", err)
	}
	sw, ok := r.store.(objectstore.Swapper)
	if !ok {
		return r.store.Put(ctx, aliasKey, raw)
	}
	swapped, err := sw.CompareAndSwap(ctx, aliasKey, old, raw)
	if err != nil {
		return fmt.Errorf("swap alias: %w", err)
	}
	if !swapped {
		return fmt.Errorf("%w: alias changed by another writer", failure.ErrRegistryConflict)
	}
	return nil
}

// Load reads and decodes the bundle stored under version.
func (r *Registry) Load(ctx context.Context, version string) (model.Bundle, error) {
	if version == "" || strings.Contains(version, "/") {
		return model.Bundle{}, fmt.Errorf("%w: %q", ErrVersionNotFound, version)
	}
	prefix := "models/" + version + "/"
	manRaw, err := r.store.Get(ctx, prefix+"manifest.json")
	if errors.Is(err, objectstore.ErrNotFound) {
		return model.Bundle{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if err != nil {
		return model.Bundle{}, err
	}
	var man manifest
	if err := json.Unmarshal(manRaw, &man); err != nil {
		return model.Bundle{}, fmt.Errorf("%w: manifest %s: %w", ErrCorruptBundle, version, err)
	}

	modelRaw, err := r.store.Get(ctx, prefix+"model.json")
	if err != nil {
		return model.Bundle{}, fmt.Errorf("%w: %s: %w", ErrCorruptBundle, version, err)
	}
	trRaw, err := r.store.Get(ctx, prefix+"transformer.json")
	if err != nil {
		return model.Bundle{}, fmt.Errorf("%w: %s: %w", ErrCorruptBundle, version, err)
	}
	m, err := decodeModel(modelRaw)
	if err != nil {
		return model.Bundle{}, err
	}
	tr, err := decodeTransformer(trRaw)
	if err != nil {
		return model.Bundle{}, err
	}
	if strings.Join(tr.FeatureNames, "\x00") != strings.Join(m.FeatureNames, "\x00") {
		return model.Bundle{}, fmt.Errorf("%w: %s: model and transformer features differ", ErrCorruptBundle, version)
	}
	return model.Bundle{Model: m, Transformer: tr, RunID: man.Entry.RunID}, nil
}

// Manifest returns the registry entry recorded for version.
func (r *Registry) Manifest(ctx context.Context, version string) (model.RegistryEntry, error) {
	raw, err := r.store.Get(ctx, "models/"+version+"/manifest.json")
	if errors.Is(err, objectstore.ErrNotFound) || errors.Is(err, objectstore.ErrInvalidKey) {
		return model.RegistryEntry{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if err != nil {
		return model.RegistryEntry{}, err
	}
	var man manifest
	if err := json.Unmarshal(raw, &man); err != nil {
		return model.RegistryEntry{}, fmt.Errorf("%w: manifest %s: %w", ErrCorruptBundle, version, err)
	}
	return man.Entry, nil
}

// Rollback repoints the alias at a retained version. It is an explicit
// operator action and never happens automatically.
func (r *Registry) Rollback(ctx context.Context, version string) (model.RegistryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.Manifest(ctx, version)
	if err != nil {
		return model.RegistryEntry{}, err
	}
	if _, err := r.Load(ctx, version); err != nil {
		return model.RegistryEntry{}, err
	}

	cur, oldAlias, err := r.readAlias(ctx)
	from := ""
	switch {
	case err == nil:
		if cur.Version == version {
			return cur, nil
		}
		from = cur.Version
	case errors.Is(err, failure.ErrNoModelAvailable):
	default:
		return model.RegistryEntry{}, err
	}

	now := r.now().UTC()
	target.PromotedAt = now
	if err := r.swapAlias(ctx, oldAlias, target); err != nil {
		return model.RegistryEntry{}, err
	}
	r.appendHistory(ctx, HistoryEvent{Action: "rollback", Entry: target, From: from, At: now})
	metrics.RecordPromotion("rollback")
	metrics.SetModelScore(target.Metric, target.Score)
	r.log.Warn(ctx, "alias rolled back", logger.String("version", version), logger.String("previous", from))
	return target, nil
}

// History returns every alias move, oldest first.
func (r *Registry) History(ctx context.Context) ([]HistoryEvent, error) {
	raw, err := r.store.Get(ctx, historyKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return []HistoryEvent{}, nil
	}
	if err != nil {
		return nil, err
	}
	var events []HistoryEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrCorruptBundle, err)
	}
	return events, nil
}

// Versions returns every promoted version, oldest first.
func (r *Registry) Versions(ctx context.Context) ([]model.RegistryEntry, error) {
	events, err := r.History(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.RegistryEntry
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Action != "promote" || seen[ev.Entry.Version] {
			continue
		}
		seen[ev.Entry.Version] = true
		out = append(out, ev.Entry)
	}
	return out, nil
}

// appendHistory is best effort: the alias is the source of truth and a
// failed log write must not undo a promotion. Callers hold r.mu.
func (r *Registry) appendHistory(ctx context.Context, ev HistoryEvent) {
	for attempt := 0; attempt < 3; attempt++ {
		old, err := r.store.Get(ctx, historyKey)
		if err != nil && !errors.Is(err, objectstore.ErrNotFound) {
			r.log.Error(ctx, "read history", logger.Error(err))
			return
		}
		var events []HistoryEvent
		if len(old) > 0 {
			if err := json.Unmarshal(old, &events); err != nil {
				r.log.Error(ctx, "history is unreadable, starting a new log", logger.Error(err))
				events = nil
			}
		}
		events = append(events, ev)
		raw, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			r.log.Error(ctx, "encode history", logger.Error(err))
			return
		}
		sw, ok := r.store.(objectstore.Swapper)
		if !ok {
			if err := r.store.Put(ctx, historyKey, raw); err != nil {
				r.log.Error(ctx, "write history", logger.Error(err))
			}
			return
		}
		swapped, err := sw.CompareAndSwap(ctx, historyKey, old, raw)
		if err != nil {
			r.log.Error(ctx, "write history", logger.Error(err))
			return
		}
		if swapped {
			return
		}
	}
	r.log.Warn(ctx, "history not updated after concurrent writers", logger.String("version", ev.Entry.Version))
}
