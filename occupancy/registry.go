package occupancy

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Registry owns the per-room models for one training generation. A
// registry is built by Train and served read-only afterwards; serving
// processes swap whole registries through a Holder rather than mutating a
// live one.
type Registry struct {
	cfg *Config

	mu     sync.RWMutex
	models map[string]*Model
}

// RunReport is the outcome of one train or predict batch. Failed rooms
// are isolated: one room's error never aborts the rest of the batch.
type RunReport struct {
	Scored map[string]ScoredTable
	Failed map[string]error
}

// NewRegistry creates an empty registry using the given configuration.
func NewRegistry(cfg *Config) *Registry {
	return &Registry{cfg: cfg, models: make(map[string]*Model)}
}

// Len returns the number of trained models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Rooms lists the trained room keys in sorted order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.models))
	for room := range r.models {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Lookup returns the trained model for a room, if any.
func (r *Registry) Lookup(room string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[room]
	return m, ok
}

// Train fits a fresh model per room and immediately scores the training
// data with it, so training always yields an initial scored artifact.
// Rooms run concurrently on a bounded worker pool; rooms left empty by
// feature engineering are skipped, and per-room failures (including
// panics) are recorded in the report and logged. The returned error is
// non-nil only when ctx is cancelled.
func (r *Registry) Train(ctx context.Context, rooms map[string][]Timeslot) (*RunReport, error) {
	return r.runBatch(ctx, rooms, r.trainRoom)
}

// Predict scores rooms against the trained models. A room without a model
// yields a row-count-matched table of null scores and labels plus a logged
// warning naming its same-school siblings; the batch continues. Heuristic
// post-processing is applied to every scored table before return.
func (r *Registry) Predict(ctx context.Context, rooms map[string][]Timeslot) (*RunReport, error) {
	return r.runBatch(ctx, rooms, r.predictRoom)
}

func (r *Registry) runBatch(
	ctx context.Context,
	rooms map[string][]Timeslot,
	scoreRoom func(room string, rows []Timeslot) (ScoredTable, bool, error),
) (*RunReport, error) {
	report := &RunReport{
		Scored: make(map[string]ScoredTable),
		Failed: make(map[string]error),
	}

	keys := make([]string, 0, len(rooms))
	for room := range rooms {
		keys = append(keys, room)
	}
	sort.Strings(keys)

	workers := r.cfg.Workers
	if workers > len(keys) {
		workers = len(keys)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	var reportMu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for room := range jobs {
				scored, ok, err := r.scoreRoomSafe(room, rooms[room], scoreRoom)
				reportMu.Lock()
				if err != nil {
					log.Printf("[registry] room %s failed: %v", room, err)
					report.Failed[room] = err
				} else if ok {
					report.Scored[room] = scored
				}
				reportMu.Unlock()
			}
		}()
	}

	var cancelled error
feed:
	for _, room := range keys {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- room:
		}
	}
	close(jobs)
	wg.Wait()

	for room, scored := range report.Scored {
		report.Scored[room] = ApplyHeuristics(scored, r.cfg.Heuristics)
	}

	if cancelled != nil {
		return report, fmt.Errorf("batch cancelled: %w", cancelled)
	}
	return report, nil
}

// scoreRoomSafe isolates one room's work, converting panics into recorded
// errors so the remaining rooms still complete.
func (r *Registry) scoreRoomSafe(
	room string,
	rows []Timeslot,
	scoreRoom func(string, []Timeslot) (ScoredTable, bool, error),
) (scored ScoredTable, ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			scored, ok = ScoredTable{}, false
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return scoreRoom(room, rows)
}

// trainRoom runs the full per-room training path: feature engineering,
// usage prior, fresh model fit, registry insert, then scoring of the
// training data. The boolean is false for rooms skipped as empty.
func (r *Registry) trainRoom(room string, rows []Timeslot) (ScoredTable, bool, error) {
	features, err := Featurize(rows, r.cfg.Features)
	if err != nil {
		return ScoredTable{}, false, fmt.Errorf("featurize: %w", err)
	}
	if features.Empty() {
		log.Printf("[registry] room %s empty after feature engineering, skipping", room)
		return ScoredTable{}, false, nil
	}

	usage := EstimateUsage(rows, r.cfg.Usage)
	setUsageColumn(features, usage)

	model := NewModel(r.cfg.Model, r.cfg.Features.Columns, usage)
	if err := model.Fit(features); err != nil {
		return ScoredTable{}, false, fmt.Errorf("fit: %w", err)
	}

	r.mu.Lock()
	r.models[room] = model
	r.mu.Unlock()

	scored, err := scoreWith(model, features)
	if err != nil {
		return ScoredTable{}, false, fmt.Errorf("score: %w", err)
	}
	return scored, true, nil
}

// predictRoom scores one room against its stored model, or emits nulls
// when no model exists.
func (r *Registry) predictRoom(room string, rows []Timeslot) (ScoredTable, bool, error) {
	features, err := Featurize(rows, r.cfg.Features)
	if err != nil {
		return ScoredTable{}, false, fmt.Errorf("featurize: %w", err)
	}
	if features.Empty() {
		log.Printf("[registry] room %s empty after feature engineering, skipping", room)
		return ScoredTable{}, false, nil
	}

	setUsageColumn(features, EstimateUsage(rows, r.cfg.Usage))

	model, found := r.Lookup(room)
	if !found {
		r.warnMissingModel(room)
		return nullScored(features), true, nil
	}

	scored, err := scoreWith(model, features)
	if err != nil {
		return ScoredTable{}, false, fmt.Errorf("score: %w", err)
	}
	return scored, true, nil
}

// warnMissingModel logs the missing room together with the registry's
// rooms from the same school, a diagnostic aid for naming mismatches
// between training and prediction exports.
func (r *Registry) warnMissingModel(room string) {
	school := SchoolOf(room)
	var siblings []string
	for _, key := range r.Rooms() {
		if SchoolOf(key) == school {
			siblings = append(siblings, key)
		}
	}
	log.Printf("[registry] no model for %s (%s); returning null values. Models for %s: %v",
		room, school, school, siblings)
}

// scoreWith builds a scored table from a room's features and model output.
func scoreWith(model *Model, features FeatureTable) (ScoredTable, error) {
	scores, err := model.Score(features)
	if err != nil {
		return ScoredTable{}, err
	}
	preds, err := model.Predict(features)
	if err != nil {
		return ScoredTable{}, err
	}

	t := ScoredTable{Rows: make([]ScoredSlot, features.Len())}
	for i, f := range features.Rows {
		score, pred := scores[i], preds[i]
		t.Rows[i] = ScoredSlot{
			ID:              f.ID,
			Kommune:         f.Kommune,
			Skole:           f.Skole,
			Date:            f.Date,
			Time:            f.Time,
			Timestamp:       f.Timestamp,
			CO2:             f.CO2,
			CO2Acceleration: f.CO2Acceleration,
			AnomalyScore:    &score,
			InUse:           &pred,
		}
	}
	return t, nil
}

// nullScored mirrors a feature table into a scored table with null scores
// and labels, preserving row count and keys.
func nullScored(features FeatureTable) ScoredTable {
	t := ScoredTable{Rows: make([]ScoredSlot, features.Len())}
	for i, f := range features.Rows {
		t.Rows[i] = ScoredSlot{
			ID:              f.ID,
			Kommune:         f.Kommune,
			Skole:           f.Skole,
			Date:            f.Date,
			Time:            f.Time,
			Timestamp:       f.Timestamp,
			CO2:             f.CO2,
			CO2Acceleration: f.CO2Acceleration,
		}
	}
	return t
}

func setUsageColumn(features FeatureTable, usage float64) {
	for i := range features.Rows {
		features.Rows[i].Usage = usage
	}
}

// Holder is the atomically swappable "current registry" reference. Readers
// always observe either the previous fully trained registry or the new
// one, never a partially built one.
type Holder struct {
	mu      sync.RWMutex
	current *Registry
}

// NewHolder returns a holder with no current registry.
func NewHolder() *Holder { return &Holder{} }

// Swap installs a new registry as current.
func (h *Holder) Swap(r *Registry) {
	h.mu.Lock()
	h.current = r
	h.mu.Unlock()
}

// Current returns the serving registry, or nil before the first training
// run completes.
func (h *Holder) Current() *Registry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}
