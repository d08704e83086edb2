package occupancy

import (
	"testing"
	"time"
)

// scoredRows builds a scored table at the given starting hour with one row
// per label. CO2 defaults to 500: above the low-CO2 override, below the
// mid and high thresholds, so only the rule under test fires.
func scoredRows(startHour int, labels []int, scores []float64) ScoredTable {
	base := time.Date(2024, 3, 4, startHour, 0, 0, 0, time.UTC)
	rows := make([]ScoredSlot, len(labels))
	for i := range labels {
		l := labels[i]
		s := scores[i]
		rows[i] = ScoredSlot{
			ID:           "R1",
			Skole:        "Nord",
			Timestamp:    base.Add(time.Duration(i) * SlotInterval),
			CO2:          500,
			AnomalyScore: &s,
			InUse:        &l,
		}
	}
	return ScoredTable{Rows: rows}
}

func labelsOf(t ScoredTable) []int {
	out := make([]int, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = labelOf(r)
	}
	return out
}

func TestIsolatedSpikeRemoved(t *testing.T) {
	table := scoredRows(12, []int{0, 0, 1, 0, 0}, []float64{.2, .2, .8, .2, .2})
	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	for i, l := range got {
		if l != 0 {
			t.Errorf("Row %d: isolated spike should be removed, got %d", i, l)
		}
	}
}

func TestSpikeAtBoundaryRemoved(t *testing.T) {
	// Neighbors outside the table count as not in use.
	table := scoredRows(12, []int{1, 0, 0}, []float64{.8, .2, .2})
	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	if got[0] != 0 {
		t.Errorf("Spike at the first slot should be removed, got %d", got[0])
	}
}

func TestSustainedRunKept(t *testing.T) {
	table := scoredRows(12, []int{0, 1, 1, 1, 0}, []float64{.2, .8, .8, .8, .2})
	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	want := []int{0, 1, 1, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Row %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNightSuppression(t *testing.T) {
	table := scoredRows(2, []int{1, 1, 1}, []float64{.9, .9, .9})
	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	for i, l := range got {
		if l != 0 {
			t.Errorf("Row %d: night slot should be suppressed, got %d", i, l)
		}
	}
}

func TestNightScoreGate(t *testing.T) {
	cfg := DefaultConfig().Heuristics
	gate := 0.5
	cfg.NightScoreGate = &gate

	table := scoredRows(2, []int{1, 1, 1}, []float64{.4, .9, .9})
	got := labelsOf(ApplyHeuristics(table, cfg))
	if got[0] != 0 {
		t.Errorf("Low-score night slot should be suppressed under the gate")
	}
	if got[1] != 1 || got[2] != 1 {
		t.Errorf("High-score night slots should survive the gated variant: %v", got)
	}
}

func TestLowCO2Override(t *testing.T) {
	table := scoredRows(12, []int{1, 1, 1}, []float64{.8, .8, .8})
	table.Rows[1].CO2 = 380

	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	if got[1] != 0 {
		t.Errorf("Baseline CO2 row should be forced to not in use")
	}
	if got[0] != 1 || got[2] != 1 {
		t.Errorf("Neighboring rows should be untouched: %v", got)
	}
}

func TestHighCO2Override(t *testing.T) {
	table := scoredRows(12, []int{0, 0, 0}, []float64{.2, .2, .2})
	table.Rows[1].CO2 = 1500

	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	if got[1] != 1 {
		t.Errorf("CO2 above the high threshold should force in use")
	}
}

func TestRisingCO2Override(t *testing.T) {
	table := scoredRows(12, []int{0, 0, 0}, []float64{.2, .2, .2})
	table.Rows[1].CO2 = 700
	table.Rows[1].CO2Acceleration = 3.5

	got := labelsOf(ApplyHeuristics(table, DefaultConfig().Heuristics))
	if got[1] != 1 {
		t.Errorf("Elevated and rising CO2 should force in use")
	}
}

func TestRisingRuleNeedsBothConditions(t *testing.T) {
	cfg := DefaultConfig().Heuristics

	// Rising but not elevated.
	table := scoredRows(12, []int{0}, []float64{.2})
	table.Rows[0].CO2 = 550
	table.Rows[0].CO2Acceleration = 3.5
	if got := labelsOf(ApplyHeuristics(table, cfg)); got[0] != 0 {
		t.Errorf("Rising CO2 below the mid threshold should not force in use")
	}

	// Elevated but flat.
	table = scoredRows(12, []int{0}, []float64{.2})
	table.Rows[0].CO2 = 700
	if got := labelsOf(ApplyHeuristics(table, cfg)); got[0] != 0 {
		t.Errorf("Flat CO2 below the high threshold should not force in use")
	}
}

func TestScoreReconciliation(t *testing.T) {
	// Night suppression flips the label to 0 while the score says 0.9; the
	// reconciliation pass must flip the score to 0.1.
	table := scoredRows(2, []int{1}, []float64{.9})
	out := ApplyHeuristics(table, DefaultConfig().Heuristics)

	if *out.Rows[0].InUse != 0 {
		t.Fatalf("Expected suppressed label")
	}
	if s := *out.Rows[0].AnomalyScore; s < 0.099 || s > 0.101 {
		t.Errorf("Expected reconciled score near 0.1, got %v", s)
	}
}

func TestHeuristicsConsistencyInvariant(t *testing.T) {
	labels := []int{1, 0, 1, 1, 0, 1, 0, 0, 1, 1}
	scores := []float64{.9, .1, .3, .8, .6, .9, .2, .4, .7, .9}
	table := scoredRows(10, labels, scores)
	table.Rows[3].CO2 = 1500
	table.Rows[6].CO2 = 390

	out := ApplyHeuristics(table, DefaultConfig().Heuristics)
	for i, row := range out.Rows {
		label, score := *row.InUse, *row.AnomalyScore
		if label == 1 && score < 0.5 {
			t.Errorf("Row %d: label 1 with score %v", i, score)
		}
		if label == 0 && score > 0.5 {
			t.Errorf("Row %d: label 0 with score %v", i, score)
		}
	}
}

func TestHeuristicsNilRowsPassThrough(t *testing.T) {
	rows := []ScoredSlot{{
		Timestamp: time.Date(2024, 3, 4, 2, 0, 0, 0, time.UTC),
		CO2:       1500,
	}}
	out := ApplyHeuristics(ScoredTable{Rows: rows}, DefaultConfig().Heuristics)
	if out.Rows[0].InUse != nil || out.Rows[0].AnomalyScore != nil {
		t.Errorf("Rows without model output must pass through untouched")
	}
}

func TestHeuristicsSortsByTime(t *testing.T) {
	table := scoredRows(12, []int{0, 1, 0}, []float64{.2, .8, .2})
	// Shuffle: the spike's neighbors are only adjacent after sorting.
	table.Rows[0], table.Rows[2] = table.Rows[2], table.Rows[0]

	out := ApplyHeuristics(table, DefaultConfig().Heuristics)
	for i := 1; i < len(out.Rows); i++ {
		if out.Rows[i].Timestamp.Before(out.Rows[i-1].Timestamp) {
			t.Fatalf("Output not sorted by timestamp")
		}
	}
	for i, row := range out.Rows {
		if *row.InUse != 0 {
			t.Errorf("Row %d: isolated spike should be removed after sorting", i)
		}
	}
}
