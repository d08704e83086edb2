package occupancy

// ApplyHeuristics runs the domain rule chain over one room's scored table:
// night suppression, isolated-spike removal, CO2 overrides, then one score
// reconciliation pass. Rules use shift-by-one neighbor lookups over rows
// ordered by timestamp; the rows before the first and after the last slot
// count as not in use. Tables without model output (nil labels) pass
// through untouched.
func ApplyHeuristics(t ScoredTable, cfg HeuristicsConfig) ScoredTable {
	if t.Empty() {
		return t
	}
	t.SortByTime()

	suppressNight(t.Rows, cfg)
	removeIsolatedSpikes(t.Rows)
	overrideByCO2(t.Rows, cfg)
	reconcileScores(t.Rows)
	return t
}

// suppressNight zeroes in-use labels inside the configured night hours.
// With NightScoreGate set, only rows scoring at or below the gate are
// suppressed (the older deployment variant); unset suppresses
// unconditionally.
func suppressNight(rows []ScoredSlot, cfg HeuristicsConfig) {
	for i := range rows {
		if rows[i].InUse == nil || !cfg.Night.Contains(rows[i].Timestamp.Hour()) {
			continue
		}
		if cfg.NightScoreGate != nil {
			if rows[i].AnomalyScore == nil || *rows[i].AnomalyScore > *cfg.NightScoreGate {
				continue
			}
		}
		setInUse(&rows[i], 0)
	}
}

// removeIsolatedSpikes zeroes labels whose both immediate neighbors are
// not in use. Single-slot occupancy events are not physically plausible.
func removeIsolatedSpikes(rows []ScoredSlot) {
	prev := make([]int, len(rows))
	next := make([]int, len(rows))
	for i := range rows {
		if i > 0 {
			prev[i] = labelOf(rows[i-1])
		}
		if i < len(rows)-1 {
			next[i] = labelOf(rows[i+1])
		}
	}
	for i := range rows {
		if rows[i].InUse != nil && *rows[i].InUse == 1 && prev[i] == 0 && next[i] == 0 {
			setInUse(&rows[i], 0)
		}
	}
}

// overrideByCO2 applies the physical-plausibility overrides: a room at or
// below baseline CO2 cannot be occupied, and a room with elevated or
// sharply rising CO2 cannot be empty.
func overrideByCO2(rows []ScoredSlot, cfg HeuristicsConfig) {
	for i := range rows {
		if rows[i].InUse == nil {
			continue
		}
		if rows[i].CO2 <= cfg.LowCO2 {
			setInUse(&rows[i], 0)
			continue
		}
		rising := rows[i].CO2Acceleration > cfg.RisingAccel && rows[i].CO2 > cfg.MidCO2
		if rising || rows[i].CO2 > cfg.HighCO2 {
			setInUse(&rows[i], 1)
		}
	}
}

// reconcileScores flips anomaly scores that disagree with their final
// label (label 1 with score below 0.5, or label 0 with score above 0.5),
// keeping score and label mutually consistent after the overrides.
func reconcileScores(rows []ScoredSlot) {
	for i := range rows {
		if rows[i].InUse == nil || rows[i].AnomalyScore == nil {
			continue
		}
		label, score := *rows[i].InUse, *rows[i].AnomalyScore
		if (label == 1 && score < 0.5) || (label == 0 && score > 0.5) {
			flipped := 1 - score
			rows[i].AnomalyScore = &flipped
		}
	}
}

// labelOf reads a row's label treating missing output as not in use.
func labelOf(row ScoredSlot) int {
	if row.InUse == nil {
		return 0
	}
	return *row.InUse
}

func setInUse(row *ScoredSlot, label int) {
	v := label
	row.InUse = &v
}
