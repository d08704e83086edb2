package occupancy

import (
	"fmt"
	"sort"
	"time"
)

// gridRow is the working representation of one slot on the reconstructed
// 15-minute grid. co2 is the mutable primary signal; nil means missing.
type gridRow struct {
	ts      time.Time
	present bool
	slot    Timeslot
	co2     *float64
}

// Featurize transforms a room's raw timeslot rows into a dense,
// feature-complete table ready for modeling. Stages run in a fixed order:
// grid reconstruction, island interpolation, stagnation removal, range
// filtering, missing-value fill, day-completeness filtering, gaussian
// smoothing, kinematic derivation, night flagging, and projection.
//
// An empty input, or an input that is entirely filtered away, yields an
// empty table and no error; such rooms are skipped downstream.
func Featurize(rows []Timeslot, cfg FeatureConfig) (FeatureTable, error) {
	grid, err := reconstructGrid(rows)
	if err != nil {
		return FeatureTable{}, err
	}
	if len(grid) == 0 {
		return FeatureTable{}, nil
	}

	interpolateIslands(grid, cfg.InterpolationLimit)
	grid = dropStagnantRuns(grid, cfg.StagnationMinRun)
	grid = applyBounds(grid, cfg.Bounds)

	feats := fillMissing(grid, cfg)
	feats = filterSparseDays(feats, cfg.DayCompleteness)
	if len(feats) == 0 {
		return FeatureTable{}, nil
	}

	deriveKinematics(feats, cfg)

	for i := range feats {
		feats[i].IsNight = cfg.Night.Contains(feats[i].Timestamp.Hour())
	}

	return FeatureTable{Rows: feats}, nil
}

// reconstructGrid combines the DATE and TIME columns into timestamps,
// sorts, drops duplicate slots, and left-joins the data onto the complete
// 15-minute grid between the room's observed min and max timestamp.
// Missing rows become explicit null rows carrying the room's static keys.
func reconstructGrid(rows []Timeslot) ([]gridRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	type stamped struct {
		ts   time.Time
		slot Timeslot
	}
	parsed := make([]stamped, 0, len(rows))
	for _, row := range rows {
		ts, err := row.Timestamp()
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, stamped{ts: ts, slot: row})
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].ts.Before(parsed[j].ts) })

	byTime := make(map[time.Time]Timeslot, len(parsed))
	for _, p := range parsed {
		if _, dup := byTime[p.ts]; !dup {
			byTime[p.ts] = p.slot
		}
	}

	static := parsed[0].slot
	start, end := parsed[0].ts, parsed[len(parsed)-1].ts

	n := int(end.Sub(start)/SlotInterval) + 1
	if n < 1 {
		return nil, fmt.Errorf("inverted timestamp range %s..%s", start, end)
	}
	grid := make([]gridRow, 0, n)
	for ts := start; !ts.After(end); ts = ts.Add(SlotInterval) {
		if slot, ok := byTime[ts]; ok {
			grid = append(grid, gridRow{ts: ts, present: true, slot: slot, co2: slot.CO2})
			continue
		}
		grid = append(grid, gridRow{
			ts: ts,
			slot: Timeslot{
				ID:      static.ID,
				Kommune: static.Kommune,
				Skole:   static.Skole,
				Date:    ts.Format("2006-01-02"),
				Time:    ts.Format("15:04:05"),
			},
		})
	}
	return grid, nil
}

// dropStagnantRuns removes runs of minRun or more identical consecutive
// CO2 values, the signature of a stuck sensor. A run breaks on any value
// change; missing values never extend a run.
func dropStagnantRuns(grid []gridRow, minRun int) []gridRow {
	if minRun < 2 || len(grid) == 0 {
		return grid
	}

	kept := make([]gridRow, 0, len(grid))
	i := 0
	for i < len(grid) {
		j := i + 1
		if grid[i].co2 != nil {
			for j < len(grid) && grid[j].co2 != nil && *grid[j].co2 == *grid[i].co2 {
				j++
			}
		}
		if j-i < minRun {
			kept = append(kept, grid[i:j]...)
		}
		i = j
	}
	return kept
}

// applyBounds drops rows whose bounded columns fall outside their
// inclusive [lo, hi] ranges. A row with a missing value in a bounded
// column is dropped as well, mirroring the upstream filter.
func applyBounds(grid []gridRow, bounds map[string]Bounds) []gridRow {
	if len(bounds) == 0 {
		return grid
	}

	kept := grid[:0]
	for _, row := range grid {
		if inBounds(row, bounds) {
			kept = append(kept, row)
		}
	}
	return kept
}

func inBounds(row gridRow, bounds map[string]Bounds) bool {
	for col, b := range bounds {
		var v *float64
		switch col {
		case ColCO2:
			v = row.co2
		case ColTemp:
			v = row.slot.Temp
		case ColMotion:
			v = row.slot.Motion
		case ColIAQ:
			v = row.slot.IAQ
		}
		if v == nil || !b.Contains(*v) {
			return false
		}
	}
	return true
}

// fillMissing fills remaining nulls with fixed domain defaults, casts the
// booking flag to boolean, and projects the working rows onto the feature
// schema. Categorical display columns do not survive this projection.
func fillMissing(grid []gridRow, cfg FeatureConfig) []FeatureRow {
	feats := make([]FeatureRow, 0, len(grid))
	for _, row := range grid {
		f := FeatureRow{
			ID:        row.slot.ID,
			Kommune:   row.slot.Kommune,
			Skole:     row.slot.Skole,
			Date:      row.slot.Date,
			Time:      row.slot.Time,
			Timestamp: row.ts,
			Scheduled: row.slot.Scheduled,
			Booked:    row.slot.Booked != nil && *row.slot.Booked,
			CO2:       cfg.FillCO2,
			Temp:      cfg.FillTemp,
			Motion:    cfg.FillMotion,
			IAQ:       cfg.FillIAQ,
		}
		if row.co2 != nil {
			f.CO2 = *row.co2
		}
		if row.slot.Temp != nil {
			f.Temp = *row.slot.Temp
		}
		if row.slot.Motion != nil {
			f.Motion = *row.slot.Motion
		}
		if row.slot.IAQ != nil {
			f.IAQ = *row.slot.IAQ
		}
		feats = append(feats, f)
	}
	return feats
}

// filterSparseDays drops entire calendar days whose surviving row count is
// below minFraction of the expected 96 slots. Derivative features computed
// on sparse days are unreliable.
func filterSparseDays(feats []FeatureRow, minFraction float64) []FeatureRow {
	if minFraction <= 0 {
		return feats
	}

	perDay := make(map[string]int)
	for _, f := range feats {
		perDay[f.Date]++
	}

	minRows := minFraction * SlotsPerDay
	kept := feats[:0]
	for _, f := range feats {
		if float64(perDay[f.Date]) >= minRows {
			kept = append(kept, f)
		}
	}
	return kept
}

// deriveKinematics smooths the CO2 signal and computes rolling-window
// velocity, acceleration, and jerk per time-contiguous block. Window
// boundaries within each block yield zeros rather than missing values, so
// no NaN ever reaches the model.
func deriveKinematics(feats []FeatureRow, cfg FeatureConfig) {
	for _, blk := range contiguousBlocks(feats) {
		co2 := make([]float64, len(blk))
		for i, f := range blk {
			co2[i] = f.CO2
		}

		smoothed := gaussianSmooth1D(co2, cfg.SmoothingSigma)
		velocity := rollingGradientLast(smoothed, cfg.KinematicWindow)
		accel := rollingGradientLast(velocity, cfg.KinematicWindow)
		jerk := rollingGradientLast(accel, cfg.KinematicWindow)

		for i := range blk {
			blk[i].CO2Smoothed = smoothed[i]
			blk[i].CO2Velocity = velocity[i]
			blk[i].CO2Acceleration = accel[i]
			blk[i].CO2Jerk = jerk[i]
		}
	}
}

// contiguousBlocks splits rows into maximal runs with no timestamp gap
// exceeding the nominal interval. The sub-slices alias feats.
func contiguousBlocks(feats []FeatureRow) [][]FeatureRow {
	var blocks [][]FeatureRow
	start := 0
	for i := 1; i <= len(feats); i++ {
		if i == len(feats) || feats[i].Timestamp.Sub(feats[i-1].Timestamp) > SlotInterval {
			blocks = append(blocks, feats[start:i])
			start = i
		}
	}
	return blocks
}

// rollingGradientLast computes, for each index once a full window is
// available, the last element of the gradient over that window, which is
// the one-sided difference values[i]-values[i-1]. Positions before the
// first full window are zero.
func rollingGradientLast(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := window - 1; i < len(values); i++ {
		out[i] = values[i] - values[i-1]
	}
	return out
}
