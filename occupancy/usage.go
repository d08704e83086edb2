package occupancy

// UsageAuto is the sentinel returned when usage cannot be estimated
// (no timeslots). The model maps it to its configured default
// contamination instead of dividing by zero.
const UsageAuto = -1.0

// EstimateUsage computes a heuristic prior for the fraction of time a room
// is occupied, from the union of scheduled and booked timeslots. A missing
// booking flag counts as not booked. The raw ratio is amplified by
// cfg.Coeff (sparse booking data understates real usage) and clamped to
// [cfg.Min, cfg.Max]. The result parameterizes the anomaly model's
// expected outlier fraction.
func EstimateUsage(rows []Timeslot, cfg UsageConfig) float64 {
	if len(rows) == 0 {
		return UsageAuto
	}

	occupied := 0
	for _, row := range rows {
		if row.Scheduled || (row.Booked != nil && *row.Booked) {
			occupied++
		}
	}

	usage := cfg.Coeff * float64(occupied) / float64(len(rows))
	if usage < cfg.Min {
		return cfg.Min
	}
	if usage > cfg.Max {
		return cfg.Max
	}
	return usage
}
