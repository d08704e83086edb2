package occupancy

import "sort"

// mergeKey is the identifying column set for the left merge of scored
// output onto original rows.
type mergeKey struct {
	id      string
	date    string
	time    string
	kommune string
	skole   string
}

// CombineFrames merges original per-room tables with their (possibly
// partial) scored counterparts into one flat output table. Every original
// row appears exactly once, tagged with its room key; rows without a
// scored counterpart carry null ANOMALY_SCORE and IN_USE. Rooms are
// emitted in sorted key order so the output is deterministic.
func CombineFrames(original map[string][]Timeslot, scored map[string]ScoredTable) []CombinedRow {
	roomKeys := make([]string, 0, len(original))
	for key := range original {
		roomKeys = append(roomKeys, key)
	}
	sort.Strings(roomKeys)

	var combined []CombinedRow
	for _, room := range roomKeys {
		byKey := indexScored(scored[room])
		for _, slot := range original[room] {
			row := CombinedRow{Timeslot: slot, Room: room}
			if s, ok := byKey[mergeKey{
				id:      slot.ID,
				date:    slot.Date,
				time:    slot.Time,
				kommune: slot.Kommune,
				skole:   slot.Skole,
			}]; ok {
				row.AnomalyScore = s.AnomalyScore
				row.InUse = s.InUse
			}
			combined = append(combined, row)
		}
	}
	return combined
}

func indexScored(t ScoredTable) map[mergeKey]ScoredSlot {
	byKey := make(map[mergeKey]ScoredSlot, len(t.Rows))
	for _, s := range t.Rows {
		byKey[mergeKey{
			id:      s.ID,
			date:    s.Date,
			time:    s.Time,
			kommune: s.Kommune,
			skole:   s.Skole,
		}] = s
	}
	return byKey
}
