package occupancy

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SlotInterval is the nominal spacing between consecutive timeslots.
const SlotInterval = 15 * time.Minute

// SlotsPerDay is the expected number of timeslots in a full calendar day.
const SlotsPerDay = 96

// Timeslot is one raw observation: one room, one 15-minute interval.
// Sensor columns are nullable; a nil pointer means the sensor reported
// nothing for that interval. Field names follow the upstream export schema.
type Timeslot struct {
	ID        string   `json:"ID"`
	Kommune   string   `json:"KOMMUNE"`
	Skole     string   `json:"SKOLE"`
	Date      string   `json:"DATE"` // YYYY-MM-DD
	Time      string   `json:"TIME"` // HH:MM:SS
	Scheduled bool     `json:"SKEMALAGT"`
	Booked    *bool    `json:"BOOKET"`
	CO2       *float64 `json:"CO2"`
	Temp      *float64 `json:"TEMP"`
	Motion    *float64 `json:"MOTION"`
	IAQ       *float64 `json:"IAQ"`
}

// RoomKey returns the composite room identifier used throughout the
// pipeline: "{SKOLE}_{ID}".
func (t Timeslot) RoomKey() string {
	return t.Skole + "_" + t.ID
}

// SchoolOf extracts the school prefix from a composite room key.
// Used for sibling diagnostics when a model is missing.
func SchoolOf(roomKey string) string {
	if i := strings.Index(roomKey, "_"); i >= 0 {
		return roomKey[:i]
	}
	return roomKey
}

// Timestamp combines the DATE and TIME columns into one time.Time.
func (t Timeslot) Timestamp() (time.Time, error) {
	ts, err := time.Parse("2006-01-02 15:04:05", t.Date+" "+t.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q %q: %w", t.Date, t.Time, err)
	}
	return ts, nil
}

// FeatureRow is one timeslot after feature engineering: dense, contiguous,
// and free of missing values. The kinematic columns are derivatives of the
// smoothed CO2 signal computed per time-contiguous block.
type FeatureRow struct {
	ID      string
	Kommune string
	Skole   string
	Date    string
	Time    string

	Timestamp time.Time

	Scheduled bool
	Booked    bool

	CO2    float64
	Temp   float64
	Motion float64
	IAQ    float64

	CO2Smoothed     float64
	CO2Velocity     float64
	CO2Acceleration float64
	CO2Jerk         float64

	IsNight bool

	// Usage is the room's occupancy prior, set by the registry before
	// fitting so the full feature vector is visible in one place.
	Usage float64
}

// Feature column names accepted by FeatureTable.Matrix.
const (
	ColCO2             = "CO2"
	ColTemp            = "TEMP"
	ColMotion          = "MOTION"
	ColIAQ             = "IAQ"
	ColCO2Smoothed     = "CO2_SMOOTHED"
	ColCO2Velocity     = "CO2_VELOCITY"
	ColCO2Acceleration = "CO2_ACCELERATION"
	ColCO2Jerk         = "CO2_JERK"
	ColIsNight         = "IS_NIGHT"
	ColUsage           = "USAGE"
)

// Value returns the named feature column for this row. Boolean columns are
// encoded as 0/1.
func (r FeatureRow) Value(col string) (float64, error) {
	switch col {
	case ColCO2:
		return r.CO2, nil
	case ColTemp:
		return r.Temp, nil
	case ColMotion:
		return r.Motion, nil
	case ColIAQ:
		return r.IAQ, nil
	case ColCO2Smoothed:
		return r.CO2Smoothed, nil
	case ColCO2Velocity:
		return r.CO2Velocity, nil
	case ColCO2Acceleration:
		return r.CO2Acceleration, nil
	case ColCO2Jerk:
		return r.CO2Jerk, nil
	case ColIsNight:
		if r.IsNight {
			return 1, nil
		}
		return 0, nil
	case ColUsage:
		return r.Usage, nil
	}
	return 0, fmt.Errorf("unknown feature column %q", col)
}

// FeatureTable is an ordered sequence of feature rows for exactly one room.
type FeatureTable struct {
	Rows []FeatureRow
}

// Empty reports whether the table has no rows.
func (t FeatureTable) Empty() bool { return len(t.Rows) == 0 }

// Len returns the number of rows.
func (t FeatureTable) Len() int { return len(t.Rows) }

// Matrix extracts the named columns as a dense row-major matrix.
func (t FeatureTable) Matrix(cols []string) ([][]float64, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("no feature columns selected")
	}
	m := make([][]float64, len(t.Rows))
	for i, row := range t.Rows {
		vec := make([]float64, len(cols))
		for j, col := range cols {
			v, err := row.Value(col)
			if err != nil {
				return nil, err
			}
			vec[j] = v
		}
		m[i] = vec
	}
	return m, nil
}

// ScoredSlot is one timeslot plus model output. AnomalyScore and InUse are
// nil when no trained model was available for the room.
type ScoredSlot struct {
	ID      string
	Kommune string
	Skole   string
	Date    string
	Time    string

	Timestamp time.Time

	CO2             float64
	CO2Acceleration float64

	AnomalyScore *float64
	InUse        *int
}

// ScoredTable is the scored counterpart of a room's feature table.
type ScoredTable struct {
	Rows []ScoredSlot
}

// Empty reports whether the table has no rows.
func (t ScoredTable) Empty() bool { return len(t.Rows) == 0 }

// SortByTime orders rows by timestamp ascending. Heuristic rules rely on
// neighbor lookups and require this ordering.
func (t *ScoredTable) SortByTime() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return t.Rows[i].Timestamp.Before(t.Rows[j].Timestamp)
	})
}

// CombinedRow is one row of the final output table: the original timeslot
// tagged with its room key and left-merged score columns.
type CombinedRow struct {
	Timeslot
	Room         string   `json:"ROOM"`
	AnomalyScore *float64 `json:"ANOMALY_SCORE"`
	InUse        *int     `json:"IN_USE"`
}
