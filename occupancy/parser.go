package occupancy

import (
	"encoding/json"
	"fmt"
	"os"
)

// ParseTimeslotFile reads and parses a timeslot batch export JSON file.
func ParseTimeslotFile(path string) ([]Timeslot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseTimeslotJSON(data)
}

// ParseTimeslotJSON parses a flat JSON array of timeslot rows.
func ParseTimeslotJSON(data []byte) ([]Timeslot, error) {
	var rows []Timeslot
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return rows, nil
}

// GroupByRoom splits a flat batch into per-room tables keyed by the
// composite room identifier "{SKOLE}_{ID}". Row order within a room is
// preserved from the input.
func GroupByRoom(rows []Timeslot) map[string][]Timeslot {
	rooms := make(map[string][]Timeslot)
	for _, row := range rows {
		key := row.RoomKey()
		rooms[key] = append(rooms[key], row)
	}
	return rooms
}
