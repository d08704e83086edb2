package occupancy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// occupancyDay builds one realistic 96-slot day for a room: a low night
// baseline, a CO2 rise through a scheduled morning session, a plateau, and
// a slow decay back to baseline. Small jitter keeps the baseline from
// reading as a stuck sensor.
func occupancyDay(id, school, date string) []Timeslot {
	return makeRoomSlots(id, school, date, func(i int) float64 {
		switch {
		case i >= 40 && i < 45:
			return 400 + 110*float64(i-39)
		case i >= 45 && i < 49:
			return 900 + float64(i%3)*5
		case i >= 49 && i < 60:
			return 900 - 45*float64(i-48)
		default:
			return 400 + float64(i%3)*2
		}
	})
}

func makeRoomSlots(id, school, date string, co2 func(i int) float64) []Timeslot {
	slots := makeSlots(date, 0, SlotsPerDay, co2)
	for i := range slots {
		slots[i].ID = id
		slots[i].Skole = school
		slots[i].Scheduled = i >= 40 && i < 49
	}
	return slots
}

func TestTrainEndToEnd(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	slots := occupancyDay("R1", "Nord", "2024-03-04")
	room := slots[0].RoomKey()

	report, err := reg.Train(context.Background(), map[string][]Timeslot{room: slots})
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	require.Contains(t, report.Scored, room)

	scored := report.Scored[room]
	require.Equal(t, SlotsPerDay, len(scored.Rows))

	assert.Equal(t, 1, reg.Len())
	model, ok := reg.Lookup(room)
	require.True(t, ok)
	assert.True(t, model.Fitted())

	// 9 scheduled slots of 96.
	wantUsage := 2.1 * 9.0 / 96.0
	assert.InDelta(t, wantUsage, model.usage, 1e-12)

	inUseDaytime := 0
	for _, row := range scored.Rows {
		require.NotNil(t, row.InUse)
		require.NotNil(t, row.AnomalyScore)

		h := row.Timestamp.Hour()
		if h < 6 {
			assert.Equal(t, 0, *row.InUse, "night slot %s marked in use", row.Time)
		}
		if *row.InUse == 1 {
			assert.Greater(t, row.CO2, 400.0, "in-use slot %s at baseline CO2", row.Time)
			if h >= 9 && h < 15 {
				inUseDaytime++
			}
		}

		label, score := *row.InUse, *row.AnomalyScore
		if label == 1 {
			assert.GreaterOrEqual(t, score, 0.5, "slot %s label/score mismatch", row.Time)
		} else {
			assert.LessOrEqual(t, score, 0.5, "slot %s label/score mismatch", row.Time)
		}
	}
	assert.Greater(t, inUseDaytime, 0, "expected the occupied session to be detected")
}

func TestPredictAfterTrain(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	trainDay := occupancyDay("R1", "Nord", "2024-03-04")
	room := trainDay[0].RoomKey()
	_, err := reg.Train(context.Background(), map[string][]Timeslot{room: trainDay})
	require.NoError(t, err)

	predictDay := occupancyDay("R1", "Nord", "2024-03-05")
	report, err := reg.Predict(context.Background(), map[string][]Timeslot{room: predictDay})
	require.NoError(t, err)
	require.Empty(t, report.Failed)

	scored := report.Scored[room]
	require.Equal(t, SlotsPerDay, len(scored.Rows))
	for _, row := range scored.Rows {
		require.NotNil(t, row.InUse)
		require.NotNil(t, row.AnomalyScore)
		assert.False(t, math.IsNaN(*row.AnomalyScore))
	}
}

func TestPredictMissingModelYieldsNulls(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	trained := occupancyDay("R1", "Nord", "2024-03-04")
	_, err := reg.Train(context.Background(), map[string][]Timeslot{trained[0].RoomKey(): trained})
	require.NoError(t, err)

	unknown := occupancyDay("R9", "Nord", "2024-03-05")
	room := unknown[0].RoomKey()
	report, err := reg.Predict(context.Background(), map[string][]Timeslot{room: unknown})
	require.NoError(t, err)
	require.Empty(t, report.Failed, "a missing model is not a failure")

	scored, ok := report.Scored[room]
	require.True(t, ok)
	require.Equal(t, SlotsPerDay, len(scored.Rows))
	for i, row := range scored.Rows {
		assert.Nil(t, row.AnomalyScore, "row %d", i)
		assert.Nil(t, row.InUse, "row %d", i)
	}
}

func TestTrainFailureIsolation(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	good := occupancyDay("R1", "Nord", "2024-03-04")
	bad := occupancyDay("R2", "Nord", "2024-03-04")
	bad[10].Time = "not a time"

	rooms := map[string][]Timeslot{
		good[0].RoomKey(): good,
		bad[0].RoomKey():  bad,
	}
	report, err := reg.Train(context.Background(), rooms)
	require.NoError(t, err, "a failing room must not abort the batch")

	assert.Contains(t, report.Failed, bad[0].RoomKey())
	assert.Contains(t, report.Scored, good[0].RoomKey())
	assert.NotContains(t, report.Scored, bad[0].RoomKey())
	assert.Equal(t, 1, reg.Len())
}

func TestRunBatchRecoversPanics(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	rooms := map[string][]Timeslot{"Nord_R1": nil, "Nord_R2": nil}
	report, err := reg.runBatch(context.Background(), rooms,
		func(room string, rows []Timeslot) (ScoredTable, bool, error) {
			if room == "Nord_R1" {
				panic("boom")
			}
			return ScoredTable{}, false, nil
		})
	require.NoError(t, err)

	require.Contains(t, report.Failed, "Nord_R1")
	assert.Contains(t, report.Failed["Nord_R1"].Error(), "panic")
	assert.NotContains(t, report.Failed, "Nord_R2")
}

func TestTrainSkipsEmptyRooms(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	report, err := reg.Train(context.Background(), map[string][]Timeslot{"Nord_R1": nil})
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Empty(t, report.Scored)
	assert.Equal(t, 0, reg.Len())
}

func TestRunBatchCancelledContext(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rooms := make(map[string][]Timeslot)
	for i := 0; i < 64; i++ {
		rooms[fmt.Sprintf("Nord_R%02d", i)] = nil
	}

	report, err := reg.runBatch(ctx, rooms,
		func(string, []Timeslot) (ScoredTable, bool, error) {
			return ScoredTable{}, false, nil
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report, "partial results survive cancellation")
}

func TestTrainMultipleRooms(t *testing.T) {
	cfg := DefaultConfig()
	reg := NewRegistry(cfg)

	rooms := make(map[string][]Timeslot)
	for _, id := range []string{"R1", "R2", "R3", "R4", "R5", "R6"} {
		day := occupancyDay(id, "Nord", "2024-03-04")
		rooms[day[0].RoomKey()] = day
	}

	report, err := reg.Train(context.Background(), rooms)
	require.NoError(t, err)
	require.Empty(t, report.Failed)
	assert.Len(t, report.Scored, 6)
	assert.Equal(t, 6, reg.Len())
	assert.Equal(t, []string{"Nord_R1", "Nord_R2", "Nord_R3", "Nord_R4", "Nord_R5", "Nord_R6"},
		reg.Rooms())
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder()
	assert.Nil(t, h.Current())

	first := NewRegistry(DefaultConfig())
	h.Swap(first)
	assert.Same(t, first, h.Current())

	second := NewRegistry(DefaultConfig())
	h.Swap(second)
	assert.Same(t, second, h.Current())
}
