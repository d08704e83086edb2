package occupancy

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// RoomSummary is the per-room scoring digest published after a batch.
type RoomSummary struct {
	Room        string    `json:"room"`
	Rows        int       `json:"rows"`
	InUseSlots  int       `json:"inUseSlots"`
	MeanScore   float64   `json:"meanScore"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	Timestamp   int64     `json:"timestamp"`
}

// RunStatus announces batch lifecycle transitions (training started,
// completed, failed) on the status topic.
type RunStatus struct {
	RunID     string `json:"runId"`
	Phase     string `json:"phase"`
	Rooms     int    `json:"rooms"`
	Failed    int    `json:"failed"`
	Timestamp int64  `json:"timestamp"`
}

// Publisher publishes scoring results to MQTT. Summaries are retained so
// late subscribers see the latest state per room; status messages are
// fire-and-forget.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
}

// NewPublisher creates a result publisher. A nil client disables
// publishing (for testing and for deployments without a broker).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "roomsense"
	}
	return &Publisher{client: client, prefix: prefix, qos: 0}
}

// Enabled reports whether a connected client is attached.
func (p *Publisher) Enabled() bool {
	return p.client != nil && p.client.IsConnected()
}

// PublishRoomSummary publishes one room's digest to {prefix}/rooms/{room}.
func (p *Publisher) PublishRoomSummary(room string, t ScoredTable) error {
	if !p.Enabled() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary := summarize(room, t)
	topic := fmt.Sprintf("%s/rooms/%s", p.prefix, room)
	if err := p.publish(topic, summary, true); err != nil {
		return err
	}
	log.Printf("Published summary for %s: %d/%d slots in use", room, summary.InUseSlots, summary.Rows)
	return nil
}

// PublishRunStatus publishes a batch lifecycle message to {prefix}/status.
func (p *Publisher) PublishRunStatus(status RunStatus) error {
	if !p.Enabled() {
		return fmt.Errorf("MQTT client not connected")
	}
	status.Timestamp = time.Now().Unix()
	return p.publish(p.prefix+"/status", status, false)
}

// PublishReport publishes every room's summary from a finished batch; the
// first publish failure stops and is returned.
func (p *Publisher) PublishReport(report *RunReport) error {
	for room, scored := range report.Scored {
		if err := p.PublishRoomSummary(room, scored); err != nil {
			return fmt.Errorf("publishing summary for %s: %w", room, err)
		}
	}
	return nil
}

func (p *Publisher) publish(topic string, payload interface{}, retain bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	token := p.client.Publish(topic, p.qos, retain, data)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func summarize(room string, t ScoredTable) RoomSummary {
	summary := RoomSummary{
		Room:      room,
		Rows:      len(t.Rows),
		Timestamp: time.Now().Unix(),
	}

	var scoreSum float64
	var scoreCount int
	for i, row := range t.Rows {
		if i == 0 || row.Timestamp.Before(summary.WindowStart) {
			summary.WindowStart = row.Timestamp
		}
		if row.Timestamp.After(summary.WindowEnd) {
			summary.WindowEnd = row.Timestamp
		}
		if row.InUse != nil && *row.InUse == 1 {
			summary.InUseSlots++
		}
		if row.AnomalyScore != nil {
			scoreSum += *row.AnomalyScore
			scoreCount++
		}
	}
	if scoreCount > 0 {
		summary.MeanScore = scoreSum / float64(scoreCount)
	}
	return summary
}
