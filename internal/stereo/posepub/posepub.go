// Package posepub publishes localisation results over MQTT.
package posepub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/stereogrid/internal/monitoring"
	"github.com/banshee-data/stereogrid/internal/stereo/metagrid"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "stereogrid/pose"

// Client is the subset of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Pose is the published payload.
type Pose struct {
	RunID     string    `json:"run_id,omitempty"`
	PathIndex int       `json:"path_index"`
	GridIndex int       `json:"grid_index"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	OffsetX   float64   `json:"offset_x"`
	OffsetY   float64   `json:"offset_y"`
	OffsetPan float64   `json:"offset_pan"`
	Score     *float64  `json:"score"`
	Swapped   bool      `json:"swapped"`
	Timestamp time.Time `json:"ts"`
}

// PoseFromEntry converts a localisation result. Unmatched results carry a
// null score.
func PoseFromEntry(runID string, e metagrid.LogEntry) Pose {
	c := e.Corrected()
	p := Pose{
		RunID:     runID,
		PathIndex: e.PathIndex,
		GridIndex: e.GridIndex,
		X:         c.X,
		Y:         c.Y,
		OffsetX:   e.Offset.X,
		OffsetY:   e.Offset.Y,
		OffsetPan: e.Offset.Pan,
		Swapped:   e.Swapped,
	}
	if e.Matched {
		s := e.Score
		p.Score = &s
	}
	return p
}

// Publisher implements metagrid.Publisher.
type Publisher struct {
	client  Client
	topic   string
	runID   string
	timeout time.Duration
	now     func() time.Time
}

var _ metagrid.Publisher = (*Publisher)(nil)

// New wraps a connected client.
func New(client Client, topic, runID string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{client: client, topic: topic, runID: runID, timeout: 2 * time.Second, now: time.Now}
}

// Connect dials broker and returns a publisher with a disconnect func.
func Connect(broker, clientID, topic, runID string) (*Publisher, func(), error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	monitoring.Logf("connected to MQTT broker %s, publishing on %s", broker, topic)
	return New(client, topic, runID), func() { client.Disconnect(250) }, nil
}

// PublishPose sends one localisation result at QoS 0, retained so late
// subscribers see the latest pose.
func (p *Publisher) PublishPose(e metagrid.LogEntry) error {
	pose := PoseFromEntry(p.runID, e)
	pose.Timestamp = p.now().UTC()
	payload, err := json.Marshal(pose)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s timed out after %s", p.topic, p.timeout)
	}
	return token.Error()
}
