// Package gate tells the barrier controller to open for granted plates.
package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
)

const CommandOpen = "open"

// PublishAPI is the part of *iotdataplane.Client the notifier needs.
type PublishAPI interface {
	Publish(ctx context.Context, params *iotdataplane.PublishInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error)
}

type Command struct {
	Command    string    `json:"command"`
	Plate      string    `json:"plate"`
	Confidence float64   `json:"confidence"`
	EventID    string    `json:"event_id"`
	DecidedAt  time.Time `json:"decided_at"`
}

type IoTNotifier struct {
	client PublishAPI
	topic  string
	log    zerolog.Logger
}

func NewIoTNotifier(client PublishAPI, topic string, log zerolog.Logger) *IoTNotifier {
	return &IoTNotifier{
		client: client,
		topic:  topic,
		log:    log,
	}
}

// Notify publishes an open command for d with QoS 1.
func (n *IoTNotifier) Notify(ctx context.Context, d anpr.Decision) error {
	payload, err := json.Marshal(Command{
		Command:    CommandOpen,
		Plate:      d.Plate,
		Confidence: d.Confidence,
		EventID:    d.EventID.String(),
		DecidedAt:  d.DecidedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal gate command: %w", err)
	}

	_, err = n.client.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(n.topic),
		Qos:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish gate command: %w", err)
	}

	n.log.Info().
		Str("topic", n.topic).
		Str("plate", d.Plate).
		Str("event_id", d.EventID.String()).
		Msg("gate open command published")
	return nil
}

// NewClient builds an IoT Data Plane client, pointing it at endpoint when set.
func NewClient(cfg aws.Config, endpoint string) *iotdataplane.Client {
	return iotdataplane.NewFromConfig(cfg, func(o *iotdataplane.Options) {
		if endpoint == "" {
			return
		}
		if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
			endpoint = "https://" + endpoint
		}
		o.BaseEndpoint = aws.String(endpoint)
	})
}
