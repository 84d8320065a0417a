package gate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SylvanaMarinePurnomo/PlateTrack/internal/domain/anpr"
)

type fakePublisher struct {
	inputs []*iotdataplane.PublishInput
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, in *iotdataplane.PublishInput, _ ...func(*iotdataplane.Options)) (*iotdataplane.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &iotdataplane.PublishOutput{}, nil
}

func TestNotifyPublishesOpenCommand(t *testing.T) {
	pub := &fakePublisher{}
	n := NewIoTNotifier(pub, "site/gate", zerolog.Nop())

	id := uuid.New()
	at := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	err := n.Notify(context.Background(), anpr.Decision{EventID: id, Plate: "AB1234CD", Confidence: 0.9, DecidedAt: at})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(pub.inputs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.inputs))
	}
	in := pub.inputs[0]
	if aws.ToString(in.Topic) != "site/gate" || in.Qos != 1 {
		t.Errorf("unexpected topic/qos: %s %d", aws.ToString(in.Topic), in.Qos)
	}

	var cmd Command
	if err := json.Unmarshal(in.Payload, &cmd); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if cmd.Command != CommandOpen || cmd.Plate != "AB1234CD" || cmd.EventID != id.String() || !cmd.DecidedAt.Equal(at) {
		t.Errorf("unexpected command %+v", cmd)
	}
}

func TestNotifyWrapsPublishError(t *testing.T) {
	boom := errors.New("throttled")
	n := NewIoTNotifier(&fakePublisher{err: boom}, "site/gate", zerolog.Nop())
	if err := n.Notify(context.Background(), anpr.Decision{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}
