package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/censys/nmap-graph/pkg/report"
)

// ReasonWriteError tags hosts whose transaction failed.
const ReasonWriteError = "write_error"

// DLQPublisher publishes hosts that could not be written to a dead-letter
// topic so they can be replayed later.
type DLQPublisher interface {
	Publish(ctx context.Context, host report.HostRecord, reason string) error
}

// PubSubDLQPublisher implements DLQPublisher using a Pub/Sub topic.
type PubSubDLQPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubDLQPublisher constructs a DLQ publisher for the given topic. If the
// topic is nil, publishes are treated as no-ops.
func NewPubSubDLQPublisher(topic *pubsub.Topic) *PubSubDLQPublisher {
	return &PubSubDLQPublisher{topic: topic}
}

// Publish sends the host as JSON to the DLQ topic. If topic is nil, it is a
// no-op.
func (p *PubSubDLQPublisher) Publish(ctx context.Context, host report.HostRecord, reason string) error {
	if p.topic == nil {
		return nil
	}
	msg, err := dlqMessage(host, reason)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = p.topic.Publish(ctx, msg).Get(ctx)
	return err
}

func dlqMessage(host report.HostRecord, reason string) (*pubsub.Message, error) {
	data, err := json.Marshal(host)
	if err != nil {
		return nil, fmt.Errorf("marshal host %s: %w", host.IP, err)
	}
	return &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"reason":   reason,
			"ip":       host.IP,
			"hostname": host.Hostname,
			"ports":    strconv.Itoa(len(host.Ports)),
		},
	}, nil
}

// NoopDLQPublisher is used when no DLQ topic is configured.
type NoopDLQPublisher struct{}

func (n *NoopDLQPublisher) Publish(ctx context.Context, host report.HostRecord, reason string) error {
	return nil
}
