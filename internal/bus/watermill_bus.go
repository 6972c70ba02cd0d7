package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Compile-time check that WatermillBus implements Bus.
var _ Bus = (*WatermillBus)(nil)

// WatermillBus implements Bus over a pair of watermill publisher/subscriber
// sets: one for ephemeral room topics, one for the durable job stream. The
// two may share a backend (gochannel) or differ in configuration (core NATS
// for rooms, JetStream for jobs; per-pod vs shared consumer groups for SQL).
type WatermillBus struct {
	roomPub message.Publisher
	roomSub message.Subscriber
	jobPub  message.Publisher
	jobSub  message.Subscriber
}

// NewWatermillBus wires the bus from already-constructed pub/sub handles.
func NewWatermillBus(roomPub message.Publisher, roomSub message.Subscriber, jobPub message.Publisher, jobSub message.Subscriber) *WatermillBus {
	return &WatermillBus{
		roomPub: roomPub,
		roomSub: roomSub,
		jobPub:  jobPub,
		jobSub:  jobSub,
	}
}

// PublishRoom publishes an event to the room's topic.
func (b *WatermillBus) PublishRoom(_ context.Context, roomID string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("bus: marshal room event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.roomPub.Publish(roomTopic(roomID), msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", roomTopic(roomID), err)
	}
	return nil
}

// SubscribeRoom subscribes to the room's topic and adapts messages to Events.
// Every message is acked immediately: room fan-out is at-most-once.
func (b *WatermillBus) SubscribeRoom(ctx context.Context, roomID string) (<-chan Event, error) {
	msgs, err := b.roomSub.Subscribe(ctx, roomTopic(roomID))
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe to %s: %w", roomTopic(roomID), err)
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		for msg := range msgs {
			var evt Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				slog.Error("bus: dropping undecodable room event", "roomId", roomID, "error", err)
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

// AppendJob appends a job reference to the durable export stream.
func (b *WatermillBus) AppendJob(_ context.Context, jobID uuid.UUID) error {
	data, err := json.Marshal(jobEnvelope{JobID: jobID})
	if err != nil {
		return fmt.Errorf("bus: marshal job envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.jobPub.Publish(jobsTopic, msg); err != nil {
		return fmt.Errorf("bus: append job %s: %w", jobID, err)
	}
	return nil
}

// ConsumeJobs subscribes to the job stream within the worker consumer group.
// Acks are deferred to the caller so redelivery covers worker crashes.
func (b *WatermillBus) ConsumeJobs(ctx context.Context) (<-chan JobMessage, error) {
	msgs, err := b.jobSub.Subscribe(ctx, jobsTopic)
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe to %s: %w", jobsTopic, err)
	}

	jobs := make(chan JobMessage)
	go func() {
		defer close(jobs)
		for msg := range msgs {
			var env jobEnvelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				// poison message, never deliverable
				slog.Error("bus: dropping undecodable job message", "error", err)
				msg.Ack()
				continue
			}
			jm := JobMessage{JobID: env.JobID, Ack: func() { msg.Ack() }, Nack: func() { msg.Nack() }}
			select {
			case jobs <- jm:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()

	return jobs, nil
}

// Close closes the underlying publishers and subscribers.
func (b *WatermillBus) Close() error {
	var firstErr error
	closers := []interface{ Close() error }{b.roomPub, b.jobPub, b.roomSub, b.jobSub}
	seen := make(map[interface{ Close() error }]bool)
	for _, c := range closers {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
