// Package bus is the process-external event fabric. Room topics carry
// at-most-once fan-out of ephemeral events; missed messages are not replayed
// and clients re-read the store on reconnect. The export-jobs stream is
// durable and consumer-grouped: each job message reaches exactly one worker
// and is redelivered until acknowledged.
package bus

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event is the envelope published on room topics. Payload is the wire-ready
// frame payload; Type matches the outbound protocol message type.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JobMessage is one delivery from the export-jobs stream. Ack must be called
// exactly once; Nack triggers redelivery after the backend's timeout.
type JobMessage struct {
	JobID uuid.UUID
	Ack   func()
	Nack  func()
}

// Bus abstracts the pub/sub backend for room fan-out and job streaming.
type Bus interface {
	// PublishRoom fans the event out to every subscriber of the room topic,
	// this process included. Errors are transient; the caller decides
	// whether to retry or rely on reconnect recovery.
	PublishRoom(ctx context.Context, roomID string, evt Event) error

	// SubscribeRoom opens a stream of the room's events. The channel closes
	// when ctx is cancelled or the backend disconnects irrecoverably;
	// callers resubscribe and tolerate the gap.
	SubscribeRoom(ctx context.Context, roomID string) (<-chan Event, error)

	// AppendJob appends a job reference to the durable stream. On return the
	// append is assumed committed.
	AppendJob(ctx context.Context, jobID uuid.UUID) error

	// ConsumeJobs joins the worker consumer group on the job stream.
	ConsumeJobs(ctx context.Context) (<-chan JobMessage, error)

	Close() error
}

// jobEnvelope is the serialized form of a job stream entry.
type jobEnvelope struct {
	JobID uuid.UUID `json:"jobId"`
}

const (
	roomTopicPrefix = "poker_room_"
	jobsTopic       = "poker_export_jobs"
	// jobsConsumerGroup names the worker group; one delivery per group.
	jobsConsumerGroup = "export-workers"
)

func roomTopic(roomID string) string {
	return roomTopicPrefix + roomID
}
