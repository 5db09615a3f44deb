package ingest

import (
	"context"

	"github.com/segmentio/kafka-go"

	"attendance/internal/attendance"
	"attendance/internal/models"
)

// MessageIterator is the message source the ingester reads from. It is
// satisfied by *kafkaclient.Iterator.
//
// Implementations own the consumer lifecycle and close the Messages channel
// when the consumer stops.
type MessageIterator interface {
	Messages() <-chan kafka.Message
	// CommitOffset acknowledges a processed message.
	CommitOffset(ctx context.Context, msg kafka.Message) error
}

// Recorder applies a decoded check-in. *attendance.Service implements it.
type Recorder interface {
	RecordAttendance(ctx context.Context, req attendance.CheckinRequest) (models.AttendanceRecord, error)
}

// Checkin is one message moving through the ingest pipeline.
type Checkin struct {
	Message kafka.Message
	Request attendance.CheckinRequest
	// DecodeErr is set when the payload could not be turned into a request.
	DecodeErr error
	// Record is the stored result after a successful write.
	Record *models.AttendanceRecord
	// Commit is decided by the record stage and read by the commit stage.
	Commit    bool
	Committed bool
}
