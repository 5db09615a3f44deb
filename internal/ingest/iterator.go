// Package ingest consumes check-in events from a message topic and records
// them through the attendance service. Offsets are committed only once a
// message has been handled for good.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"

	"attendance/internal/attendance"
	"attendance/internal/models"
	"attendance/pkg/geo"
)

var errPartialCoordinates = errors.New("latitude and longitude must be sent together")

// Iterator turns raw messages into Checkin items. It does not manage the
// lifecycle of the underlying message source.
type Iterator struct {
	msgIterator MessageIterator
	logger      *slog.Logger
}

func NewIterator(source MessageIterator, logger *slog.Logger) *Iterator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Iterator{msgIterator: source, logger: logger}
}

// Checkins streams one item per message. Undecodable messages are still
// emitted, with DecodeErr set, so that their offsets get committed. The
// channel closes when the source closes or ctx is done.
func (it *Iterator) Checkins(ctx context.Context) <-chan *Checkin {
	out := make(chan *Checkin)
	go func() {
		defer close(out)
		for msg := range it.msgIterator.Messages() {
			item := &Checkin{Message: msg}
			req, err := decode(msg.Value)
			if err != nil {
				it.logger.Warn("undecodable checkin message",
					"partition", msg.Partition, "offset", msg.Offset, "error", err)
				item.DecodeErr = err
			} else {
				item.Request = req
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func decode(value []byte) (attendance.CheckinRequest, error) {
	var msg models.CheckinMessage
	if err := sonic.Unmarshal(value, &msg); err != nil {
		return attendance.CheckinRequest{}, fmt.Errorf("decode checkin: %w", err)
	}
	req := attendance.CheckinRequest{
		EmployeeID: strings.TrimSpace(msg.EmployeeID),
		IPAddress:  msg.IPAddress,
		UserAgent:  msg.UserAgent,
		Photo:      msg.Photo,
		Status:     models.Status(strings.ToUpper(strings.TrimSpace(msg.Status))),
		Action:     models.Action(strings.TrimSpace(msg.Action)),
	}
	switch {
	case msg.Latitude != nil && msg.Longitude != nil:
		req.Coordinates = &geo.Coordinates{Latitude: *msg.Latitude, Longitude: *msg.Longitude}
	case msg.Latitude != nil || msg.Longitude != nil:
		return attendance.CheckinRequest{}, errPartialCoordinates
	}
	return req, nil
}
