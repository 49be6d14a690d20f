package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/graftnet/graft"
)

// Channel carrying every accepted activity.
const signalChannel = "graft:activities"

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event graft.Event) error {

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, signalChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards published events to output until ctx is done. Filters
// received on input replace the active set; an event passes when its actor,
// activity id, or any touched object id starts with one of the filters, or
// when no filter is set.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- graft.Event) {
	pubsub := s.rdb.Subscribe(ctx, signalChannel)
	defer pubsub.Close()

	var filters []string
	messages := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case prefixes, ok := <-input:
			if !ok {
				return
			}
			filters = prefixes
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event graft.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Failed to decode signal payload",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			if !eventMatches(event, filters) {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func eventMatches(event graft.Event, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if strings.HasPrefix(event.Actor, f) || strings.HasPrefix(event.Activity, f) {
			return true
		}
		for _, id := range event.Objects {
			if strings.HasPrefix(id, f) {
				return true
			}
		}
	}
	return false
}
