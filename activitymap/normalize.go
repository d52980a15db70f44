package activitymap

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/rs/zerolog"

	auth "github.com/goliatone/go-taskauth"
)

const (
	MetadataKeyActorType  = "actor_type"
	MetadataKeyFromStatus = "from_status"
	MetadataKeyToStatus   = "to_status"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "anonymous"
)

// Record is the flattened form of an auth.ActivityEvent written to an
// audit stream.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no actor
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Normalize flattens event into a Record. The source metadata is not
// modified.
func Normalize(event auth.ActivityEvent, opts ...Option) Record {
	o := buildOptions(opts)

	actorID := strings.TrimSpace(event.Actor.ID)
	if actorID == "" {
		actorID = strings.TrimSpace(event.IdentityRef)
	}
	if actorID == "" {
		actorID = o.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = o.now()
	}

	return Record{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: o.objectType,
		ObjectID:   strings.TrimSpace(event.IdentityRef),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// NewSink returns an auth.ActivitySink writing one structured log line
// per event to logger.
func NewSink(logger zerolog.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		r := Normalize(event, opts...)
		logger.Info().
			Str("channel", r.Channel).
			Str("verb", r.Verb).
			Str("actor_id", r.ActorID).
			Str("object_type", r.ObjectType).
			Str("object_id", r.ObjectID).
			Fields(r.Metadata).
			Time("occurred_at", r.OccurredAt).
			Msg("activity")
		return nil
	})
}

func metadata(event auth.ActivityEvent) map[string]any {
	var md map[string]any
	if len(event.Metadata) > 0 {
		md = maps.Clone(event.Metadata)
	}

	set := func(key, value string, overwrite bool) {
		if value == "" {
			return
		}
		if md == nil {
			md = map[string]any{}
		}
		if _, exists := md[key]; exists && !overwrite {
			return
		}
		md[key] = value
	}

	set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type), false)
	set(MetadataKeyFromStatus, string(event.FromStatus), true)
	set(MetadataKeyToStatus, string(event.ToStatus), true)
	return md
}
