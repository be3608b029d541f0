package trigger

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/intake"
)

// Dispatch runs one invocation. An error means the event was not processed.
type Dispatch func(ctx context.Context, ev intake.Event) (intake.Outcome, error)

// GCS notification attributes.
const (
	attrEventType = "eventType"
	attrObjectID  = "objectId"
	attrBucketID  = "bucketId"
	attrEventTime = "eventTime"

	eventFinalize = "OBJECT_FINALIZE"
)

// GCSEvent converts a Cloud Storage notification into an intake event.
// ok is false for anything other than a finalize in bucket.
func GCSEvent(attrs map[string]string, published time.Time, bucket string, src intake.ContentSource) (intake.Event, bool) {
	if attrs[attrEventType] != eventFinalize {
		return intake.Event{}, false
	}
	name := attrs[attrObjectID]
	if name == "" || (bucket != "" && attrs[attrBucketID] != bucket) {
		return intake.Event{}, false
	}
	at := published
	if t, err := time.Parse(time.RFC3339Nano, attrs[attrEventTime]); err == nil {
		at = t
	}
	return intake.Event{
		Path:       name,
		Open:       intake.SourceOpener(src, name),
		ReceivedAt: at,
	}, true
}

type acker interface {
	Ack()
	Nack()
}

// PubSubSource consumes OBJECT_FINALIZE notifications for one bucket.
type PubSubSource struct {
	sub    *pubsub.Subscription
	bucket string
	src    intake.ContentSource
	logger *zap.Logger
}

// NewPubSubSource bounds outstanding messages to maxOutstanding.
func NewPubSubSource(sub *pubsub.Subscription, bucket string, src intake.ContentSource, maxOutstanding int, logger *zap.Logger) *PubSubSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return &PubSubSource{sub: sub, bucket: bucket, src: src, logger: logger}
}

// Run blocks until ctx is done or the subscription fails.
func (p *PubSubSource) Run(ctx context.Context, dispatch Dispatch) error {
	p.logger.Info("pubsub.receive.started", zap.String("subscription", p.sub.ID()), zap.String("bucket", p.bucket))
	err := p.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		p.handle(ctx, msg.ID, msg.Attributes, msg.PublishTime, msg, dispatch)
	})
	if err != nil {
		p.logger.Error("pubsub.receive.failed", zap.Error(err))
	}
	return err
}

// handle acks once the invocation has settled; nack only when it never ran.
func (p *PubSubSource) handle(ctx context.Context, id string, attrs map[string]string, published time.Time, m acker, dispatch Dispatch) {
	ev, ok := GCSEvent(attrs, published, p.bucket, p.src)
	if !ok {
		p.logger.Debug("pubsub.message.ignored",
			zap.String("message_id", id),
			zap.String("event_type", attrs[attrEventType]),
			zap.String("object", attrs[attrObjectID]))
		m.Ack()
		return
	}

	out, err := dispatch(ctx, ev)
	if err != nil {
		p.logger.Warn("pubsub.dispatch.failed", zap.String("message_id", id), zap.String("path", ev.Path), zap.Error(err))
		m.Nack()
		return
	}
	p.logger.Debug("pubsub.message.done", zap.String("message_id", id), zap.Stringer("outcome", out))
	m.Ack()
}
