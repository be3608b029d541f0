package trigger

import (
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/joseph-ayodele/faxintake/internal/intake"
)

// S3Events converts ObjectCreated records into intake events. Keys arrive URL-encoded.
func S3Events(ev events.S3Event, src intake.ContentSource) []intake.Event {
	out := make([]intake.Event, 0, len(ev.Records))
	for _, rec := range ev.Records {
		if !strings.HasPrefix(rec.EventName, "ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil || key == "" {
			continue
		}
		out = append(out, intake.Event{
			Path:       key,
			Open:       intake.SourceOpener(src, key),
			ReceivedAt: rec.EventTime,
		})
	}
	return out
}
