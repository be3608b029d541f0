package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/internal/intake"
)

type kindByPath map[string]intake.Kind

func (k kindByPath) Handle(_ context.Context, ev intake.Event) intake.Outcome {
	return intake.Outcome{Kind: k[ev.Path], Path: ev.Path}
}

func TestHandler_CountsOutcomes(t *testing.T) {
	a := &App{
		orch:   kindByPath{"fax1.pdf": intake.Organized, "fax2/fax2.pdf": intake.Completed, "notes.txt": intake.Skipped},
		logger: zap.NewNop(),
	}
	rec := func(name, key string) events.S3EventRecord {
		return events.S3EventRecord{EventName: name, S3: events.S3Entity{Object: events.S3Object{Key: key}}}
	}
	counts, err := a.handler(context.Background(), events.S3Event{Records: []events.S3EventRecord{
		rec("ObjectCreated:Put", "fax1.pdf"),
		rec("ObjectCreated:Copy", "fax2/fax2.pdf"),
		rec("ObjectCreated:Put", "notes.txt"),
		rec("ObjectRemoved:Delete", "fax1.pdf"),
	}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"organized": 1, "completed": 1, "skipped": 1}, counts)
}
