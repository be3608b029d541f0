// Package intake drives one uploaded fax from raw upload to a terminal authorization record.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/extract"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

// failureWriteTimeout bounds the MarkFailed write made after the invocation itself has failed.
const failureWriteTimeout = 5 * time.Second

// Organizer relocates a raw upload and returns its organized path.
type Organizer interface {
	Organize(ctx context.Context, src string) (string, error)
}

// Extractor turns document content into extracted fields.
type Extractor interface {
	Extract(ctx context.Context, content io.Reader, modelID string) (entity.ExtractedFields, error)
}

// PathGuard serializes processing of one organized path across workers and processes.
// acquired is false when another holder has the path.
type PathGuard interface {
	TryLock(ctx context.Context, key string) (release func(), acquired bool, err error)
}

// Recorder receives one observation per invocation.
type Recorder interface {
	ObserveOutcome(kind, reason string, elapsed time.Duration)
}

type Orchestrator struct {
	organizer Organizer
	extractor Extractor
	repo      repository.AuthorizationRepository
	modelID   string

	guard   PathGuard
	now     func() time.Time
	logger  *zap.Logger
	metrics Recorder
	tracer  trace.Tracer
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithPathGuard(g PathGuard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

func New(org Organizer, ext Extractor, repo repository.AuthorizationRepository, modelID string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		organizer: org,
		extractor: ext,
		repo:      repo,
		modelID:   strings.TrimSpace(modelID),
		now:       time.Now,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("github.com/joseph-ayodele/faxintake/internal/intake"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the per-invocation state used by the failure handler and panic recovery.
type run struct {
	ev       Event
	stage    ErrorKind
	recordID string
	log      *zap.Logger
}

// IsOrganized reports whether p already sits inside a per-document folder.
func IsOrganized(p string) bool {
	return strings.Contains(p, constants.FolderSeparator)
}

// Handle processes one event. It never panics and never returns an error; the Outcome says what happened.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) (out Outcome) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "intake.handle", trace.WithAttributes(attribute.String("fax.path", ev.Path)))
	r := &run{ev: ev, log: o.logger.With(zap.String("path", ev.Path))}

	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			r.log.Error("intake.panic", zap.String("stage", string(r.stage)), zap.Any("panic", p), zap.Stack("stack"))
			if r.recordID != "" {
				out = o.fail(ctx, r, r.stage, err)
			} else {
				out = Outcome{Kind: Failed, Path: ev.Path, Reason: r.stage, Err: err, RecordID: r.recordID}
			}
		}
		o.finish(span, out, start)
	}()

	if !constants.IsSupported(ev.Path) {
		r.log.Info("intake.skip", zap.String("reason", string(UnsupportedFormat)))
		return Outcome{Kind: Skipped, Path: ev.Path, Reason: UnsupportedFormat}
	}
	if !IsOrganized(ev.Path) {
		return o.organize(ctx, r)
	}
	return o.process(ctx, r)
}

func (o *Orchestrator) organize(ctx context.Context, r *run) Outcome {
	r.stage = OrganizeFailure
	dst, err := o.organizer.Organize(ctx, r.ev.Path)
	if err != nil {
		r.log.Error("intake.organize.failed", zap.Error(err))
		return Outcome{Kind: Failed, Path: r.ev.Path, Reason: OrganizeFailure, Err: err}
	}
	r.log.Info("intake.organized", zap.String("dst", dst))
	return Outcome{Kind: Organized, Path: r.ev.Path, Destination: dst}
}

func (o *Orchestrator) process(ctx context.Context, r *run) Outcome {
	p := r.ev.Path

	if o.guard != nil {
		release, ok, err := o.guard.TryLock(ctx, p)
		if err != nil {
			// a broken guard must not block intake; the store still rejects duplicates
			r.log.Warn("intake.guard.error", zap.Error(err))
		} else if !ok {
			r.log.Info("intake.skip", zap.String("reason", string(InFlight)))
			return Outcome{Kind: Skipped, Path: p, Reason: InFlight}
		} else {
			defer release()
		}
	}

	r.stage = RecordLookupFailure
	exists, err := o.repo.ExistsBySourcePath(ctx, p)
	if err != nil {
		r.log.Error("intake.lookup.failed", zap.Error(err))
		return Outcome{Kind: Failed, Path: p, Reason: RecordLookupFailure, Err: err}
	}
	if exists {
		r.log.Info("intake.skip", zap.String("reason", string(AlreadyProcessed)))
		return Outcome{Kind: Skipped, Path: p, Reason: AlreadyProcessed}
	}

	r.stage = RecordCreateFailure
	uploadedAt := o.now()
	fileName := path.Base(p)
	id, err := o.repo.Create(ctx, p, fileName, uploadedAt)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			r.log.Info("intake.skip", zap.String("reason", string(AlreadyProcessed)), zap.Bool("lost_race", true))
			return Outcome{Kind: Skipped, Path: p, Reason: AlreadyProcessed}
		}
		r.log.Error("intake.create.failed", zap.Error(err))
		return Outcome{Kind: Failed, Path: p, Reason: RecordCreateFailure, Err: err}
	}
	r.recordID = id
	r.log = r.log.With(zap.String("record_id", id))
	r.log.Info("intake.record.created")

	r.stage = ExtractionFailure
	fields, err := o.extract(ctx, r)
	if err != nil {
		return o.fail(ctx, r, ExtractionFailure, err)
	}

	r.stage = RecordUpdateFailure
	if err := o.repo.Complete(ctx, id, fields); err != nil {
		return o.fail(ctx, r, RecordUpdateFailure, err)
	}

	r.log.Info("intake.completed")
	return Outcome{Kind: Completed, Path: p, RecordID: id, Record: o.stored(ctx, r, &entity.AuthorizationRecord{
		ID:              id,
		SourcePath:      p,
		FileName:        fileName,
		UploadedAt:      uploadedAt,
		Status:          constants.StatusCompleted,
		ExtractedFields: &fields,
	})}
}

// stored returns the record as persisted, falling back to what the orchestrator wrote when the read fails.
func (o *Orchestrator) stored(ctx context.Context, r *run, written *entity.AuthorizationRecord) *entity.AuthorizationRecord {
	rec, err := o.repo.GetByID(ctx, written.ID)
	if err != nil || rec == nil {
		r.log.Warn("intake.reload.failed", zap.Error(err))
		return written
	}
	return rec
}

func (o *Orchestrator) extract(ctx context.Context, r *run) (entity.ExtractedFields, error) {
	if o.modelID == "" {
		return entity.ExtractedFields{}, extract.ErrModelNotConfigured
	}
	if r.ev.Open == nil {
		return entity.ExtractedFields{}, errNoContent
	}
	ctx, span := o.tracer.Start(ctx, "intake.extract")
	defer span.End()

	rc, err := r.ev.Open(ctx)
	if err != nil {
		return entity.ExtractedFields{}, fmt.Errorf("open content: %w", err)
	}
	defer rc.Close()

	fields, err := o.extractor.Extract(ctx, rc, o.modelID)
	if err != nil {
		span.RecordError(err)
		return entity.ExtractedFields{}, err
	}
	return fields, nil
}

// fail marks the record failed. A failing mark is logged and reported as FailureMarkFailure.
func (o *Orchestrator) fail(ctx context.Context, r *run, kind ErrorKind, cause error) Outcome {
	r.log.Error("intake.failed", zap.String("reason", string(kind)), zap.Error(cause))
	out := Outcome{Kind: Failed, Path: r.ev.Path, Reason: kind, Err: cause, RecordID: r.recordID}

	msg := cause.Error()
	if strings.TrimSpace(msg) == "" {
		msg = string(kind)
	}
	if err := o.markFailed(ctx, r.recordID, msg); err != nil {
		r.log.Error("intake.mark_failed.failed", zap.String("cause", string(kind)), zap.Error(err))
		out.Reason = FailureMarkFailure
		out.Err = errors.Join(cause, fmt.Errorf("mark failed: %w", err))
	}
	return out
}

// markFailed turns a panicking store into an error so the failure handler stays contained.
// The write runs detached from ctx: the failure being recorded is often ctx's own deadline.
func (o *Orchestrator) markFailed(ctx context.Context, id, message string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	return o.repo.MarkFailed(ctx, id, message)
}

func (o *Orchestrator) finish(span trace.Span, out Outcome, start time.Time) {
	span.SetAttributes(
		attribute.String("intake.outcome", out.Kind.String()),
		attribute.String("intake.reason", string(out.Reason)),
	)
	if out.RecordID != "" {
		span.SetAttributes(attribute.String("intake.record_id", out.RecordID))
	}
	if out.Kind == Failed {
		span.SetStatus(codes.Error, string(out.Reason))
		if out.Err != nil {
			span.RecordError(out.Err)
		}
	}
	span.End()
	if o.metrics != nil {
		o.metrics.ObserveOutcome(out.Kind.String(), string(out.Reason), o.now().Sub(start))
	}
}
