package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/organize"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeOrganizer struct {
	calls []string
	err   error
	panic bool
}

func (f *fakeOrganizer) Organize(_ context.Context, src string) (string, error) {
	f.calls = append(f.calls, src)
	if f.panic {
		panic("storage client exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	return organize.Destination(src), nil
}

type fakeExtractor struct {
	fields entity.ExtractedFields
	err    error
	panic  bool
	block  bool
	calls  int
	read   string
	model  string
}

func (f *fakeExtractor) Extract(ctx context.Context, content io.Reader, modelID string) (entity.ExtractedFields, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return entity.ExtractedFields{}, ctx.Err()
	}
	f.model = modelID
	b, _ := io.ReadAll(content)
	f.read = string(b)
	if f.panic {
		panic("nil map in analyzer")
	}
	return f.fields, f.err
}

// countingOpener counts how often the content is opened.
type countingOpener struct {
	opens int
	body  string
}

func (c *countingOpener) Open(context.Context) (io.ReadCloser, error) {
	c.opens++
	return io.NopCloser(strings.NewReader(c.body)), nil
}

type memRepo struct {
	mu      sync.Mutex
	records map[string]*entity.AuthorizationRecord
	seq     int

	createErr   error
	lookupErr   error
	completeErr error
	markErr     error
	getErr      error

	creates int
	markCtx error
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]*entity.AuthorizationRecord{}}
}

func (m *memRepo) Create(_ context.Context, sourcePath, fileName string, uploadedAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return "", m.createErr
	}
	for _, r := range m.records {
		if r.SourcePath == sourcePath {
			return "", repository.ErrConflict
		}
	}
	m.seq++
	id := fmt.Sprintf("rec-%d", m.seq)
	m.records[id] = &entity.AuthorizationRecord{
		ID: id, SourcePath: sourcePath, FileName: fileName, UploadedAt: uploadedAt, Status: constants.StatusProcessing,
	}
	return id, nil
}

func (m *memRepo) terminal(id string, apply func(r *entity.AuthorizationRecord)) error {
	r, ok := m.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.Status.IsTerminal() {
		return repository.ErrTerminal
	}
	now := testNow
	r.ProcessedAt = &now
	apply(r)
	return nil
}

func (m *memRepo) Complete(_ context.Context, id string, fields entity.ExtractedFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	return m.terminal(id, func(r *entity.AuthorizationRecord) {
		r.Status = constants.StatusCompleted
		r.ExtractedFields = &fields
	})
}

func (m *memRepo) MarkFailed(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	if err := ctx.Err(); err != nil {
		m.markCtx = err
		return err
	}
	return m.terminal(id, func(r *entity.AuthorizationRecord) {
		r.Status = constants.StatusFailed
		r.ErrorMessage = &message
	})
}

func (m *memRepo) GetByID(_ context.Context, id string) (*entity.AuthorizationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ExistsBySourcePath(_ context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return false, m.lookupErr
	}
	for _, r := range m.records {
		if r.SourcePath == p {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) List(context.Context, repository.ListFilter) ([]*entity.AuthorizationRecord, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) ListStale(context.Context, time.Time) ([]*entity.AuthorizationRecord, error) {
	return nil, errors.New("not used")
}

func (m *memRepo) bySource(p string) *entity.AuthorizationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.SourcePath == p {
			return r
		}
	}
	return nil
}

type fakeGuard struct {
	busy     bool
	acquired []string
	released int
}

func (g *fakeGuard) TryLock(_ context.Context, key string) (func(), bool, error) {
	if g.busy {
		return nil, false, nil
	}
	g.acquired = append(g.acquired, key)
	return func() { g.released++ }, true, nil
}

type observation struct {
	kind, reason string
}

type recorder struct {
	got []observation
}

func (r *recorder) ObserveOutcome(kind, reason string, _ time.Duration) {
	r.got = append(r.got, observation{kind, reason})
}
