package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/readmill/pagepress/internal/data"
	"github.com/readmill/pagepress/internal/domain/model"
	"github.com/readmill/pagepress/internal/render"
)

// fakeJobStore is an in-memory job store mirroring the repository's contract:
// one active job per book, atomic claims, and a non-decreasing progress counter.
type fakeJobStore struct {
	mu    sync.Mutex
	seq   int
	jobs  map[string]*model.RenderJob
	order []string

	createErr error
	listErr   error

	progressLog   map[string][]int
	completeCalls []string
	failMessages  map[string]string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:         make(map[string]*model.RenderJob),
		progressLog:  make(map[string][]int),
		failMessages: make(map[string]string),
	}
}

func (f *fakeJobStore) addJob(bookID int64, status model.JobStatus) *model.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	job := &model.RenderJob{
		ID:        fmt.Sprintf("job-%d", f.seq),
		BookID:    bookID,
		Status:    status,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Minute),
	}
	f.jobs[job.ID] = job
	f.order = append(f.order, job.ID)
	return job
}

func (f *fakeJobStore) get(id string) *model.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func (f *fakeJobStore) Create(_ context.Context, bookID int64) (*model.RenderJob, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.mu.Lock()
	for _, id := range f.order {
		job := f.jobs[id]
		if job.BookID == bookID && job.Active() {
			f.mu.Unlock()
			return nil, data.ErrActiveJobExists
		}
	}
	f.mu.Unlock()

	job := f.addJob(bookID, model.JobStatusPending)
	return cloneJob(job), nil
}

func (f *fakeJobStore) LatestForBook(_ context.Context, bookID int64) (*model.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.order) - 1; i >= 0; i-- {
		job := f.jobs[f.order[i]]
		if job.BookID == bookID {
			return cloneJob(job), nil
		}
	}
	return nil, data.ErrJobNotFound
}

func (f *fakeJobStore) GetByID(_ context.Context, id string) (*model.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (f *fakeJobStore) ListByStatus(_ context.Context, status model.JobStatus, limit int) ([]*model.RenderJob, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*model.RenderJob
	for _, id := range f.order {
		job := f.jobs[id]
		if job.Status != status {
			continue
		}
		out = append(out, cloneJob(job))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobStore) Claim(_ context.Context, id string) (*model.RenderJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	if job.Status != model.JobStatusPending {
		return nil, data.ErrJobNotClaimable
	}

	started := time.Now().UTC()
	job.Status = model.JobStatusProcessing
	job.ProcessedPages = 0
	job.StartedAt = &started
	return cloneJob(job), nil
}

func (f *fakeJobStore) UpdateProgress(_ context.Context, id string, processedPages, totalPages int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok || job.Status != model.JobStatusProcessing {
		return data.ErrJobNotFound
	}
	if processedPages > job.ProcessedPages {
		job.ProcessedPages = processedPages
	}
	job.TotalPages = &totalPages
	f.progressLog[id] = append(f.progressLog[id], job.ProcessedPages)
	return nil
}

func (f *fakeJobStore) Complete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok || job.Status != model.JobStatusProcessing {
		return data.ErrJobNotFound
	}

	finished := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.FinishedAt = &finished
	job.ErrorMessage = nil
	f.completeCalls = append(f.completeCalls, id)
	return nil
}

func (f *fakeJobStore) Fail(_ context.Context, id, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[id]
	if !ok || job.Status.Terminal() {
		return data.ErrJobNotFound
	}

	finished := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.FinishedAt = &finished
	job.ErrorMessage = &errMsg
	f.failMessages[id] = errMsg
	return nil
}

func (f *fakeJobStore) Stats(_ context.Context) (*model.JobStats, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var s model.JobStats
	for _, id := range f.order {
		switch f.jobs[id].Status {
		case model.JobStatusPending:
			s.Pending++
		case model.JobStatusProcessing:
			s.Processing++
		case model.JobStatusCompleted:
			s.Completed++
		case model.JobStatusFailed:
			s.Failed++
		}
	}
	return &s, nil
}

func cloneJob(job *model.RenderJob) *model.RenderJob {
	c := *job
	return &c
}

// fakeBookStore is an in-memory book store recording SetPageImages calls.
type fakeBookStore struct {
	mu    sync.Mutex
	books map[int64]*model.Book

	setPrefix     string
	setCount      int
	setRenderedAt time.Time
	setCalls      int
}

func newFakeBookStore(books ...*model.Book) *fakeBookStore {
	f := &fakeBookStore{books: make(map[int64]*model.Book)}
	for _, b := range books {
		f.books[b.ID] = b
	}
	return f
}

func (f *fakeBookStore) GetByID(_ context.Context, id int64) (*model.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	book, ok := f.books[id]
	if !ok {
		return nil, data.ErrBookNotFound
	}
	c := *book
	return &c, nil
}

func (f *fakeBookStore) SetPageImages(_ context.Context, id int64, prefix string, count int, renderedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.books[id]; !ok {
		return data.ErrBookNotFound
	}
	f.setPrefix = prefix
	f.setCount = count
	f.setRenderedAt = renderedAt
	f.setCalls++
	return nil
}

// fakeObjectStore keeps objects in memory and records Put order.
type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putKeys []string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (f *fakeObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", key, errObjectMissing)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (f *fakeObjectStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
	f.types[key] = contentType
	f.putKeys = append(f.putKeys, key)
	return nil
}

var errObjectMissing = fmt.Errorf("object not found")

// fakeConverter writes canonically named page files without invoking any
// external tool. failPage makes RenderPage error on that page; skipPages makes
// it silently produce nothing, exercising the completeness re-scan.
type fakeConverter struct {
	pageCount    int
	pageCountErr error
	failPage     int
	skipPages    map[int]bool

	pageCountCalls int
	renderedPages  []int
}

func (f *fakeConverter) PageCount(_ context.Context, _ string) (int, error) {
	f.pageCountCalls++
	if f.pageCountErr != nil {
		return 0, f.pageCountErr
	}
	return f.pageCount, nil
}

func (f *fakeConverter) RenderPage(_ context.Context, _ string, page int, outDir string) (string, error) {
	if f.failPage != 0 && page == f.failPage {
		return "", fmt.Errorf("rasteriser exited with status 1")
	}
	f.renderedPages = append(f.renderedPages, page)

	path := filepath.Join(outDir, render.CanonicalPageName(page))
	if f.skipPages[page] {
		return path, nil
	}
	if err := os.WriteFile(path, []byte(fmt.Sprintf("jpeg-page-%d", page)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// fakeMetrics records emitted metrics by name.
type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		counts: make(map[string]int64),
		gauges: make(map[string]float64),
	}
}

func (f *fakeMetrics) Count(name string, value int64, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name] += value
}

func (f *fakeMetrics) Gauge(name string, value float64, _ map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gauges[name] = value
}

func (f *fakeMetrics) Timing(string, time.Duration, map[string]string) {}

type progressUpdate struct {
	jobID          string
	processedPages int
	totalPages     int
}

// fakeProgress records every published update.
type fakeProgress struct {
	mu      sync.Mutex
	updates []progressUpdate
}

func (f *fakeProgress) Publish(_ context.Context, job *model.RenderJob, processedPages, totalPages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, progressUpdate{
		jobID:          job.ID,
		processedPages: processedPages,
		totalPages:     totalPages,
	})
}
