package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/nimbusdrive/file-service/internal/blob"
	"github.com/nimbusdrive/file-service/internal/metadata"
	"github.com/nimbusdrive/file-service/internal/models"
	"github.com/nimbusdrive/file-service/internal/queue"
)

// fakeStore is an in-memory metadata.Store with failure injection.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	files map[string]*models.FileRecord

	addStorageCalls int

	failCreateFile error
	failDeleteFile error
	failAddStorage error
	failMarkPresent error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]*models.User),
		files: make(map[string]*models.FileRecord),
	}
}

func (s *fakeStore) putUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *fakeStore) fileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *fakeStore) CreateFile(_ context.Context, rec *models.FileRecord) error {
	if s.failCreateFile != nil {
		return s.failCreateFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.files[rec.ID] = &cp
	return nil
}

func (s *fakeStore) FindFile(_ context.Context, id, ownerID string) (*models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, metadata.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) ListFiles(_ context.Context, ownerID string, folderID *string) ([]models.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FileRecord
	for _, rec := range s.files {
		if rec.OwnerID != ownerID {
			continue
		}
		if folderID != nil && (rec.FolderID == nil || *rec.FolderID != *folderID) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *fakeStore) DeleteFile(_ context.Context, id, ownerID string) error {
	if s.failDeleteFile != nil {
		return s.failDeleteFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok || rec.OwnerID != ownerID {
		return metadata.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

func (s *fakeStore) MarkFilePresent(ctx context.Context, id string) (bool, error) {
	if s.failMarkPresent != nil {
		return false, s.failMarkPresent
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok || rec.Status != models.StatusProcessing {
		return false, nil
	}
	rec.Status = models.StatusPresent
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *fakeStore) MarkFileFailed(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.files[id]
	if !ok || rec.Status != models.StatusProcessing {
		return nil
	}
	rec.Status = models.StatusFailed
	return nil
}

func (s *fakeStore) TouchFileAccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.files[id]; ok {
		rec.DownloadCount++
		now := time.Now()
		rec.LastAccessedAt = &now
	}
	return nil
}

func (s *fakeStore) FindUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, metadata.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) AddStorageUsed(_ context.Context, ownerID string, delta int64) error {
	if s.failAddStorage != nil {
		return s.failAddStorage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[ownerID]
	if !ok {
		return metadata.ErrNotFound
	}
	u.StorageUsed += delta
	s.addStorageCalls++
	return nil
}

func (s *fakeStore) ReleaseStorageUsed(_ context.Context, ownerID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[ownerID]
	if !ok {
		return metadata.ErrNotFound
	}
	u.StorageUsed -= delta
	if u.StorageUsed < 0 {
		u.StorageUsed = 0
	}
	return nil
}

var _ metadata.Store = (*fakeStore)(nil)

// memBlob is an in-memory blob.Store. blockPut parks Put until the context
// expires; onPut runs after a successful write, for injecting races.
type memBlob struct {
	mu       sync.Mutex
	objects  map[string][]byte
	ctypes   map[string]string
	puts     int
	failPut  error
	blockPut bool
	onPut    func()
}

func newMemBlob() *memBlob {
	return &memBlob{
		objects: make(map[string][]byte),
		ctypes:  make(map[string]string),
	}
}

func (b *memBlob) Name() string { return "mem" }

func (b *memBlob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if b.blockPut {
		<-ctx.Done()
		return ctx.Err()
	}
	if b.failPut != nil {
		return b.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.objects[key] = data
	b.ctypes[key] = contentType
	b.puts++
	b.mu.Unlock()
	if b.onPut != nil {
		b.onPut()
	}
	return nil
}

func (b *memBlob) Get(_ context.Context, key string) (io.ReadCloser, blob.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, blob.ObjectInfo{}, blob.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), blob.ObjectInfo{
		Size:        int64(len(data)),
		ContentType: b.ctypes[key],
	}, nil
}

func (b *memBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memBlob) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

func (b *memBlob) Stat(_ context.Context, key string) (blob.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return blob.ObjectInfo{}, blob.ErrNotExist
	}
	return blob.ObjectInfo{Size: int64(len(data)), ContentType: b.ctypes[key]}, nil
}

func (b *memBlob) PublicURL(context.Context, string, time.Duration) (string, error) {
	return "", blob.ErrNoPublicURL
}

func (b *memBlob) object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

var _ blob.Store = (*memBlob)(nil)

// fakeQueue records published jobs.
type fakeQueue struct {
	mu          sync.Mutex
	jobs        []models.UploadJob
	failPublish error
}

func (q *fakeQueue) Publish(_ context.Context, job models.UploadJob) (string, error) {
	if q.failPublish != nil {
		return "", q.failPublish
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return job.JobID, nil
}

var _ queue.Publisher = (*fakeQueue)(nil)

// fakeDelivery records how the worker settled a delivery.
type fakeDelivery struct {
	job      models.UploadJob
	attempts int

	acked   bool
	retried bool
	termed  bool
}

func (d *fakeDelivery) Job() models.UploadJob { return d.job }

func (d *fakeDelivery) Attempts() int {
	if d.attempts == 0 {
		return 1
	}
	return d.attempts
}

func (d *fakeDelivery) Ack() error                  { d.acked = true; return nil }
func (d *fakeDelivery) Retry(_ time.Duration) error { d.retried = true; return nil }
func (d *fakeDelivery) Term() error                 { d.termed = true; return nil }

var _ queue.Delivery = (*fakeDelivery)(nil)

// fakeConsumer replays a fixed set of deliveries.
type fakeConsumer struct {
	maxAttempts int
}

func (c *fakeConsumer) Fetch(ctx context.Context) (queue.Delivery, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConsumer) MaxAttempts() int {
	if c.maxAttempts == 0 {
		return 5
	}
	return c.maxAttempts
}

var _ queue.Consumer = (*fakeConsumer)(nil)

// erroringConsumer fails every fetch, counting the attempts.
type erroringConsumer struct {
	mu    sync.Mutex
	calls int
}

func (c *erroringConsumer) Fetch(ctx context.Context) (queue.Delivery, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("consumer subscription invalid")
}

func (c *erroringConsumer) MaxAttempts() int { return 5 }

func (c *erroringConsumer) fetchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var _ queue.Consumer = (*erroringConsumer)(nil)

// recordingPublisher captures emitted events.
type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}
