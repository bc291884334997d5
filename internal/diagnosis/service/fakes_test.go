package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/notification"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
)

// memStore is an in-memory stand-in for every store the pipeline uses.
type memStore struct {
	mu sync.Mutex

	nextID    int64
	diagnoses map[int64]*domain.Diagnosis
	photos    map[int64]*domain.OriginalPhoto
	files     map[string]*objectstore.FileMetadata
	analyzed  map[int64]*domain.AnalyzedPhoto
	diseases  []domain.AnalyzedPhotoDisease
	hives     map[int64]*domain.Beehive
	catalog   map[int64]domain.Disease

	failFailWrite bool
	claimedRuns   map[int64]bool
	events        []domain.StatusEvent
}

func newMemStore() *memStore {
	s := &memStore{
		nextID:      100,
		diagnoses:   map[int64]*domain.Diagnosis{},
		photos:      map[int64]*domain.OriginalPhoto{},
		files:       map[string]*objectstore.FileMetadata{},
		analyzed:    map[int64]*domain.AnalyzedPhoto{},
		hives:       map[int64]*domain.Beehive{},
		catalog:     map[int64]domain.Disease{},
		claimedRuns: map[int64]bool{},
	}
	for i, k := range domain.ReportableDiseases {
		id := int64(i + 1)
		s.catalog[id] = domain.Disease{ID: id, Name: k.Name, Stage: k.Stage}
	}
	return s
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) Catalog() *domain.Catalog {
	var ds []domain.Disease
	for _, d := range s.catalog {
		ds = append(ds, d)
	}
	c, err := domain.NewCatalog(ds)
	if err != nil {
		panic(err)
	}
	return c
}

// seed creates a hive owned by ownerID and a diagnosis with one WAITING photo
// per key, whose files are still pending.
func (s *memStore) seed(ownerID int64, keys ...string) (diagnosisID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hive := &domain.Beehive{ID: s.id(), OwnerID: ownerID, Name: "hive"}
	s.hives[hive.ID] = hive
	d := &domain.Diagnosis{ID: s.id(), BeehiveID: hive.ID, CreatedAt: time.Now()}
	s.diagnoses[d.ID] = d
	for _, k := range keys {
		f := &objectstore.FileMetadata{ID: s.id(), ObjectKey: k, Status: objectstore.FilePending}
		s.files[k] = f
		p := &domain.OriginalPhoto{ID: s.id(), DiagnosisID: d.ID, FileID: f.ID, ObjectKey: k, Status: domain.PhotoWaiting}
		s.photos[p.ID] = p
	}
	return d.ID
}

func (s *memStore) photoStatus(key string) domain.PhotoStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		if p.ObjectKey == key {
			return p.Status
		}
	}
	return ""
}

func (s *memStore) hive(id int64) domain.Beehive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.hives[id]
}

func (s *memStore) diagnosis(id int64) domain.Diagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.diagnoses[id]
}

func (s *memStore) analyzedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.analyzed)
}

// Transactor

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// DiagnosisStore

type diagnosisStore struct{ *memStore }

func (s diagnosisStore) Create(ctx context.Context, d *domain.Diagnosis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	d.CreatedAt = time.Now()
	cp := *d
	s.diagnoses[d.ID] = &cp
	return nil
}

func (s diagnosisStore) GetByID(ctx context.Context, id int64) (*domain.Diagnosis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.diagnoses[id]
	if !ok {
		return nil, domain.NotFound("diagnosis", id)
	}
	cp := *d
	return &cp, nil
}

func (s diagnosisStore) ClaimFinalization(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.diagnoses[id]
	if d.FinalizedAt != nil {
		return false, nil
	}
	now := time.Now()
	d.FinalizedAt = &now
	return true, nil
}

func (s diagnosisStore) SaveAggregate(ctx context.Context, id, imagoCount, larvaCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.diagnoses[id]
	d.ImagoCount = &imagoCount
	d.LarvaCount = &larvaCount
	return nil
}

// PhotoStore

type photoStore struct{ *memStore }

func (s photoStore) Create(ctx context.Context, p *domain.OriginalPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	cp := *p
	s.photos[p.ID] = &cp
	return nil
}

func (s photoStore) GetByObjectKey(ctx context.Context, key string) (*domain.OriginalPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.photos {
		if p.ObjectKey == key {
			cp := *p
			cp.FileStored = s.files[key].Status == objectstore.FileStored
			return &cp, nil
		}
	}
	return nil, domain.NotFound("original photo", key)
}

func (s photoStore) ListByDiagnosis(ctx context.Context, diagnosisID int64) ([]domain.OriginalPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OriginalPhoto
	for _, p := range s.photos {
		if p.DiagnosisID == diagnosisID {
			cp := *p
			cp.FileStored = s.files[p.ObjectKey].Status == objectstore.FileStored
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s photoStore) TransitionStatus(ctx context.Context, photoID int64, next domain.PhotoStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == domain.PhotoFail && s.failFailWrite {
		return false, errors.New("connection reset")
	}
	p, ok := s.photos[photoID]
	if !ok || !p.Status.CanTransitionTo(next) {
		return false, nil
	}
	p.Status = next
	return true, nil
}

func (s photoStore) MarkUnreceivedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, p := range s.photos {
		if p.Status == domain.PhotoWaiting && s.files[p.ObjectKey].Status == objectstore.FilePending {
			p.Status = domain.PhotoUnreceived
			if !seen[p.DiagnosisID] {
				seen[p.DiagnosisID] = true
				ids = append(ids, p.DiagnosisID)
			}
		}
	}
	return ids, nil
}

func (s photoStore) StatusesByDiagnoses(ctx context.Context, memberID int64, diagnosisIDs []int64) (map[int64][]domain.PhotoStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64][]domain.PhotoStatus{}
	for _, id := range diagnosisIDs {
		d, ok := s.diagnoses[id]
		if !ok || s.hives[d.BeehiveID].OwnerID != memberID {
			continue
		}
		for _, p := range s.photos {
			if p.DiagnosisID == id {
				out[id] = append(out[id], p.Status)
			}
		}
	}
	return out, nil
}

// AnalyzedPhotoStore

type analyzedStore struct{ *memStore }

func (s analyzedStore) Create(ctx context.Context, p *domain.AnalyzedPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.analyzed {
		if a.OriginalPhotoID == p.OriginalPhotoID {
			return fmt.Errorf("duplicate analyzed photo for %d", p.OriginalPhotoID)
		}
	}
	p.ID = s.id()
	cp := *p
	s.analyzed[p.ID] = &cp
	return nil
}

func (s analyzedStore) CreateDisease(ctx context.Context, d *domain.AnalyzedPhotoDisease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.diseases = append(s.diseases, *d)
	return nil
}

func (s analyzedStore) ListIDsByDiagnosis(ctx context.Context, diagnosisID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, a := range s.analyzed {
		if a.DiagnosisID == diagnosisID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s analyzedStore) SumDiseases(ctx context.Context, photoIDs []int64) (domain.DiseaseTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := map[int64]bool{}
	for _, id := range photoIDs {
		in[id] = true
	}
	totals := domain.DiseaseTotals{}
	for _, d := range s.diseases {
		if in[d.AnalyzedPhotoID] {
			totals[s.catalog[d.DiseaseID].Key()] += d.Count
		}
	}
	return totals, nil
}

func (s analyzedStore) SumCounts(ctx context.Context, photoIDs []int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var larva, imago int64
	for _, id := range photoIDs {
		if a, ok := s.analyzed[id]; ok {
			larva += a.LarvaCount
			imago += a.ImagoCount
		}
	}
	return larva, imago, nil
}

func (s analyzedStore) AnnotatedKeys(ctx context.Context, diagnosisID int64) (map[int64]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]string{}
	for _, a := range s.analyzed {
		if a.DiagnosisID != diagnosisID {
			continue
		}
		for k, f := range s.files {
			if f.ID == a.FileID {
				out[a.OriginalPhotoID] = k
			}
		}
	}
	return out, nil
}

// HiveStore

type hiveStore struct{ *memStore }

func (s hiveStore) GetByID(ctx context.Context, id int64) (*domain.Beehive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hives[id]
	if !ok {
		return nil, domain.NotFound("beehive", id)
	}
	cp := *h
	return &cp, nil
}

func (s hiveStore) SetInfected(ctx context.Context, id int64, infected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hives[id]
	if !ok {
		return domain.NotFound("beehive", id)
	}
	h.IsInfected = infected
	return nil
}

// FileStore and UploadSlotIssuer

type fileStore struct{ *memStore }

func (s fileStore) MarkStored(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key]
	if !ok || f.Status == objectstore.FileStored {
		return false, nil
	}
	f.Status = objectstore.FileStored
	return true, nil
}

func (s fileStore) ResolveStored(ctx context.Context, key, contentType string) (*objectstore.FileMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[key]; ok {
		f.Status = objectstore.FileStored
		cp := *f
		return &cp, nil
	}
	f := &objectstore.FileMetadata{ID: s.id(), ObjectKey: key, ContentType: contentType, Status: objectstore.FileStored}
	s.files[key] = f
	cp := *f
	return &cp, nil
}

func (s fileStore) IssueUploadSlot(ctx context.Context, filename, contentType string, expectedSize int64) (*objectstore.UploadSlot, error) {
	key, err := objectstore.NewObjectKey("diagnosis/origin/", filename)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &objectstore.FileMetadata{ID: s.id(), ObjectKey: key, OriginalFilename: filename, ContentType: contentType, Size: expectedSize, Status: objectstore.FilePending}
	s.files[key] = f
	cp := *f
	return &objectstore.UploadSlot{File: &cp, URL: "https://bucket.example/" + key + "?X-Amz-Signature=put", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (s fileStore) GetObjectURL(ctx context.Context, meta *objectstore.FileMetadata) (string, error) {
	return "https://bucket.example/" + meta.ObjectKey + "?X-Amz-Signature=get", nil
}

// RunClaimer

type runClaims struct{ *memStore }

func (s runClaims) Claim(ctx context.Context, diagnosisID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimedRuns[diagnosisID] {
		return false, nil
	}
	s.claimedRuns[diagnosisID] = true
	return true, nil
}

func (s runClaims) Release(ctx context.Context, diagnosisID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimedRuns, diagnosisID)
	return nil
}

// EventPublisher

type eventLog struct{ *memStore }

func (s eventLog) Publish(ctx context.Context, evt domain.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// fakeAnalyzer answers per object key; unknown keys fail as remote errors.
type fakeAnalyzer struct {
	mu      sync.Mutex
	results map[string]*domain.AnalysisResult
	errs    map[string]error
	calls   map[string]int
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		results: map[string]*domain.AnalysisResult{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, key string) (*domain.AnalysisResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[key]++
	if err, ok := a.errs[key]; ok {
		return nil, err
	}
	if r, ok := a.results[key]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, &domain.AnalysisError{Kind: domain.AnalysisRemote, StatusCode: 500, Err: errors.New("no result")}
}

func (a *fakeAnalyzer) callCount(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

// recordingNotifier counts notifications per member.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
	to   []int64
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, memberID int64, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	n.to = append(n.to, memberID)
	return n.err
}

func (n *recordingNotifier) messages() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.sent...)
}

// syncQueue finalizes on the caller's goroutine and counts enqueues.
type syncQueue struct {
	mu        sync.Mutex
	finalizer *Finalizer
	enqueued  []int64
}

func (q *syncQueue) Enqueue(ctx context.Context, diagnosisID int64) error {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, diagnosisID)
	q.mu.Unlock()
	if q.finalizer == nil {
		return nil
	}
	_, err := q.finalizer.FinishDiagnosis(ctx, diagnosisID)
	return err
}

func (q *syncQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued)
}

// pipeline wires the real services over the in-memory stores.
type pipeline struct {
	store        *memStore
	analyzer     *fakeAnalyzer
	notifier     *recordingNotifier
	queue        *syncQueue
	worker       *PhotoWorker
	orchestrator *Orchestrator
	finalizer    *Finalizer
	tracker      *UploadTracker
	service      *DiagnosisService
}

func newPipeline() *pipeline {
	s := newMemStore()
	p := &pipeline{
		store:    s,
		analyzer: newFakeAnalyzer(),
		notifier: &recordingNotifier{},
		queue:    &syncQueue{},
	}
	p.worker = NewPhotoWorker(PhotoWorkerDeps{
		Tx:       s,
		Photos:   photoStore{s},
		Analyzed: analyzedStore{s},
		Files:    fileStore{s},
		Analyzer: p.analyzer,
		Catalog:  s.Catalog(),
		Events:   eventLog{s},
	})
	p.finalizer = NewFinalizer(FinalizerDeps{
		Tx:        s,
		Diagnoses: diagnosisStore{s},
		Analyzed:  analyzedStore{s},
		Hives:     hiveStore{s},
		Notifier:  p.notifier,
		Events:    eventLog{s},
	})
	p.queue.finalizer = p.finalizer
	p.orchestrator = NewOrchestrator(OrchestratorDeps{
		Diagnoses:   diagnosisStore{s},
		Photos:      photoStore{s},
		Worker:      p.worker,
		Queue:       p.queue,
		MaxParallel: 4,
	})
	p.tracker = NewUploadTracker(photoStore{s}, fileStore{s}, runClaims{s}, p.orchestrator, nil)
	p.service = NewDiagnosisService(DiagnosisServiceDeps{
		Tx:        s,
		Diagnoses: diagnosisStore{s},
		Photos:    photoStore{s},
		Analyzed:  analyzedStore{s},
		Hives:     hiveStore{s},
		Slots:     fileStore{s},
	})
	return p
}

func healthyResult(annotated string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Larva:              domain.LarvaCounts{Normal: 100},
		Imago:              domain.ImagoCounts{Normal: 100},
		AnnotatedObjectKey: annotated,
	}
}

func (s *memStore) markStored(key string) error {
	_, err := fileStore{s}.MarkStored(context.Background(), key)
	return err
}
