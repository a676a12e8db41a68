package backfill

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"embedfill/internal/adapter/outbound/embeddings/simple"
	"embedfill/internal/domain/entity"
	"embedfill/internal/domain/valueobject"
	"embedfill/internal/port/outbound"
)

type storedRecord struct {
	content   string
	processed bool
	embedding valueobject.Embedding
}

// memoryStore is an in-memory RecordStore keyed by id.
type memoryStore struct {
	mu      sync.Mutex
	records map[int64]*storedRecord

	fetchLimits   []int
	fetchExcludes [][]int64
	fetchErrs     []error // consumed one per fetch call
	markCalls     []int64

	failAlways map[int64]bool
	failTimes  map[int64]int // remaining failures per id
	writeDelay time.Duration

	inFlight    int
	maxInFlight int
	perIDFlight map[int64]int
	overlapped  bool
}

func newMemoryStore(contents map[int64]string) *memoryStore {
	s := &memoryStore{
		records:     make(map[int64]*storedRecord),
		failAlways:  make(map[int64]bool),
		failTimes:   make(map[int64]int),
		perIDFlight: make(map[int64]int),
	}
	for id, c := range contents {
		s.records[id] = &storedRecord{content: c}
	}
	return s
}

func (s *memoryStore) FetchUnprocessed(_ context.Context, limit int, exclude []int64) ([]entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchLimits = append(s.fetchLimits, limit)
	s.fetchExcludes = append(s.fetchExcludes, append([]int64(nil), exclude...))
	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	ids := make([]int64, 0, len(s.records))
	for id, r := range s.records {
		if !r.processed && !slices.Contains(exclude, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]entity.Record, len(ids))
	for i, id := range ids {
		out[i] = entity.NewUnprocessedRecord(id, s.records[id].content)
	}
	return out, nil
}

func (s *memoryStore) MarkProcessed(_ context.Context, id int64, emb valueobject.Embedding) error {
	s.mu.Lock()
	s.markCalls = append(s.markCalls, id)
	s.inFlight++
	s.maxInFlight = max(s.maxInFlight, s.inFlight)
	s.perIDFlight[id]++
	if s.perIDFlight[id] > 1 {
		s.overlapped = true
	}
	s.mu.Unlock()

	if s.writeDelay > 0 {
		time.Sleep(s.writeDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.perIDFlight[id]--

	if s.failAlways[id] {
		return errors.New("value too long for type vector(3)")
	}
	if s.failTimes[id] > 0 {
		s.failTimes[id]--
		return errors.New("connection reset by peer")
	}
	r, ok := s.records[id]
	if !ok || r.processed {
		return errors.New("not found")
	}
	r.processed = true
	r.embedding = emb
	return nil
}

func (s *memoryStore) record(id int64) storedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.records[id]
}

func (s *memoryStore) unprocessed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, r := range s.records {
		if !r.processed {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// recordingProvider wraps the deterministic generator and records calls.
type recordingProvider struct {
	mu    sync.Mutex
	gen   *simple.Generator
	calls [][]string
	errs  []error // consumed one per call
	short bool    // drop the last embedding
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{gen: simple.New(3)}
}

func (p *recordingProvider) Encode(ctx context.Context, texts []string) ([]valueobject.Embedding, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]string(nil), texts...))
	var err error
	if len(p.errs) > 0 {
		err = p.errs[0]
		p.errs = p.errs[1:]
	}
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out, err := p.gen.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	if p.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (p *recordingProvider) expected(text string) valueobject.Embedding {
	out, _ := p.gen.Encode(context.Background(), []string{text})
	return out[0]
}

// recordingReporter keeps every report and can run a hook per batch.
type recordingReporter struct {
	mu      sync.Mutex
	batches []outbound.BatchProgress
	done    []outbound.RunSummary
	onBatch func(outbound.BatchProgress)
	err     error
}

func (r *recordingReporter) ReportBatch(_ context.Context, p outbound.BatchProgress) error {
	r.mu.Lock()
	r.batches = append(r.batches, p)
	hook := r.onBatch
	r.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return r.err
}

func (r *recordingReporter) ReportDone(_ context.Context, s outbound.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, s)
	return r.err
}
