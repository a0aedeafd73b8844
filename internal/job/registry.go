package job

import (
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultShards = 32

type entry struct {
	mu  sync.Mutex
	job Job
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Registry keeps jobs in memory. Entries are spread across shards so that
// lookups for unrelated jobs do not contend, and every entry carries its own
// lock so that updates to different jobs never block each other.
type Registry struct {
	shards []*shard
	now    func() time.Time
}

func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}

	r := &Registry{
		shards: make([]*shard, shards),
		now:    time.Now,
	}

	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}

	return r
}

// Create inserts a new job in the created state and returns a snapshot of it.
func (r *Registry) Create(sourceURL, requestedFormat, qualityLabel string) Job {
	for {
		id := uuid.NewString()
		s := r.shardFor(id)

		s.mu.Lock()
		if _, exists := s.entries[id]; exists {
			s.mu.Unlock()

			continue
		}

		e := &entry{job: Job{
			ID:              id,
			State:           StateCreated,
			SourceURL:       sourceURL,
			RequestedFormat: requestedFormat,
			QualityLabel:    qualityLabel,
			CreatedAt:       r.now(),
		}}
		s.entries[id] = e
		s.mu.Unlock()

		return e.job
	}
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.job, nil
}

// Update applies fn to the job while holding its lock. If fn returns an error
// the job is left untouched. The returned snapshot reflects the job after the
// call.
func (r *Registry) Update(id string, fn func(j *Job, now time.Time) error) (Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.job
	if err := fn(&working, r.now()); err != nil {
		return e.job, err
	}

	e.job = working

	return e.job, nil
}

// Count returns how many jobs are in one of the given states, or all jobs when
// no state is given.
func (r *Registry) Count(states ...State) int {
	var n int

	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if len(states) == 0 {
				n++

				continue
			}

			e.mu.Lock()
			st := e.job.State
			e.mu.Unlock()

			if slices.Contains(states, st) {
				n++
			}
		}
		s.mu.RUnlock()
	}

	return n
}

// Evict removes terminal jobs that finished before the cutoff and returns how
// many were removed. Running jobs are never evicted.
func (r *Registry) Evict(cutoff time.Time) int {
	var removed int

	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			e.mu.Lock()
			expired := e.job.State.IsTerminal() && e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff)
			e.mu.Unlock()

			if expired {
				delete(s.entries, id)

				removed++
			}
		}
		s.mu.Unlock()
	}

	return removed
}

func (r *Registry) lookup(id string) (*entry, bool) {
	s := r.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]

	return e, ok
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return r.shards[h.Sum32()%uint32(len(r.shards))]
}
