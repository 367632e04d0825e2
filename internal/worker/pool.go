package worker

import (
	"context"
	"hash/fnv"
	"log"
	"sync"
	"time"
)

// RetryPolicy bounds how often a failed job is re-run. Backoff is fixed,
// not exponential.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Job is one handler invocation. Jobs sharing a Key execute on the same
// worker in submission order, which preserves per-entity causal order.
type Job struct {
	Name  string
	Key   string
	Retry RetryPolicy
	Run   func(ctx context.Context) error
}

// FailureFunc receives jobs that exhausted their retry budget.
type FailureFunc func(job Job, err error)

// jobQueue is an unbounded FIFO owned by a single worker. It must never
// block the submitter: a job running on the owning worker may schedule
// follow-up work keyed to the same worker, and a bounded queue would
// deadlock the shard once full.
type jobQueue struct {
	mu     sync.Mutex
	ready  *sync.Cond
	jobs   []Job
	closed bool
}

func newJobQueue(capacity int) *jobQueue {
	q := &jobQueue{jobs: make([]Job, 0, capacity)}
	q.ready = sync.NewCond(&q.mu)
	return q
}

func (q *jobQueue) push(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	q.ready.Signal()
}

// pop blocks until a job is available. After close it keeps returning
// queued jobs until the queue drains, then reports done.
func (q *jobQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.jobs) == 0 && !q.closed {
		q.ready.Wait()
	}
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *jobQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.ready.Broadcast()
}

// Pool is the asynchronous execution stage behind the dispatch loop.
// Each worker owns one queue selected by hashing the job key.
type Pool struct {
	queues    []*jobQueue
	wg        sync.WaitGroup
	onFailure FailureFunc
}

// NewPool sizes the pool at `size` workers; queueDepth is the initial
// per-worker queue capacity, not a limit.
func NewPool(size, queueDepth int, onFailure FailureFunc) *Pool {
	if size <= 0 {
		size = 1
	}
	queues := make([]*jobQueue, size)
	for i := range queues {
		queues[i] = newJobQueue(queueDepth)
	}
	return &Pool{queues: queues, onFailure: onFailure}
}

// Start launches the workers. Cancelling ctx stops retry waits for new
// attempts, but an attempt already running is never interrupted: jobs
// see a detached context so in-flight transactions run to completion.
func (p *Pool) Start(ctx context.Context) {
	runCtx := context.WithoutCancel(ctx)
	for _, queue := range p.queues {
		p.wg.Add(1)
		go func(queue *jobQueue) {
			defer p.wg.Done()
			for {
				job, ok := queue.pop()
				if !ok {
					return
				}
				p.execute(runCtx, job)
			}
		}(queue)
	}
}

// Submit enqueues a job onto the queue owned by its key's worker. Never
// blocks, so jobs may submit follow-up work from inside the pool.
func (p *Pool) Submit(job Job) {
	p.queues[shard(job.Key, len(p.queues))].push(job)
}

// Shutdown drains: no new jobs should be submitted, queued jobs run
// (including follow-ups they enqueue), then all workers exit.
func (p *Pool) Shutdown() {
	for _, queue := range p.queues {
		queue.close()
	}
	p.wg.Wait()
}

func (p *Pool) execute(ctx context.Context, job Job) {
	maxAttempts := job.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = job.Run(ctx); err == nil {
			return
		}
		if attempt < maxAttempts {
			log.Printf("Job %s (key=%s) attempt %d/%d failed: %v, retrying in %s",
				job.Name, job.Key, attempt, maxAttempts, err, job.Retry.Backoff)
			time.Sleep(job.Retry.Backoff)
		}
	}
	log.Printf("Job %s (key=%s) permanently failed after %d attempts: %v",
		job.Name, job.Key, maxAttempts, err)
	if p.onFailure != nil {
		p.onFailure(job, err)
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
