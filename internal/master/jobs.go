package master

import "sync"

// Result is one agent's answer to a dispatched command.
type Result struct {
	Host   string
	RC     int
	Output string
	Optout bool
}

// Job tracks one client REQUEST's in-flight dispatch: which agents
// are expected to answer, and the results buffered for CHECK to drain
// one at a time.
type Job struct {
	Serial  string
	pending map[string]bool
	results []Result
}

func newJob(serial string, hosts []string) *Job {
	pending := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		pending[h] = true
	}
	return &Job{Serial: serial, pending: pending}
}

// Done reports whether every expected agent has answered and every
// buffered result has been drained.
func (j *Job) Done() bool {
	return len(j.pending) == 0 && len(j.results) == 0
}

// Jobs is the master's in-memory job table, keyed by serial. Jobs are
// created once per REQUEST and dropped once drained; nothing here is
// persisted across a restart, matching §5's "policies are created
// once per run and not retained" lifecycle note extended to jobs.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewJobs returns an empty job table.
func NewJobs() *Jobs {
	return &Jobs{jobs: map[string]*Job{}}
}

// Start creates a job expecting an answer from each of hosts.
func (j *Jobs) Start(serial string, hosts []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobs[serial] = newJob(serial, hosts)
}

// AddResult records host's answer against serial, if that job still
// exists and still expects an answer from host.
func (j *Jobs) AddResult(serial, host string, r Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[serial]
	if !ok {
		return
	}
	if !job.pending[host] {
		return
	}
	delete(job.pending, host)
	job.results = append(job.results, r)
}

// PopResult removes and returns the next buffered result for serial
// (ok reports whether there was one), whether the job is still pending
// (agents outstanding or results still buffered), and whether the job
// is known at all.
func (j *Jobs) PopResult(serial string) (r Result, ok, stillPending, known bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[serial]
	if !ok {
		return Result{}, false, false, false
	}
	if len(job.results) == 0 {
		if job.Done() {
			delete(j.jobs, serial)
		}
		return Result{}, false, len(job.pending) > 0, true
	}
	r = job.results[0]
	job.results = job.results[1:]
	return r, true, len(job.pending) > 0 || len(job.results) > 0, true
}
