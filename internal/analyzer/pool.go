package analyzer

import (
	"runtime"
	"sync"
)

type hashJob struct {
	index int
	path  string
	size  int64
}

type hashResult struct {
	index int
	hash  string
	err   error
}

// hashPool runs digests on a fixed number of workers.
//
// Jobs are handed over unbuffered so the submitter blocks until a worker is
// free and can check for cancellation between submissions. Results are
// buffered for every job, so workers never block on a reader that has
// stopped listening.
type hashPool struct {
	jobs    chan hashJob
	results chan hashResult
	wg      sync.WaitGroup
}

func poolSize(maxWorkers int) int {
	n := runtime.GOMAXPROCS(0)
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

func newHashPool(workers, capacity int, s sampler) *hashPool {
	p := &hashPool{
		jobs:    make(chan hashJob),
		results: make(chan hashResult, capacity),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				hash, err := s.digest(job.path, job.size)
				p.results <- hashResult{index: job.index, hash: hash, err: err}
			}
		}()
	}
	return p
}

func (p *hashPool) submit(job hashJob) {
	p.jobs <- job
}

// close stops accepting jobs. Workers exit after their current job.
func (p *hashPool) close() {
	close(p.jobs)
}

// wait blocks until every submitted job has a result.
func (p *hashPool) wait() {
	p.wg.Wait()
}

// drain returns the results that are ready without blocking.
func (p *hashPool) drain() []hashResult {
	var out []hashResult
	for {
		select {
		case r := <-p.results:
			out = append(out, r)
		default:
			return out
		}
	}
}
