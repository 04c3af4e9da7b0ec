package field

import (
	"runtime"
	"sync"
)

// DefaultThreshold is the minimum row count to use the workers.
// Below this, the caller's goroutine is faster than dispatch overhead.
const DefaultThreshold = 32

// rowChunk is a contiguous range of rows for one worker.
type rowChunk struct {
	y0, y1 int
	fn     func(y0, y1 int)
}

// Pool runs row-partitioned update passes on persistent worker goroutines.
// Run is a full barrier: it returns only after every chunk has finished.
type Pool struct {
	numWorkers int
	threshold  int

	// Worker pool channels
	workChan chan rowChunk // sends work to workers
	doneChan chan struct{} // workers signal completion
	stopChan chan struct{} // signals workers to exit
	wg       sync.WaitGroup
	running  bool

	// mu serializes Run and Close.
	mu sync.Mutex
}

// NewPool creates a pool with the given worker count (0 = GOMAXPROCS) and
// row threshold (0 = DefaultThreshold). Workers start on first use.
func NewPool(workers, threshold int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Pool{numWorkers: workers, threshold: threshold}
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.numWorkers }

// startWorkers launches persistent worker goroutines.
func (p *Pool) startWorkers() {
	p.workChan = make(chan rowChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker processes chunks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case chunk := <-p.workChan:
			chunk.fn(chunk.y0, chunk.y1)
			p.doneChan <- struct{}{}
		}
	}
}

// Run splits [0, rows) into contiguous chunks, one per worker, and waits for
// all of them.
func (p *Pool) Run(rows int, fn func(y0, y1 int)) {
	if rows <= 0 {
		return
	}
	if rows < p.threshold || p.numWorkers == 1 {
		fn(0, rows)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		p.startWorkers()
	}

	chunkSize := (rows + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, rows)
		if start >= end {
			continue
		}
		p.workChan <- rowChunk{y0: start, y1: end, fn: fn}
		dispatched++
	}

	for i := 0; i < dispatched; i++ {
		<-p.doneChan
	}
}

// Close stops the workers. The pool can be reused; workers restart on the
// next Run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	close(p.stopChan)
	p.wg.Wait()
	p.running = false
}
