package ingestion

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// progress writes a single, rewritten status line while a run commits files.
// Only the committer goroutine updates it, the mutex guards Elapsed readers.
type progress struct {
	w       io.Writer
	total   int
	done    int
	failed  int
	chunks  int
	start   time.Time
	running bool
	mu      sync.Mutex
}

func newProgress(w io.Writer, total int) *progress {
	if w == nil {
		w = io.Discard
	}
	return &progress{w: w, total: total}
}

func (p *progress) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.running = true
	p.done, p.failed, p.chunks = 0, 0, 0
}

// committed counts a file whose chunks reached the index.
func (p *progress) committed(chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done++
	p.chunks += chunks
	p.print()
}

// failed counts a file that was not ingested.
func (p *progress) failedFile() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.done++
	p.failed++
	p.print()
}

func (p *progress) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.print()
	fmt.Fprintln(p.w)
	p.running = false
}

func (p *progress) elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	return time.Since(p.start)
}

// print must be called with the lock held.
func (p *progress) print() {
	done := min(p.done, p.total)
	pct := 100.0
	if p.total > 0 {
		pct = float64(done) / float64(p.total) * 100.0
	}
	rate := 0.0
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		rate = float64(p.chunks) / secs
	}
	fmt.Fprintf(p.w, "\rfiles %d/%d (%.1f%%), %d failed, %d chunks, %.1f chunks/s",
		done, p.total, pct, p.failed, p.chunks, rate)
}
