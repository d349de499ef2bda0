// Package memory pools the buffers used for upstream response bodies.
package memory

import (
	"bytes"
	"io"
	"runtime"
	"sync"
)

// DefaultMaxPooledSize is the largest buffer returned to the pool.
const DefaultMaxPooledSize = 64 * 1024

// BufferPool manages a pool of reusable bytes.Buffer instances
type BufferPool struct {
	pool    sync.Pool
	maxSize int
}

// NewBufferPool creates a new buffer pool
func NewBufferPool() *BufferPool {
	return NewBufferPoolWithLimit(DefaultMaxPooledSize)
}

// NewBufferPoolWithLimit creates a pool that drops buffers grown past maxSize.
func NewBufferPoolWithLimit(maxSize int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &bytes.Buffer{}
			},
		},
		maxSize: maxSize,
	}
}

// Get retrieves an empty buffer from the pool
func (bp *BufferPool) Get() *bytes.Buffer {
	buf := bp.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool for reuse
func (bp *BufferPool) Put(buf *bytes.Buffer) {
	if buf.Cap() <= bp.maxSize {
		bp.pool.Put(buf)
	}
}

// ReadAll reads r through a pooled buffer and returns a copy of the bytes.
func (bp *BufferPool) ReadAll(r io.Reader) ([]byte, error) {
	buf := bp.Get()
	defer bp.Put(buf)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Stats is a snapshot of heap usage.
type Stats struct {
	AllocMB      int64 `json:"alloc_mb"`
	SysMB        int64 `json:"sys_mb"`
	NumGoroutine int   `json:"goroutines"`
}

// ReadStats returns current memory statistics
func ReadStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		AllocMB:      int64(m.Alloc) / (1024 * 1024),
		SysMB:        int64(m.Sys) / (1024 * 1024),
		NumGoroutine: runtime.NumGoroutine(),
	}
}
