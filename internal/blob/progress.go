package blob

import (
	"io"
	"sync"
)

// progressReader reports the share of size read so far. Reported values
// never decrease, even when the SDK rewinds the body to retry.
type progressReader struct {
	r    io.ReadSeeker
	size int64
	read int64
	fn   func(float64)
	mu   sync.Mutex
	last float64
}

func newProgressReader(r io.ReadSeeker, size int64, fn func(float64)) *progressReader {
	return &progressReader{r: r, size: size, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.read += int64(n)
		p.report()
		p.mu.Unlock()
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.mu.Lock()
		p.read = pos
		p.mu.Unlock()
	}
	return pos, err
}

func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.read = p.size
	p.report()
}

func (p *progressReader) report() {
	if p.fn == nil || p.size <= 0 {
		return
	}
	pct := float64(p.read) / float64(p.size) * 100
	if pct > 100 {
		pct = 100
	}
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
