package upload

import (
	"io"
)

// ProgressReader reports how much of an io.Reader has been consumed as a
// percentage of size. It stops at 99 because bytes handed to the transport
// are not yet accepted by the server; Finish supplies the final 100.
type ProgressReader struct {
	r      io.Reader
	size   int64
	read   int64
	last   int
	report func(percent float64)
}

// NewProgressReader wraps r. A non-positive size disables reporting.
func NewProgressReader(r io.Reader, size int64, report func(percent float64)) *ProgressReader {
	return &ProgressReader{r: r, size: size, last: -1, report: report}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.size > 0 && n > 0 {
		pct := min(float64(p.read)*100/float64(p.size), 99)
		if int(pct) != p.last {
			p.last = int(pct)
			p.report(pct)
		}
	}
	return n, err
}

// BytesRead returns the number of bytes consumed so far
func (p *ProgressReader) BytesRead() int64 {
	return p.read
}
