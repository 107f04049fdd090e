package ranking

import (
	"fmt"
	"io"
	"time"
)

// progress writes human-readable refresh steps. A nil writer is silent.
type progress struct {
	w io.Writer
}

func (p progress) printf(format string, args ...any) {
	if p.w == nil {
		return
	}
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p progress) start(label string) {
	p.printf("%s...", label)
}

func (p progress) done(d time.Duration) {
	p.printf(" done (%.3f sec)\n", d.Seconds())
}

func (p progress) failed(d time.Duration) {
	p.printf(" failed (%.3f sec)\n", d.Seconds())
}
