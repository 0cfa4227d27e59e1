package core

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Printer serialises progress output. Download and install workers print
// concurrently; interleaved partial lines would corrupt the protocol the
// GUI parses, so every write goes through one mutex.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a printer writing to w; nil means stdout
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

// Printf writes one formatted line atomically
func (p *Printer) Printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Println writes the arguments followed by a newline atomically
func (p *Printer) Println(args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, args...)
}
