package supervisor

import (
	"bytes"
	"strings"
	"sync"
)

// outputTail keeps the last N lines written to it. The backend's stdout and
// stderr are copied here instead of the shell's own console.
type outputTail struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

func newOutputTail(maxLines int) *outputTail {
	if maxLines <= 0 {
		maxLines = 64
	}
	return &outputTail{max: maxLines}
}

func (t *outputTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := append(t.partial, p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		t.push(strings.TrimRight(string(data[:idx]), "\r"))
		data = data[idx+1:]
	}
	t.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (t *outputTail) push(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// String returns the retained lines, including an unterminated final line.
func (t *outputTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	if len(t.partial) > 0 {
		lines = append(append([]string(nil), lines...), string(t.partial))
	}
	return strings.Join(lines, "\n")
}
