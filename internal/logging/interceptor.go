package logging

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LineInterceptor prefixes each complete line written through it with a
// sequence number and a timestamp before passing it on. Partial lines are held
// back until their newline arrives or Close is called.
type LineInterceptor struct {
	mu     sync.Mutex
	target io.Writer
	seq    uint64
	buf    bytes.Buffer
	now    func() time.Time
}

func NewLineInterceptor(target io.Writer) *LineInterceptor {
	return &LineInterceptor{target: target, now: time.Now}
}

func (i *LineInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.buf.Write(p)
	for {
		idx := bytes.IndexByte(i.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(i.buf.Next(idx+1), []byte("\n"))
		if err := i.writeLine(bytes.TrimSuffix(line, []byte("\r"))); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (i *LineInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.buf.Len() == 0 {
		return nil
	}
	line := bytes.Clone(i.buf.Bytes())
	i.buf.Reset()
	return i.writeLine(line)
}

func (i *LineInterceptor) writeLine(line []byte) error {
	i.seq++
	prefix := slog.Uint64("line", i.seq).String() + " " +
		slog.String("time", i.now().Format(time.RFC3339)).String() + " "

	var out bytes.Buffer
	out.Grow(len(prefix) + len(line) + 1)
	out.WriteString(prefix)
	out.Write(line)
	out.WriteByte('\n')

	_, err := i.target.Write(out.Bytes())
	return err
}
