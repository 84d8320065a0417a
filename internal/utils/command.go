package utils

import (
	"bytes"
	"os/exec"
	"sync"
)

// SafeCommand wraps exec.Cmd and keeps the child's stderr so a crashed sidecar can be
// diagnosed after the fact.
type SafeCommand struct {
	*exec.Cmd
	stderr *syncBuffer
}

func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, stderr: stderr}
}

// StderrTail returns at most the last n bytes the child wrote to stderr.
func (s *SafeCommand) StderrTail(n int) string {
	return s.stderr.tail(n)
}

// syncBuffer is written by the exec copier goroutine and read by callers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const maxStderr = 64 << 10

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, err := b.buf.Write(p)
	if b.buf.Len() > maxStderr {
		b.buf.Next(b.buf.Len() - maxStderr)
	}
	return n, err
}

func (b *syncBuffer) tail(n int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf.Bytes()
	if len(data) > n {
		data = data[len(data)-n:]
	}
	return string(data)
}
