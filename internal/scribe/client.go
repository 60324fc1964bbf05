package scribe

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileClient appends messages as lines to <dir>/<category>.jsonl.
// It is safe for concurrent use.
type FileClient struct {
	dir string
	mu  sync.Mutex
}

// NewFileClient creates dir if needed and returns a client writing into it.
func NewFileClient(dir string) (*FileClient, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("scribe dir: %w", err)
	}
	return &FileClient{dir: dir}, nil
}

// Offer implements Client.
func (c *FileClient) Offer(ctx context.Context, category string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if category == "" || strings.ContainsAny(category, `/\`) || category == "." || category == ".." {
		return fmt.Errorf("invalid category %q", category)
	}
	if bytes.IndexByte(message, '\n') >= 0 {
		return fmt.Errorf("message for %s contains a newline", category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(c.dir, category+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(slices.Clone(message), '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// MemoryClient keeps messages in memory, for tests and dry runs.
type MemoryClient struct {
	mu       sync.Mutex
	messages map[string][][]byte
	err      error
}

// NewMemoryClient returns an empty MemoryClient.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{messages: make(map[string][][]byte)}
}

// FailWith makes every later Offer return err. Pass nil to recover.
func (c *MemoryClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Offer implements Client.
func (c *MemoryClient) Offer(_ context.Context, category string, message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages[category] = append(c.messages[category], slices.Clone(message))
	return nil
}

// Messages returns the messages offered to category, in arrival order.
func (c *MemoryClient) Messages(category string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages[category])
}
