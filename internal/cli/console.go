package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fpang/gemini-video-bot/internal/pipeline"
)

// ConsoleStatus is a pipeline.StatusChannel that prints status lines to a
// terminal. Every edit is printed as a new line.
type ConsoleStatus struct {
	mu   sync.Mutex
	out  io.Writer
	next pipeline.StatusRef
}

var _ pipeline.StatusChannel = (*ConsoleStatus)(nil)

func NewConsoleStatus(out io.Writer) *ConsoleStatus {
	return &ConsoleStatus{out: out}
}

func (c *ConsoleStatus) Post(_ context.Context, text string) (pipeline.StatusRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.out, text); err != nil {
		return 0, err
	}
	c.next++
	return c.next, nil
}

func (c *ConsoleStatus) Edit(_ context.Context, ref pipeline.StatusRef, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref != c.next {
		return fmt.Errorf("status line %d is no longer current", ref)
	}
	_, err := fmt.Fprintln(c.out, text)
	return err
}
