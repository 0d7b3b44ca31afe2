package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sakif/birthday-reminder/internal/model"
)

// Console writes one line per notification, prefixed with its date.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w (usually os.Stdout).
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Name implements Named.
func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, n model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "[%s] %s\n", n.Date.Format(model.DateLayout), Text(n))
	if err != nil {
		return fmt.Errorf("notify/console: %w", err)
	}
	return nil
}
