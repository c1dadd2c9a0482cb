package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tutorhub/notify"
	"tutorhub/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// HandleEvents streams change signals as server-sent events. Each event
// only says that something changed; views re-fetch what they show.
func HandleEvents(n *notify.Notifier, keepAlive time.Duration) fiber.Handler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	return func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			// The request context is gone once the handler returns
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			metrics.StreamConnectionsActive.WithLabelValues("sse").Inc()
			defer metrics.StreamConnectionsActive.WithLabelValues("sse").Dec()

			signals := n.Signals(ctx)

			fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\"}\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()

			for {
				select {
				case sig, ok := <-signals:
					if !ok {
						return
					}
					data, err := json.Marshal(sig)
					if err != nil {
						continue
					}
					fmt.Fprintf(w, "event: change\ndata: %s\n\n", data)
					if err := w.Flush(); err != nil {
						return
					}

				case <-ticker.C:
					fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})

		return nil
	}
}
