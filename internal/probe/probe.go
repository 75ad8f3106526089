// Package probe checks that the services the portfolio depends on are reachable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultTimeout bounds each individual check
const DefaultTimeout = 5 * time.Second

// Check is one connectivity test
type Check interface {
	Name() string
	Run(ctx context.Context) error
}

// MongoCheck connects to a MongoDB deployment and pings the primary
type MongoCheck struct {
	URI string
}

func (c MongoCheck) Name() string { return "MongoDB" }

func (c MongoCheck) Run(ctx context.Context) error {
	if c.URI == "" {
		return errors.New("MONGODB_URI is not set")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			slog.Debug("MongoDB disconnect failed", "err", err)
		}
	}()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// HTTPCheck requests a health endpoint and expects a 2xx response
type HTTPCheck struct {
	URL    string
	Client *http.Client
}

func (c HTTPCheck) Name() string { return "API health" }

func (c HTTPCheck) Run(ctx context.Context) error {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Run executes checks in order, printing one line per check.
// It reports whether every check passed.
func Run(ctx context.Context, w io.Writer, timeout time.Duration, checks ...Check) bool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ok := true
	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := check.Run(checkCtx)
		cancel()

		if err != nil {
			ok = false
			fmt.Fprintf(w, "❌ %s: %v\n", check.Name(), err)
			slog.Debug("Check failed", "check", check.Name(), "elapsed", time.Since(start), "err", err)
			continue
		}
		fmt.Fprintf(w, "✅ %s\n", check.Name())
		slog.Debug("Check passed", "check", check.Name(), "elapsed", time.Since(start))
	}
	return ok
}
