package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpserver "github.com/miporis/compliance-evaluator/internal/adapter/httpserver"
	"github.com/miporis/compliance-evaluator/internal/config"
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ReadinessDeps are the dependencies probed by /readyz. Nil optional
// dependencies are skipped; a nil DB is reported as not configured.
type ReadinessDeps struct {
	DB     Pinger
	Redis  Pinger
	Tika   Pinger
	Blobs  Pinger
	Events Pinger
}

// BuildReadinessChecks returns the checks for every configured dependency.
func BuildReadinessChecks(cfg config.Config, deps ReadinessDeps) []httpserver.ReadinessCheck {
	checks := []httpserver.ReadinessCheck{{
		Name: "db",
		Check: func(ctx context.Context) error {
			if deps.DB == nil {
				return fmt.Errorf("db not configured")
			}
			return deps.DB.Ping(ctx)
		},
	}}
	if cfg.RedisEnabled() && deps.Redis != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: deps.Redis.Ping})
	}
	if cfg.TikaEnabled() && deps.Tika != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "tika", Check: deps.Tika.Ping})
	}
	if cfg.UnstructuredEnabled() {
		base := strings.TrimRight(cfg.UnstructuredURL, "/")
		checks = append(checks, httpserver.ReadinessCheck{Name: "unstructured", Check: httpCheck("unstructured", base+"/healthcheck")})
	}
	if deps.Blobs != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "blobs", Check: deps.Blobs.Ping})
	}
	if cfg.EventsEnabled() && deps.Events != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "events", Check: deps.Events.Ping})
	}
	return checks
}

func httpCheck(name, url string) func(ctx context.Context) error {
	client := &http.Client{Timeout: 2 * time.Second}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("%s status %d", name, resp.StatusCode)
	}
}
