// Package monitoring assembles the health checks served by the admin API.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lewisedginton/bot_manager_console/pkg/health"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// matrixVersionsPath is served by every Matrix homeserver without auth.
const matrixVersionsPath = "/_matrix/client/versions"

// Config holds configuration for the health checks
type Config struct {
	Logger logger.Logger
	// HomeserverURL adds a reachability check for the Matrix homeserver.
	HomeserverURL    string
	HTTPClient       *http.Client
	Timeout          time.Duration // Health check timeout
	FailureThreshold int           // Consecutive failures before reporting unhealthy
}

// NewChecker creates a checker with the process check plus the configured
// dependency checks. Callers may Add more.
func NewChecker(cfg Config) *health.Checker {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 3
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	checker := health.New(
		health.WithLogger(log),
		health.WithTimeout(timeout),
		health.WithFailureThreshold(failureThreshold),
	)

	checker.Add(health.NewCheckFunc("process", func(context.Context) error {
		return nil
	}))

	if cfg.HomeserverURL != "" {
		client := cfg.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		url := strings.TrimRight(cfg.HomeserverURL, "/") + matrixVersionsPath
		checker.Add(health.NewCheckFunc("matrix_homeserver", httpCheck(client, url)))
	}

	return checker
}

func httpCheck(client *http.Client, url string) func(context.Context) error {
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
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%s returned %d", url, resp.StatusCode)
		}
		return nil
	}
}
