package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/cli/askdbctl"
)

const defaultTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := askdbctl.Run(ctx, os.Args[1:], optionsFromEnv())
	stop()
	os.Exit(code)
}

func optionsFromEnv() askdbctl.Options {
	opts := askdbctl.Options{
		BaseURL: "http://localhost:8080",
		APIKey:  strings.TrimSpace(os.Getenv("ASKDB_API_KEY")),
		Timeout: defaultTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	if url := strings.TrimSpace(os.Getenv("ASKDB_API_URL")); url != "" {
		opts.BaseURL = url
	}
	if raw := strings.TrimSpace(os.Getenv("ASKDB_CLI_TIMEOUT")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid ASKDB_CLI_TIMEOUT %q; using %s\n", raw, defaultTimeout)
		} else {
			opts.Timeout = parsed
		}
	}
	return opts
}
