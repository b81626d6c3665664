package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fetch opens a CSV source. Sources are either http(s) URLs, matching the
// export links the dataset ships with, or paths to files on disk. The caller
// closes the returned reader.
func Fetch(ctx context.Context, client *http.Client, source string) (io.ReadCloser, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("fetch csv: empty source")
	}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchURL(ctx, client, source)
	}
	if strings.Contains(source, "://") {
		return nil, fmt.Errorf("fetch csv: unsupported source %q, expected an http(s) URL or a file path", source)
	}
	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	return file, nil
}

func fetchURL(ctx context.Context, client *http.Client, source string) (io.ReadCloser, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build csv request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download csv: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download csv: %s returned status %d", source, resp.StatusCode)
	}
	return resp.Body, nil
}
