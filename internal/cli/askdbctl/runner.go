// Package askdbctl implements the askdbctl command: a thin HTTP client for
// the askdb API, handy for smoke checks and one-off maintenance runs.
package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// command maps one CLI verb to an API call. path is the request target for
// fixed commands and the display form for commands whose build func derives
// the real path and body from positional arguments.
type command struct {
	name   string
	args   string
	method string
	path   string
	build  func(rest []string, reset bool) (string, any, error)
}

var commands = []command{
	{name: "health", method: http.MethodGet, path: "/v1/health"},
	{name: "ready", method: http.MethodGet, path: "/v1/ready"},
	{name: "status", method: http.MethodGet, path: "/v1/status"},
	{name: "tables", method: http.MethodGet, path: "/v1/tables"},
	{name: "schema", method: http.MethodGet, path: "/v1/ui/schema"},
	{name: "ask", args: "<question>", method: http.MethodPost, path: "/v1/ask",
		build: questionBody("/v1/ask", "ask needs a question, e.g. askdbctl ask what are the total sales")},
	{name: "translate", args: "<question>", method: http.MethodPost, path: "/v1/query/translate",
		build: questionBody("/v1/query/translate", "translate needs a question")},
	{name: "query", args: "<sql>", method: http.MethodPost, path: "/v1/query", build: sqlBody},
	{name: "ingest", args: "<table> <source>", method: http.MethodPost, path: "/v1/ingest/{table}", build: ingestBody},
	{name: "vacuum-run", method: http.MethodPost, path: "/v1/vacuum/run"},
	{name: "snapshot-run", method: http.MethodPost, path: "/v1/snapshot/run"},
	{name: "backup-run", method: http.MethodPost, path: "/v1/backup/run"},
	{name: "retention-run", method: http.MethodPost, path: "/v1/retention/run"},
	{name: "integrity-run", method: http.MethodPost, path: "/v1/integrity/run"},
}

// Run executes one CLI invocation and returns the process exit code:
// 0 on success, 1 on request or API failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	out, errOut := defaults.Stdout, defaults.Stderr
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	base := strings.TrimSpace(defaults.BaseURL)
	if base == "" {
		base = "http://localhost:8080"
	}
	wait := defaults.Timeout
	if wait <= 0 {
		wait = 30 * time.Second
	}

	fs := flag.NewFlagSet("askdbctl", flag.ContinueOnError)
	fs.SetOutput(errOut)
	baseURL := fs.String("base-url", base, "askdb API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", wait, "HTTP timeout (e.g. 30s)")
	reset := fs.Bool("reset", false, "replace existing rows (ingest only)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(errOut)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := lookupCommand(name)
	if !ok {
		_, _ = fmt.Fprintf(errOut, "unknown command %q\n\n", name)
		writeUsage(errOut)
		return 2
	}

	reqPath := cmd.path
	var body any
	if cmd.build != nil {
		var err error
		reqPath, body, err = cmd.build(fs.Args()[1:], *reset)
		if err != nil {
			_, _ = fmt.Fprintln(errOut, err)
			return 2
		}
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	status, reply, err := call(ctx, client, apiRequest{
		method: cmd.method,
		url:    strings.TrimRight(*baseURL, "/") + reqPath,
		apiKey: *apiKey,
		body:   body,
	})
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "request failed: %v\n", err)
		return 1
	}
	if status >= 400 {
		_, _ = fmt.Fprintf(errOut, "http %d: %s\n", status, strings.TrimSpace(string(reply)))
		return 1
	}

	if name == "ask" && printAnswer(out, reply) {
		return 0
	}
	printReply(out, reply)
	return 0
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func questionBody(path, hint string) func([]string, bool) (string, any, error) {
	return func(rest []string, _ bool) (string, any, error) {
		question := strings.TrimSpace(strings.Join(rest, " "))
		if question == "" {
			return "", nil, errors.New(hint)
		}
		return path, map[string]string{"question": question}, nil
	}
}

func sqlBody(rest []string, _ bool) (string, any, error) {
	sql := strings.TrimSpace(strings.Join(rest, " "))
	if sql == "" {
		return "", nil, errors.New("query needs a SQL statement")
	}
	return "/v1/query", map[string]string{"sql": sql}, nil
}

func ingestBody(rest []string, reset bool) (string, any, error) {
	if len(rest) != 2 {
		return "", nil, errors.New("usage: askdbctl [flags] ingest <table> <source>")
	}
	return "/v1/ingest/" + rest[0], map[string]any{"source": rest[1], "reset": reset}, nil
}

// printAnswer renders an ask response as the answer text followed by the SQL
// that produced it. Falls back to JSON printing when the shape is unexpected.
func printAnswer(out io.Writer, raw []byte) bool {
	var answer struct {
		SQL  string `json:"sql"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &answer); err != nil || answer.Text == "" {
		return false
	}
	_, _ = fmt.Fprintln(out, answer.Text)
	if answer.SQL != "" {
		_, _ = fmt.Fprintf(out, "\nSQL: %s\n", answer.SQL)
	}
	return true
}

// printReply indents JSON replies for the terminal and passes everything
// else through untouched.
func printReply(out io.Writer, reply []byte) {
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) == 0 {
		return
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, trimmed, "", "  "); err != nil {
		_, _ = fmt.Fprintln(out, string(reply))
		return
	}
	_, _ = fmt.Fprintln(out, indented.String())
}

type apiRequest struct {
	method string
	url    string
	apiKey string
	body   any
}

func call(ctx context.Context, client *http.Client, req apiRequest) (int, []byte, error) {
	var payload io.Reader = http.NoBody
	if req.body != nil {
		encoded, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, err
		}
		payload = bytes.NewReader(encoded)
	}

	hr, err := http.NewRequestWithContext(ctx, req.method, req.url, payload)
	if err != nil {
		return 0, nil, err
	}
	hr.Header.Set("Accept", "application/json")
	if req.body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(req.apiKey); key != "" {
		hr.Header.Set("X-API-Key", key)
	}

	res, err := client.Do(hr)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = res.Body.Close() }()

	reply, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, err
	}
	return res.StatusCode, reply, nil
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askdbctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		left := c.name
		if c.args != "" {
			left += " " + c.args
		}
		_, _ = fmt.Fprintf(w, "  %-25s %s %s\n", left, c.method, c.path)
	}
}
