// Package runsqlctl implements the runsql command line client. It talks to
// the HTTP API; cancelling the process (SIGINT) cancels the HTTP request,
// which the server translates into a backend-side query abort.
package runsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
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

type paramFlags map[string]any

func (p paramFlags) String() string { return "" }

func (p paramFlags) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", raw)
	}
	p[strings.TrimSpace(key)] = value
	return nil
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("runsql", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "runsql API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s; 0 disables)")
	params := paramFlags{}
	fs.Var(params, "param", "statement parameter as key=value (repeatable)")
	raiseErrors := fs.Bool("raise", false, "fail loudly on backend errors")
	stopOnError := fs.Bool("stop-on-error", false, "deprecated alias for -raise")
	serverBinds := fs.String("server-binds", "", "percent-placeholder hint: true or false (default: infer)")
	exportKey := fs.String("export", "", "upload the result set as parquet under this object key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health", "ready":
		return runGet(ctx, client, *baseURL, *apiKey, "/v1/"+command, stdout, stderr)
	case "run":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "run requires a statement, file path, or s3:// key")
			return 2
		}
		payload := map[string]any{
			"sql":           fs.Arg(1),
			"raise_errors":  *raiseErrors,
			"stop_on_error": *stopOnError,
		}
		if len(params) > 0 {
			payload["params"] = map[string]any(params)
		}
		if *serverBinds != "" {
			parsed, err := strconv.ParseBool(*serverBinds)
			if err != nil {
				_, _ = fmt.Fprintf(stderr, "invalid -server-binds %q\n", *serverBinds)
				return 2
			}
			payload["server_binds"] = parsed
		}
		if *exportKey != "" {
			payload["export_key"] = *exportKey
		}
		return runQuery(ctx, client, *baseURL, *apiKey, payload, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func runGet(ctx context.Context, client *http.Client, baseURL, apiKey, path string, stdout, stderr io.Writer) int {
	code, body, err := doRequest(ctx, client, http.MethodGet, strings.TrimRight(baseURL, "/")+path, apiKey, nil)
	return report(code, body, err, stdout, stderr)
}

func runQuery(ctx context.Context, client *http.Client, baseURL, apiKey string, payload map[string]any, stdout, stderr io.Writer) int {
	body, err := json.Marshal(payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode request: %v\n", err)
		return 1
	}
	code, responseBody, err := doRequest(ctx, client, http.MethodPost, strings.TrimRight(baseURL, "/")+"/v1/query", apiKey, body)
	return report(code, responseBody, err, stdout, stderr)
}

func report(code int, body []byte, err error, stdout, stderr io.Writer) int {
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, url, apiKey string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: runsql [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                     GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                      GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  run <sql|file.sql|s3://k>  POST /v1/query")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
