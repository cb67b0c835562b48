package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/wiesenwischer/readystackgo/internal/durationx"
	"github.com/wiesenwischer/readystackgo/internal/stacksource"
	"github.com/wiesenwischer/readystackgo/internal/variables"
)

// newFetcher builds the ValueFetcher named by cfg.Type, resolving any
// ${NAME} placeholders in its configuration against the deployment's own
// variables.
func newFetcher(cfg *stacksource.ObserverDefinition, vars map[string]string) (ValueFetcher, error) {
	switch cfg.Type {
	case "sqlExtendedProperty":
		dsn, err := resolveConnectionString(cfg, vars)
		if err != nil {
			return nil, err
		}
		return sqlExtendedPropertyFetcher{dsn: dsn, propertyName: cfg.PropertyName}, nil
	case "sqlQuery":
		dsn, err := resolveConnectionString(cfg, vars)
		if err != nil {
			return nil, err
		}
		return sqlQueryFetcher{dsn: dsn, query: cfg.Query}, nil
	case "http":
		headers := make(map[string]string, len(cfg.Headers))
		for k, v := range cfg.Headers {
			headers[k] = variables.Resolve(v, vars)
		}
		return &httpFetcher{
			client:   &http.Client{Timeout: durationx.ParseOr(cfg.Timeout, 10*time.Second)},
			url:      variables.Resolve(cfg.URL, vars),
			method:   cfg.Method,
			headers:  headers,
			jsonPath: cfg.JSONPath,
		}, nil
	case "file":
		return fileFetcher{
			path:           variables.Resolve(cfg.Path, vars),
			mode:           cfg.Mode,
			contentPattern: cfg.ContentPattern,
		}, nil
	default:
		return nil, fmt.Errorf("unknown observer type %q", cfg.Type)
	}
}

func resolveConnectionString(cfg *stacksource.ObserverDefinition, vars map[string]string) (string, error) {
	raw := cfg.ConnectionString
	if raw == "" {
		raw = cfg.ConnectionName
	}
	resolved := variables.ResolveOrNil(raw, vars)
	if resolved == nil {
		return "", fmt.Errorf("observer connection string has an unresolved variable")
	}
	return *resolved, nil
}

// sqlExtendedPropertyFetcher reads a single named property out of a
// rsgo_extended_properties(property_name, value) table or view the
// stack's own schema is expected to expose -- a portable stand-in for the
// SQL Server fn_listextendedproperty pattern this checker kind is named
// after.
type sqlExtendedPropertyFetcher struct {
	dsn          string
	propertyName string
}

func (f sqlExtendedPropertyFetcher) GetObservedValue(ctx context.Context) (string, error) {
	db, err := sqlx.Open("pgx", f.dsn)
	if err != nil {
		return "", fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()

	var value string
	err = db.QueryRowxContext(ctx,
		`SELECT value FROM rsgo_extended_properties WHERE property_name = $1`,
		f.propertyName,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("read extended property %q: %w", f.propertyName, err)
	}
	return value, nil
}

// sqlQueryFetcher runs an arbitrary single-row, single-column query and
// returns its result as a string.
type sqlQueryFetcher struct {
	dsn   string
	query string
}

func (f sqlQueryFetcher) GetObservedValue(ctx context.Context) (string, error) {
	db, err := sqlx.Open("pgx", f.dsn)
	if err != nil {
		return "", fmt.Errorf("open connection: %w", err)
	}
	defer db.Close()

	var value string
	if err := db.QueryRowxContext(ctx, f.query).Scan(&value); err != nil {
		return "", fmt.Errorf("run observer query: %w", err)
	}
	return value, nil
}

// httpFetcher issues a single HTTP request and returns either the raw
// (trimmed) response body or, when jsonPath is set, a gojq-extracted
// value from it.
type httpFetcher struct {
	client   *http.Client
	url      string
	method   string
	headers  map[string]string
	jsonPath string
}

func (f *httpFetcher) GetObservedValue(ctx context.Context) (string, error) {
	method := f.method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if f.jsonPath == "" {
		return strings.TrimSpace(string(body)), nil
	}
	return extractJSONPath(f.jsonPath, body)
}

func extractJSONPath(path string, body []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parse json response: %w", err)
	}

	query, err := gojq.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse json path %q: %w", path, err)
	}

	iter := query.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return "", fmt.Errorf("json path %q yielded no value", path)
	}
	if queryErr, ok := v.(error); ok {
		return "", fmt.Errorf("evaluate json path %q: %w", path, queryErr)
	}
	return fmt.Sprint(v), nil
}

// fileFetcher observes either whether a file exists ("exists" mode,
// returning "true"/"false") or its trimmed content, optionally narrowed
// by a regular expression ("content" mode).
type fileFetcher struct {
	path           string
	mode           string
	contentPattern string
}

func (f fileFetcher) GetObservedValue(ctx context.Context) (string, error) {
	if f.mode == "content" {
		data, err := os.ReadFile(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", nil
			}
			return "", fmt.Errorf("read file %q: %w", f.path, err)
		}
		content := string(data)
		if f.contentPattern == "" {
			return strings.TrimSpace(content), nil
		}
		re, err := regexp.Compile(f.contentPattern)
		if err != nil {
			return "", fmt.Errorf("compile content pattern %q: %w", f.contentPattern, err)
		}
		return re.FindString(content), nil
	}

	_, err := os.Stat(f.path)
	switch {
	case err == nil:
		return "true", nil
	case os.IsNotExist(err):
		return "false", nil
	default:
		return "", fmt.Errorf("stat file %q: %w", f.path, err)
	}
}
