package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FileLoader reads CSV panels from the local filesystem.
// Locators are plain paths or file:// URLs.
type FileLoader struct {
	log zerolog.Logger
}

// NewFileLoader creates a new file loader.
func NewFileLoader(log zerolog.Logger) *FileLoader {
	return &FileLoader{log: log.With().Str("loader", "file").Logger()}
}

// Load opens and parses the CSV file named by locator.
func (l *FileLoader) Load(ctx context.Context, locator string) (*PricePanel, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}

	path := strings.TrimPrefix(locator, "file://")
	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}
	defer f.Close()

	panel, err := ParseCSV(f, locator)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("path", path).
		Int("rows", panel.Rows()).
		Int("columns", len(panel.Columns)).
		Msg("Loaded price panel")
	return panel, nil
}

// HTTPLoader fetches CSV panels over HTTP(S).
type HTTPLoader struct {
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPLoader creates a new HTTP loader. A zero timeout defaults to 30 seconds.
func NewHTTPLoader(timeout time.Duration, log zerolog.Logger) *HTTPLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPLoader{
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("loader", "http").Logger(),
	}
}

// Load issues a GET for locator and parses the body.
func (l *HTTPLoader) Load(ctx context.Context, locator string) (*PricePanel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SourceUnavailableError{
			Locator: locator,
			Err:     fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	panel, err := ParseCSV(resp.Body, locator)
	if err != nil {
		return nil, err
	}

	l.log.Debug().
		Str("url", locator).
		Int("rows", panel.Rows()).
		Int("columns", len(panel.Columns)).
		Msg("Fetched price panel")
	return panel, nil
}

// MemoryLoader serves panels registered in memory. Used by tests and demos.
type MemoryLoader struct {
	mu     sync.Mutex
	panels map[string]*PricePanel
	calls  int
}

// NewMemoryLoader creates an empty memory loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{panels: make(map[string]*PricePanel)}
}

// Put registers panel under locator.
func (l *MemoryLoader) Put(locator string, panel *PricePanel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panels[locator] = panel
}

// Calls returns how many times Load was invoked.
func (l *MemoryLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Load returns the registered panel or a SourceUnavailableError.
func (l *MemoryLoader) Load(_ context.Context, locator string) (*PricePanel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	panel, ok := l.panels[locator]
	if !ok {
		return nil, &SourceUnavailableError{Locator: locator, Err: os.ErrNotExist}
	}
	return panel, nil
}

// Resolver dispatches a locator to the loader registered for its scheme.
// Locators without a scheme are treated as file paths.
type Resolver struct {
	loaders map[string]Loader
	log     zerolog.Logger
}

// NewResolver creates a resolver with file, http and https loaders registered.
func NewResolver(httpTimeout time.Duration, log zerolog.Logger) *Resolver {
	fileLoader := NewFileLoader(log)
	httpLoader := NewHTTPLoader(httpTimeout, log)
	return &Resolver{
		loaders: map[string]Loader{
			"file":  fileLoader,
			"http":  httpLoader,
			"https": httpLoader,
		},
		log: log.With().Str("component", "resolver").Logger(),
	}
}

// Register adds or replaces the loader for scheme (e.g. "s3").
func (r *Resolver) Register(scheme string, loader Loader) {
	r.loaders[strings.ToLower(scheme)] = loader
}

// Scheme returns the lower-cased scheme of locator, "file" when absent.
func Scheme(locator string) string {
	i := strings.Index(locator, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(locator[:i])
}

// Load routes locator to the matching loader.
func (r *Resolver) Load(ctx context.Context, locator string) (*PricePanel, error) {
	if strings.TrimSpace(locator) == "" {
		return nil, &SourceUnavailableError{Locator: locator, Err: fmt.Errorf("no source configured")}
	}
	scheme := Scheme(locator)
	loader, ok := r.loaders[scheme]
	if !ok {
		return nil, &SourceUnavailableError{Locator: locator, Err: fmt.Errorf("unsupported scheme %q", scheme)}
	}
	r.log.Debug().Str("scheme", scheme).Str("locator", locator).Msg("Resolving price source")
	return loader.Load(ctx, locator)
}
