package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))
	return path
}

func TestFileLoader_Load(t *testing.T) {
	path := writeSample(t)
	loader := NewFileLoader(zerolog.Nop())

	panel, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, panel.Rows())

	panel, err = loader.Load(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Len(t, panel.Columns, 3)
}

func TestFileLoader_MissingFile(t *testing.T) {
	loader := NewFileLoader(zerolog.Nop())

	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	var unavailable *SourceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestHTTPLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices.csv":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte(sampleCSV))
		case "/broken.csv":
			_, _ = w.Write([]byte("Date,A\nnot-a-date,1\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	loader := NewHTTPLoader(5*time.Second, zerolog.Nop())

	panel, err := loader.Load(context.Background(), srv.URL+"/prices.csv")
	require.NoError(t, err)
	assert.Equal(t, 4, panel.Rows())

	_, err = loader.Load(context.Background(), srv.URL+"/missing.csv")
	var unavailable *SourceUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Contains(t, err.Error(), "404")

	_, err = loader.Load(context.Background(), srv.URL+"/broken.csv")
	var malformed *MalformedSourceError
	assert.True(t, errors.As(err, &malformed))
}

func TestResolver_DispatchesOnScheme(t *testing.T) {
	path := writeSample(t)
	mem := NewMemoryLoader()
	mem.Put("mem://prices", &PricePanel{Columns: []string{"A"}, Data: map[string][]float64{"A": {}}})

	resolver := NewResolver(time.Second, zerolog.Nop())
	resolver.Register("MEM", mem)

	panel, err := resolver.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, panel.Rows())

	panel, err = resolver.Load(context.Background(), "mem://prices")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, panel.Columns)
	assert.Equal(t, 1, mem.Calls())

	var unavailable *SourceUnavailableError
	_, err = resolver.Load(context.Background(), "ftp://host/prices.csv")
	assert.True(t, errors.As(err, &unavailable))

	_, err = resolver.Load(context.Background(), "  ")
	assert.True(t, errors.As(err, &unavailable))
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "file", Scheme("/data/prices.csv"))
	assert.Equal(t, "file", Scheme("prices.csv"))
	assert.Equal(t, "https", Scheme("HTTPS://example.com/p.csv"))
	assert.Equal(t, "s3", Scheme("s3://bucket/key.csv"))
}

func TestLoaderFunc(t *testing.T) {
	want := &PricePanel{}
	var loader Loader = LoaderFunc(func(ctx context.Context, locator string) (*PricePanel, error) {
		assert.Equal(t, "x", locator)
		return want, nil
	})
	got, err := loader.Load(context.Background(), "x")
	require.NoError(t, err)
	assert.Same(t, want, got)
}
