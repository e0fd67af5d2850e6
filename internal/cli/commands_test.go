package cli

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePrices writes a two-instrument CSV panel and returns its path.
func writePrices(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	var b strings.Builder
	b.WriteString("Date,A,B\n")
	a, c := 100.0, 50.0
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "%s,%.6f,%.6f\n", start.AddDate(0, 0, i).Format("2006-01-02"), a, c)
		a *= math.Exp(0.01 * rng.NormFloat64())
		c *= math.Exp(0.02 * rng.NormFloat64())
	}
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

// setupEnv configures a portfolio whose MVP_SYMBOLS is not in the panel, so
// only a -symbols override can succeed.
func setupEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MVP_ANNUALIZATION", "MVP_LOGGING", "LOG_PRETTY", "MVP_DATA_DIR",
		"MVP_PORTFOLIO_FILE", "MVP_CORS_ORIGINS", "MVP_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("MVP_SOURCE", writePrices(t))
	t.Setenv("MVP_SYMBOLS", "BAD")
	t.Setenv("MVP_START", "2020-01-01")
	t.Setenv("MVP_END", "2020-12-31")
	t.Setenv("LOG_LEVEL", "disabled")
}

func execute(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(args))
	return cmd.Execute(context.Background(), f)
}

func TestMinvarCmd_SymbolsOverrideConfig(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, subcommands.ExitFailure, execute(t, &minvarCmd{}, "-json"))
	assert.Equal(t, subcommands.ExitSuccess, execute(t, &minvarCmd{}, "-symbols", "A,B", "-json"))
}

func TestChartCmd_SymbolsOverrideConfig(t *testing.T) {
	setupEnv(t)
	out := filepath.Join(t.TempDir(), "allocation.png")

	require.Equal(t, subcommands.ExitSuccess, execute(t, &chartCmd{}, "-symbols", "A,B", "-o", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
}

func TestMinvarCmd_UsageListsFlags(t *testing.T) {
	cmd := &minvarCmd{}
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	f.VisitAll(func(fl *flag.Flag) {
		assert.Contains(t, cmd.Usage(), "-"+fl.Name, fl.Name)
	})
}
