package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
)

type statsCmd struct {
	symbols string
	style   string
}

func (*statsCmd) Name() string { return "stats" }
func (*statsCmd) Synopsis() string {
	return "display annualized returns, volatilities and correlations of the portfolio"
}
func (*statsCmd) Usage() string {
	return `mvp stats [-symbols A,B,...] [-style auto|dark|light|notty|""]

  Loads the configured price source, derives log-returns over the configured
  window and prints per-instrument and portfolio statistics.
`
}

func (c *statsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", "", "Comma separated symbols overriding MVP_SYMBOLS (weights reset to equal).")
	f.StringVar(&c.style, "style", "auto", "Terminal style for the report; empty prints raw Markdown.")
}

func (c *statsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	state, err := a.state(ctx, splitSymbols(c.symbols))
	if err != nil {
		return fail(err)
	}

	summary, err := state.Summary()
	if err != nil {
		return fail(err)
	}
	ret, err := state.ExpectedReturn(nil)
	if err != nil {
		return fail(err)
	}
	vol, err := state.Volatility(nil)
	if err != nil {
		return fail(err)
	}

	out, err := render(statsReport(summary, state.Weights(), ret, vol), c.style)
	if err != nil {
		return fail(err)
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}

// splitSymbols parses a comma separated symbol list.
func splitSymbols(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
