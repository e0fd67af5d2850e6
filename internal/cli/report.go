package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/aristath/mvportfolio/internal/modules/optimization"
)

// statsReport formats portfolio statistics as Markdown.
func statsReport(summary *optimization.Summary, weights optimization.Weights, ret, vol float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Portfolio statistics\n\n")
	fmt.Fprintf(&b, "%d observations from %s to %s.\n\n",
		summary.Observations, summary.First.Format("2006-01-02"), summary.Last.Format("2006-01-02"))

	fmt.Fprintf(&b, "| Symbol | Weight | Annual return | Annual volatility |\n")
	fmt.Fprintf(&b, "|---|---:|---:|---:|\n")
	for _, a := range summary.Assets {
		fmt.Fprintf(&b, "| %s | %.2f%% | %.2f%% | %.2f%% |\n",
			a.Symbol, weights[a.Symbol]*100, a.AnnualReturn*100, a.AnnualVolatility*100)
	}
	fmt.Fprintf(&b, "| **Portfolio** | %.2f%% | %.2f%% | %.2f%% |\n\n", weights.Sum()*100, ret*100, vol*100)

	fmt.Fprintf(&b, "## Correlations\n\n")
	fmt.Fprintf(&b, "| |%s|\n", strings.Join(summary.Symbols, "|"))
	fmt.Fprintf(&b, "|---|%s\n", strings.Repeat("---:|", len(summary.Symbols)))
	for i, sym := range summary.Symbols {
		cells := make([]string, len(summary.Symbols))
		for j := range summary.Symbols {
			cells[j] = fmt.Sprintf("%.3f", summary.Correlations[i][j])
		}
		fmt.Fprintf(&b, "| %s |%s|\n", sym, strings.Join(cells, "|"))
	}
	return b.String()
}

// allocationReport formats a solver result as Markdown.
func allocationReport(alloc *optimization.Allocation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Minimum variance allocation\n\n")

	symbols := make([]string, 0, len(alloc.Weights))
	for sym := range alloc.Weights {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	fmt.Fprintf(&b, "| Symbol | Weight |\n|---|---:|\n")
	for _, sym := range symbols {
		fmt.Fprintf(&b, "| %s | %.2f%% |\n", sym, alloc.Weights[sym]*100)
	}
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "- Expected return: %.2f%%\n", alloc.ExpectedReturn*100)
	fmt.Fprintf(&b, "- Volatility: %.2f%%\n", alloc.Volatility*100)
	fmt.Fprintf(&b, "- Success: %t (%s, %s)\n", alloc.Success, alloc.Method, alloc.Status)
	fmt.Fprintf(&b, "- Message: %s\n", alloc.Message)
	fmt.Fprintf(&b, "- Iterations: %d, evaluations: %d\n", alloc.Iterations, alloc.Evaluations)
	fmt.Fprintf(&b, "- Run: %s\n", alloc.ID)
	return b.String()
}

// render styles Markdown for the terminal. An empty style prints it as is.
func render(md, style string) (string, error) {
	if style == "" {
		return md, nil
	}
	out, err := glamour.Render(md, style)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}
