package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/rotisserie/eris"

	"github.com/sells-group/price-patrol/internal/model"
)

// MarkdownWriter renders snapshots as markdown.
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter over the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the full snapshot.
func (w *MarkdownWriter) Write(snap *Snapshot) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Price Patrol Report")
	md.PlainText("")
	md.PlainTextf("Generated %s", snap.GeneratedAt.Format("2006-01-02 15:04 MST"))
	md.PlainText("")

	w.writeCatalog(md, snap)
	w.writeRuns(md, snap)

	if err := md.Build(); err != nil {
		return eris.Wrap(err, "report: render markdown")
	}
	return nil
}

func (w *MarkdownWriter) writeCatalog(md *markdown.Markdown, snap *Snapshot) {
	md.H2("Catalog")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Products", strconv.Itoa(snap.Stats.Products)},
			{"Sources", strconv.Itoa(snap.Stats.Sources)},
			{"Active sources", strconv.Itoa(snap.Stats.ActiveSources)},
			{"Stale sources", strconv.Itoa(snap.Stats.StaleSources)},
			{"Price points", strconv.Itoa(snap.Stats.PricePoints)},
			{"AI calls (recent runs)", strconv.Itoa(snap.AICalls)},
			{"AI spend (recent runs)", fmt.Sprintf("$%.4f", snap.AICostUSD)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRuns(md *markdown.Markdown, snap *Snapshot) {
	md.H2("Recent Runs")
	if len(snap.RecentRuns) == 0 {
		md.PlainText("No runs recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(snap.RecentRuns))
	for _, r := range snap.RecentRuns {
		rows = append(rows, []string{
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Mode,
			runStatusText(r),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.PricesFound),
			strconv.Itoa(r.Repaired),
			fmt.Sprintf("$%.4f", r.AICostUSD),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Started", "Mode", "Status", "Total", "OK", "Failed", "Prices", "Repaired", "AI spend"},
		Rows:   rows,
	})
	md.PlainText("")
}

func runStatusText(r model.PatrolRun) string {
	s := string(r.Status)
	if r.BreakerTripped {
		s += " (breaker tripped)"
	}
	return s
}
