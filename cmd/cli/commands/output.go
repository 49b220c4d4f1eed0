package commands

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jakechorley/donornet/pkg/core/model"
)

const dateLayout = "2006-01-02"

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, err)
	}
	return t, nil
}

// blockWriter writes whole multi-line blocks to w, one at a time, so output
// from listener goroutines never interleaves.
type blockWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (b *blockWriter) block(render func(w io.Writer)) {
	var buf bytes.Buffer
	render(&buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.w.Write(buf.Bytes())
}

func (b *blockWriter) printf(format string, args ...interface{}) {
	b.block(func(w io.Writer) { fmt.Fprintf(w, format, args...) })
}

func printDestination(w io.Writer, d model.Destination) {
	if d.IsDashboard() {
		fmt.Fprintf(w, "→ %s (%s)\n", d, d.Path())
		return
	}
	fmt.Fprintf(w, "⚠️  Redirecting to %s (%s)\n", d, d.Path())
}

// printAlerts lists alerts newest first, marking the ones viewer may delete
func printAlerts(w io.Writer, alerts []model.Alert, viewer model.Identity) {
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No active alerts.")
		return
	}

	fmt.Fprintf(w, "%d active alerts:\n\n", len(alerts))
	for _, a := range alerts {
		mine := " "
		if a.DeletableBy(viewer) {
			mine = "*"
		}
		fmt.Fprintf(w, "%s [%-3s] %s  %s\n", mine, a.BloodType, a.Location, a.CreatedAt.Local().Format("Mon Jan 02 15:04"))
		fmt.Fprintf(w, "    %s\n", indent(a.Message, "    "))
		fmt.Fprintf(w, "    id: %s  posted by: %s\n", a.ID, a.AuthorRole)
	}
	fmt.Fprintln(w, "\n* posted by you")
}

func printCamps(w io.Writer, camps []model.DonationCamp) {
	if len(camps) == 0 {
		fmt.Fprintln(w, "  (no camps)")
		return
	}
	for _, c := range camps {
		fmt.Fprintf(w, "  %s  %-24s %-24s %s\n", c.Date.Format("Mon 2006-01-02"), c.Name, c.Location, c.ID)
	}
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+prefix)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
