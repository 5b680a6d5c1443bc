// Package display renders vendordesk data for the terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"vendordesk/internal/model"
	"vendordesk/internal/stats"
	"vendordesk/internal/status"
	"vendordesk/internal/thread"
)

var (
	muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	bold    = lipgloss.NewStyle().Bold(true)
	success = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	danger  = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	warning = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	info    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
)

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	return os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(f.Fd()))
}

// Printer writes styled output. With color off every style is a no-op.
type Printer struct {
	w     io.Writer
	color bool
	now   func() time.Time
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color, now: time.Now}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *Printer) Header(title string) {
	fmt.Fprintln(p.w, p.style(bold, title))
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(success, "✓")+" "+fmt.Sprintf(format, args...))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(danger, "✗")+" "+fmt.Sprintf(format, args...))
}

// Badge renders a display status with its label.
func (p *Printer) Badge(d status.DisplayStatus) string {
	label := fmt.Sprintf("%-15s", d.Label())
	switch d {
	case status.Unassigned:
		return p.style(danger, label)
	case status.Assigned:
		return p.style(info, label)
	case status.PendingReply:
		return p.style(warning, label)
	case status.Replied:
		return p.style(success, label)
	}
	return label
}

// TimeAgo formats t relative to now; the zero time renders as "-".
func (p *Printer) TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := p.now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("Jan 2")
}

// Truncate shortens s to max runes, ending in "..." when cut.
func Truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func (p *Printer) Threads(threads []thread.Thread) {
	if len(threads) == 0 {
		fmt.Fprintln(p.w, p.style(muted, "No threads."))
		return
	}
	for _, t := range threads {
		first := t.First
		fmt.Fprintf(p.w, "%s %s %s\n",
			p.style(bold, Truncate(first.Subject, 60)),
			p.style(dim, fmt.Sprintf("(%d)", len(t.Entries))),
			p.style(muted, p.TimeAgo(t.Latest.Timestamp.Time)),
		)
		for i, e := range t.Entries {
			connector := "├─"
			if i == len(t.Entries)-1 {
				connector = "└─"
			}
			who := e.SenderEmail
			if e.Kind == thread.KindOperatorReply {
				who = p.style(info, "operator")
			}
			fmt.Fprintf(p.w, "  %s %-28s %s  %s\n",
				p.style(dim, connector),
				who,
				p.style(muted, fmt.Sprintf("%-9s", p.TimeAgo(e.Timestamp.Time))),
				Truncate(e.Content, 70),
			)
		}
	}
}

func (p *Printer) Sessions(sessions []model.ShipmentSession, vendorNames map[int64]string) {
	if len(sessions) == 0 {
		fmt.Fprintln(p.w, p.style(muted, "No sessions."))
		return
	}
	for _, s := range sessions {
		vendor := "-"
		if s.VendorID != nil {
			vendor = vendorNames[*s.VendorID]
			if vendor == "" {
				vendor = fmt.Sprintf("vendor #%d", *s.VendorID)
			}
		}
		service := s.ServiceType
		if service == "" {
			service = stats.FallbackServiceType
		}
		fmt.Fprintf(p.w, "  #%-5d %s %-22s %-10s %s\n",
			s.ID,
			p.Badge(status.Resolve(s)),
			Truncate(vendor, 22),
			Truncate(service, 10),
			p.style(muted, Truncate(s.Subject, 40)),
		)
	}
}

func (p *Printer) Counts(c status.FilterCounts) {
	fmt.Fprintf(p.w, "  All %d  %s %d  %s %d  %s %d\n",
		c.All,
		p.style(danger, "Unassigned"), c.Unassigned,
		p.style(warning, "Pending reply"), c.PendingReply,
		p.style(success, "Replied"), c.Replied,
	)
}

func (p *Printer) Summary(s stats.Summary) {
	p.Header("Dashboard")
	fmt.Fprintf(p.w, "  Emails       %5d  (%d shipping requests, %d%% processed)\n", s.TotalEmails, s.ShippingRequests, s.ProcessingRate)
	fmt.Fprintf(p.w, "  Shipments    %5d  (%d complete, %d incomplete, %d%% complete)\n",
		s.TotalShipments, s.CompleteShipments, s.IncompleteShipments, s.CompletionRate)
	fmt.Fprintf(p.w, "  Vendors      %5d active, %d%% response rate\n", s.ActiveVendors, s.ResponseRate)
	p.Counts(s.Counts)

	if len(s.TopVendors) > 0 {
		fmt.Fprintln(p.w)
		p.Header("Top vendors")
		for _, v := range s.TopVendors {
			fmt.Fprintf(p.w, "  %-24s %3d sessions  %3d replied  %3d%%\n",
				Truncate(v.Name, 24), v.TotalSessions, v.RepliedSessions, v.ResponseRate)
		}
	}
	if len(s.CategoryBreakdown) > 0 {
		fmt.Fprintln(p.w)
		p.Header("Service types")
		for _, c := range s.CategoryBreakdown {
			fmt.Fprintf(p.w, "  %-24s %3d  %3d%%\n", Truncate(c.Label, 24), c.Count, c.Percentage)
		}
	}
}
