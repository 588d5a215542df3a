// Package report renders alert and rule summaries for the command line tools.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fleet-sentinel/internal/alerting"
	"fleet-sentinel/internal/detection"
	"fleet-sentinel/internal/schema"
)

// Summary is the outcome of a replay run.
type Summary struct {
	Source   string
	Events   int
	Rejected int
	Alerts   []alerting.Alert
	Stats    detection.Stats
}

// CountByCategory tallies alerts per category.
func (s Summary) CountByCategory() map[alerting.Category]int {
	counts := make(map[alerting.Category]int, len(alerting.Categories()))
	for _, a := range s.Alerts {
		counts[a.Category]++
	}
	return counts
}

func severityStyle(s alerting.Severity) lipgloss.Style {
	switch s {
	case alerting.SeverityCritical, alerting.SeverityHigh:
		return StatusError
	case alerting.SeverityMedium:
		return StatusWarning
	default:
		return Muted
	}
}

// Alerts writes the alert log followed by per-category totals.
func Alerts(w io.Writer, s Summary) error {
	var b strings.Builder

	b.WriteString(Title.Render("Replay: " + s.Source))
	b.WriteString("\n")

	if len(s.Alerts) == 0 {
		b.WriteString(StatusOK.Render("No alerts raised"))
		b.WriteString("\n")
	}
	for _, a := range s.Alerts {
		sev := severityStyle(a.Severity).Render(fmt.Sprintf("%-8s", strings.ToUpper(string(a.Severity))))
		fmt.Fprintf(&b, "%s %s\n", sev, a.String())
	}
	b.WriteString("\n")

	counts := s.CountByCategory()
	var rows []string
	rows = append(rows, TableHeader.Render(fmt.Sprintf("%-26s %6s", "CATEGORY", "ALERTS")))
	for _, c := range alerting.Categories() {
		line := fmt.Sprintf("%-26s %6d", c, counts[c])
		if counts[c] == 0 {
			line = Muted.Render(line)
		}
		rows = append(rows, line)
	}
	rows = append(rows, "")
	rows = append(rows, fmt.Sprintf("events %d  rejected %d  alerts %d", s.Events, s.Rejected, len(s.Alerts)))
	rows = append(rows, Muted.Render(fmt.Sprintf("tracked: logins=%d toggles=%d power=%d temperature=%d",
		s.Stats.FailedLoginSources, s.Stats.CommandSpamSources, s.Stats.PowerDevices, s.Stats.TemperatureSources)))

	b.WriteString(Box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Rules writes the effective parameters of every rule in cfg.
func Rules(w io.Writer, cfg detection.Config) error {
	rows := []string{TableHeader.Render(fmt.Sprintf("%-26s %-8s %s", "RULE", "STATE", "PARAMETERS"))}

	add := func(c alerting.Category, enabled bool, params string) {
		state := StatusOK.Render(fmt.Sprintf("%-8s", "on"))
		if !enabled {
			state = Muted.Render(fmt.Sprintf("%-8s", "off"))
		}
		rows = append(rows, fmt.Sprintf("%-26s %s %s", c, state, params))
	}

	fl := cfg.FailedLogin
	add(alerting.CategoryFailedLoginBurst, fl.Enabled,
		fmt.Sprintf("window=%s threshold=%d", fl.Window, fl.Threshold))

	cs := cfg.CommandSpam
	add(alerting.CategoryCommandSpam, cs.Enabled,
		fmt.Sprintf("window=%s threshold=%d exempt=%s", cs.Window, cs.Threshold, joinRoles(cs.ExemptRoles)))

	ap := cfg.AbnormalPower
	add(alerting.CategoryAbnormalPower, ap.Enabled,
		fmt.Sprintf("max_samples=%d multiplier=%g mode=%s", ap.MaxSamples, ap.Multiplier, ap.AverageMode))

	rt := cfg.RapidTemperature
	add(alerting.CategoryRapidTemperatureChange, rt.Enabled,
		fmt.Sprintf("window=%s threshold=%d key_suffix=%q", rt.Window, rt.Threshold, rt.KeySuffix))

	ua := cfg.UnauthorizedAccess
	add(alerting.CategoryUnauthorizedAccess, ua.Enabled,
		fmt.Sprintf("resources=%s allowed=%s", strings.Join(ua.PrivilegedResources, ","), joinRoles(ua.AllowedRoles)))

	_, err := io.WriteString(w, Box.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))+"\n")
	return err
}

func joinRoles(roles []schema.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}
