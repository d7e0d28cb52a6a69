package formatting

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"devstack/internal/config"
	"devstack/internal/orchestrator"
	"devstack/internal/scheduler"
)

// tableFormatter renders rounded go-pretty tables, or plain columns when
// plain is set.
type tableFormatter struct {
	options Options
	plain   bool
}

var statusColors = map[string]text.Colors{
	string(scheduler.StatusReady):    {text.FgGreen},
	string(scheduler.StatusFailed):   {text.FgRed, text.Bold},
	string(scheduler.StatusSkipped):  {text.FgYellow},
	string(scheduler.StatusStarting): {text.FgCyan},
	string(orchestrator.UnitRunning): {text.FgGreen},
	string(orchestrator.UnitPartial): {text.FgYellow},
	string(orchestrator.UnitStopped): {text.FgHiBlack},
}

func (f *tableFormatter) color(s string, c text.Colors) string {
	if !f.options.Color || f.plain || s == "" {
		return s
	}
	return c.Sprint(s)
}

func (f *tableFormatter) status(s string) string {
	return f.color(s, statusColors[s])
}

func (f *tableFormatter) render(headers []string, rows [][]string) {
	if f.plain {
		tw := NewPlainTable(f.options.Out)
		tw.SetHeaders(headers...)
		tw.SetNoHeaders(f.options.NoHeaders)
		for _, row := range rows {
			tw.AppendRow(row...)
		}
		tw.Render()
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(f.options.Out)
	t.SetStyle(table.StyleRounded)
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = f.color(h, text.Colors{text.FgHiCyan})
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		t.AppendRow(r)
	}
	t.Render()
}

// line writes decorative text that quiet and plain output omit.
func (f *tableFormatter) line(format string, args ...interface{}) {
	if f.options.Quiet || f.plain {
		return
	}
	fmt.Fprintf(f.options.Out, format+"\n", args...)
}

func (f *tableFormatter) Report(r *scheduler.Report) error {
	rows := make([][]string, 0, len(r.Units))
	for _, u := range r.Units {
		detail := u.Reason
		if u.Error != "" {
			detail = joinNonEmpty(": ", detail, u.Error)
		}
		attempts := ""
		if u.Attempts > 0 {
			attempts = strconv.Itoa(u.Attempts)
		}
		rows = append(rows, []string{
			strconv.Itoa(u.Stage + 1),
			u.ID,
			f.status(string(u.Status)),
			attempts,
			formatDuration(u.Duration),
			truncate(detail, 80),
		})
	}
	f.render([]string{"STAGE", "UNIT", "STATUS", "ATTEMPTS", "TIME", "DETAIL"}, rows)

	summary := r.Summary()
	switch {
	case r.OK():
		summary = f.color(summary, text.Colors{text.FgGreen})
	case len(r.Failed()) > 0:
		summary = f.color(summary, text.Colors{text.FgRed})
	default:
		summary = f.color(summary, text.Colors{text.FgYellow})
	}
	runID := r.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	f.line("\nRun %s: %s in %s", runID, summary, formatDuration(r.Duration))
	return nil
}

func (f *tableFormatter) Status(units []orchestrator.UnitStatus) error {
	if len(units) == 0 {
		f.line("%s", f.color("No units declared", text.Colors{text.FgYellow}))
		return nil
	}
	rows := make([][]string, 0, len(units))
	running := 0
	for _, u := range units {
		ready := "-"
		if u.State == orchestrator.UnitRunning {
			running++
			ready = f.color("no", text.Colors{text.FgRed})
			if u.Ready {
				ready = f.color("yes", text.Colors{text.FgGreen})
			}
		}
		names := make([]string, 0, len(u.Containers))
		for _, c := range u.Containers {
			names = append(names, c.Name)
		}
		rows = append(rows, []string{
			u.ID,
			strconv.Itoa(u.Stage + 1),
			f.status(string(u.State)),
			ready,
			strings.Join(names, ","),
			u.Readiness,
			truncate(u.Detail, 60),
		})
	}
	f.render([]string{"UNIT", "STAGE", "STATE", "READY", "CONTAINERS", "READINESS", "DETAIL"}, rows)
	f.line("\n%d of %d unit(s) running", running, len(units))
	return nil
}

func (f *tableFormatter) Plan(p *orchestrator.Plan) error {
	caps := p.Capabilities
	gpu := "none"
	if caps.GPUAvailable {
		gpu = fmt.Sprintf("%s x%d", caps.GPUVendor, caps.GPUCount)
	}
	runtime := "unreachable"
	if caps.ContainerRuntimeReachable {
		runtime = joinNonEmpty(" ", caps.Runtime, caps.ComposeVersion)
	}
	f.line("Project %s: %d unit(s) in %d stage(s)", p.Project, p.Units(), len(p.Stages))
	f.line("Host: %s/%s, GPU: %s, runtime: %s\n", caps.OS, caps.Arch, gpu, runtime)

	var rows [][]string
	for i, stage := range p.Stages {
		for _, u := range stage {
			gated := ""
			if len(u.Gated) > 0 {
				gated = f.color("skip: requires "+strings.Join(u.Gated, ", "), text.Colors{text.FgYellow})
			}
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				u.ID,
				strings.Join(u.Services, ","),
				strings.Join(u.DependsOn, ","),
				u.Readiness,
				gated,
			})
		}
	}
	f.render([]string{"STAGE", "UNIT", "SERVICES", "DEPENDS ON", "READINESS", "NOTE"}, rows)
	return nil
}

func (f *tableFormatter) Config(cfg *config.Config) error {
	entries := configEntries(cfg)
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Key, e.Value, e.Source})
	}
	f.render([]string{"KEY", "VALUE", "SOURCE"}, rows)
	return nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
