package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shardctl/shardctl/pkg/compose"
	"github.com/shardctl/shardctl/pkg/engine"
	"github.com/shardctl/shardctl/pkg/manifest"
	"github.com/shardctl/shardctl/pkg/policy"
	"github.com/shardctl/shardctl/pkg/stores"
	"github.com/shardctl/shardctl/pkg/vcs"
)

// Placeholders for the build list.
const (
	notAvailable       = "N/A"
	defaultEnvironment = "default"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func row(w io.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

// orDefault returns s, or def when s is blank.
func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// singleLine keeps table cells on one line.
func singleLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

// renderReport prints one line per outcome followed by the summary.
func renderReport(w io.Writer, r *engine.Report) error {
	if r.Empty() {
		_, err := fmt.Fprintln(w, r.Summary())
		return err
	}

	tw := newTable(w)
	row(tw, "SERVICE", "STATUS", "DURATION", "DETAIL")
	for _, o := range r.Outcomes {
		detail := o.Detail
		if o.Kind != "" {
			detail = fmt.Sprintf("[%s] %s", o.Kind, detail)
		}
		row(tw, o.Service, string(o.Status), formatDuration(o.Duration), singleLine(detail))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s (%s)\n", r.Summary(), formatDuration(r.Duration()))
	return err
}

// buildListEntry is one row of `build-service --list`.
type buildListEntry struct {
	Service            string `json:"service"`
	BuildCommand       string `json:"build_command"`
	DockerBuildCommand string `json:"docker_build_command"`
	Environment        string `json:"environment"`
	WorkingDirectory   string `json:"working_directory"`
}

// buildList returns the build-configured services in manifest order with
// placeholders for missing values.
func buildList(m *manifest.Manifest) []buildListEntry {
	services := m.BuildServices()
	entries := make([]buildListEntry, 0, len(services))
	for _, svc := range services {
		cfg := *svc.Build
		entries = append(entries, buildListEntry{
			Service:            svc.Name,
			BuildCommand:       orDefault(cfg.BuildCommand, notAvailable),
			DockerBuildCommand: orDefault(cfg.DockerBuildCommand, notAvailable),
			Environment:        orDefault(cfg.Environment, defaultEnvironment),
			WorkingDirectory:   cfg.Dir(svc.Name),
		})
	}
	return entries
}

func renderBuildList(w io.Writer, entries []buildListEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No build configurations found")
		return err
	}
	tw := newTable(w)
	row(tw, "SERVICE", "BUILD COMMAND", "DOCKER BUILD", "ENVIRONMENT")
	for _, e := range entries {
		row(tw, e.Service, singleLine(e.BuildCommand), singleLine(e.DockerBuildCommand), e.Environment)
	}
	return tw.Flush()
}

func renderStatus(w io.Writer, statuses []compose.ContainerStatus) error {
	if len(statuses) == 0 {
		_, err := fmt.Fprintln(w, "No running services found")
		return err
	}
	tw := newTable(w)
	row(tw, "NAME", "SERVICE", "STATE", "STATUS", "PORTS")
	for _, s := range statuses {
		row(tw, s.Row()...)
	}
	return tw.Flush()
}

func renderRuns(w io.Writer, runs []*stores.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded")
		return err
	}
	tw := newTable(w)
	row(tw, "RUN", "PHASE", "RESULT", "STARTED", "DURATION", "SUMMARY")
	for _, r := range runs {
		phase := string(r.Phase)
		if r.Mode != "" {
			phase += "/" + string(r.Mode)
		}
		row(tw, shortID(r.ID), phase, string(r.Result),
			r.StartedAt.Local().Format(time.DateTime), formatDuration(r.Duration()), r.Summary)
	}
	return tw.Flush()
}

func renderRun(w io.Writer, run *stores.Run, outcomes []*stores.OutcomeRecord) error {
	fmt.Fprintf(w, "Run:      %s\n", run.ID)
	fmt.Fprintf(w, "Phase:    %s\n", run.Phase)
	if run.Mode != "" {
		fmt.Fprintf(w, "Mode:     %s\n", run.Mode)
	}
	fmt.Fprintf(w, "Result:   %s\n", run.Result)
	fmt.Fprintf(w, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(run.Duration()))
	fmt.Fprintf(w, "Manifest: %s\n", run.ManifestPath)
	fmt.Fprintf(w, "Root:     %s\n\n", run.Root)

	tw := newTable(w)
	row(tw, "SERVICE", "STATUS", "EXIT", "DURATION", "DETAIL")
	for _, o := range outcomes {
		detail := o.Detail
		if o.Kind != "" {
			detail = fmt.Sprintf("[%s] %s", o.Kind, detail)
		}
		exit := "-"
		if o.ExitCode >= 0 {
			exit = fmt.Sprint(o.ExitCode)
		}
		row(tw, o.Service, string(o.Status), exit, formatDuration(o.Duration), singleLine(detail))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", run.Summary)
	return err
}

func renderLastOutcomes(w io.Writer, last []lastOutcome) error {
	tw := newTable(w)
	row(tw, "PHASE", "STATUS", "RUN", "EXIT", "DURATION", "DETAIL")
	for _, l := range last {
		detail := l.Detail
		if l.Kind != "" {
			detail = fmt.Sprintf("[%s] %s", l.Kind, detail)
		}
		exit := "-"
		if l.ExitCode >= 0 {
			exit = fmt.Sprint(l.ExitCode)
		}
		row(tw, string(l.Phase), string(l.Status), shortID(l.RunID), exit, formatDuration(l.Duration), singleLine(detail))
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// validation is the result of `validate`.
type validation struct {
	Manifest     string             `json:"manifest"`
	Services     int                `json:"services"`
	Repositories int                `json:"repositories"`
	Builds       int                `json:"builds"`
	Policies     int                `json:"policies"`
	Warnings     []policy.Violation `json:"warnings,omitempty"`
}

func newValidation(m *manifest.Manifest, result *policy.Result) validation {
	v := validation{
		Manifest:     m.Source,
		Services:     m.Len(),
		Repositories: len(m.Repositories()),
		Builds:       len(m.BuildServices()),
	}
	if result != nil {
		v.Policies = len(result.EvaluatedPolicies)
		v.Warnings = result.Warnings
	}
	return v
}

func renderValidation(w io.Writer, v validation) error {
	fmt.Fprintf(w, "%s is valid: %d services, %d repositories, %d builds (%d policies evaluated)\n",
		v.Manifest, v.Services, v.Repositories, v.Builds, v.Policies)
	for _, warn := range v.Warnings {
		if _, err := fmt.Fprintf(w, "  warning: %s\n", warn.String()); err != nil {
			return err
		}
	}
	return nil
}

// check is one line of `doctor`.
type check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

func toolChecks(tools []vcs.Tool) []check {
	checks := make([]check, 0, len(tools))
	for _, t := range tools {
		c := check{Name: t.Name, OK: t.Found, Detail: t.Path}
		if !t.Found {
			c.Detail = "not found on PATH"
		}
		checks = append(checks, c)
	}
	return checks
}

func renderChecks(w io.Writer, checks []check) error {
	tw := newTable(w)
	row(tw, "CHECK", "STATUS", "DETAIL")
	for _, c := range checks {
		status := "ok"
		if !c.OK {
			status = "FAIL"
		}
		row(tw, c.Name, status, singleLine(c.Detail))
	}
	return tw.Flush()
}
