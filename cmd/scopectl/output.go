package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	statusStyles = map[string]lipgloss.Style{
		"PENDING":  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"RUNNING":  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"COMPLETE": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"ABORTED":  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func styleStatus(status string) string {
	if s, ok := statusStyles[status]; ok {
		return s.Render(status)
	}
	return status
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printCommand renders the outcome of a control command. A failed command
// still shows the activity the server attached to the error.
func printCommand(cmd *cobra.Command, res *commandResult, err error) error {
	out := cmd.OutOrStdout()
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Activity != nil && !viper.GetBool("json") {
			renderActivity(out, apiErr.Activity)
		}
		return err
	}

	if viper.GetBool("json") {
		return printJSON(out, res)
	}
	if res.Activity != nil {
		renderActivity(out, res.Activity)
	}
	if res.Resumed != nil {
		fmt.Fprintln(out, dimStyle.Render("resumed tracking:"))
		renderActivity(out, res.Resumed)
	}
	return nil
}

func describe(a *activityView) string {
	switch {
	case a.Target != "":
		return a.Target
	case a.Steps != nil:
		return fmt.Sprintf("bearing=%d dec=%d", a.Steps.Bearing, a.Steps.Dec)
	}
	return ""
}

func renderActivity(w io.Writer, a *activityView) {
	line := fmt.Sprintf("%s %s %s %s",
		labelStyle.Render(fmt.Sprintf("#%d", a.ID)),
		a.Kind,
		describe(a),
		styleStatus(a.Status),
	)
	if a.Milestone != "" {
		line += " " + dimStyle.Render(a.Milestone)
	}
	if a.Error != "" {
		line += " " + errorStyle.Render(a.Error)
	}
	fmt.Fprintln(w, strings.TrimSpace(line))
}

func renderActivities(w io.Writer, acts []activityView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Kind", "Target", "Status", "Milestone", "Created", "Error"})
	for i := range acts {
		a := &acts[i]
		tw.AppendRow(table.Row{a.ID, a.Kind, describe(a), a.Status, a.Milestone, a.Created.Local().Format("15:04:05"), a.Error})
	}
	tw.Render()
}

func renderEvents(w io.Writer, events []eventView) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Seq", "Time", "Status", "Milestone", "Note", "Error"})
	for _, ev := range events {
		tw.AppendRow(table.Row{ev.Seq, ev.Time.Local().Format("15:04:05.000"), ev.Status, ev.Milestone, ev.Note, ev.Error})
	}
	tw.Render()
}

func renderHistory(w io.Writer, records []historyRecord) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Time", "Session", "Activity", "Kind", "Target", "Status", "Milestone", "Error"})
	for _, r := range records {
		session := r.Session
		if len(session) > 8 {
			session = session[:8]
		}
		tw.AppendRow(table.Row{r.Time.Local().Format("2006-01-02 15:04:05"), session, r.ActivityID, r.Kind, r.Target, r.Status, r.Milestone, r.Error})
	}
	tw.Render()
}
