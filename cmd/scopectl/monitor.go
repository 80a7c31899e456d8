package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
)

var statusColors = map[string]tcell.Color{
	"PENDING":  tcell.ColorYellow,
	"RUNNING":  tcell.ColorAqua,
	"COMPLETE": tcell.ColorGreen,
	"ABORTED":  tcell.ColorRed,
}

// monitor is a live full-screen view of the mount's activities.
type monitor struct {
	client   *client
	interval time.Duration

	app    *tview.Application
	header *tview.TextView
	table  *tview.Table
	status *tview.TextView
}

func newMonitorCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live view of the current target and recent activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newMonitor(apiClient(), interval)
			return m.run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval")
	return cmd
}

func newMonitor(c *client, interval time.Duration) *monitor {
	m := &monitor{
		client:   c,
		interval: interval,
		app:      tview.NewApplication(),
	}

	m.header = tview.NewTextView().SetDynamicColors(true)
	m.header.SetBorder(true).SetTitle(" Mount ")

	m.table = tview.NewTable().SetFixed(1, 0).SetSelectable(true, false)
	m.table.SetBorder(true).SetTitle(" Activities ")

	m.status = tview.NewTextView().SetDynamicColors(true)
	m.status.SetText("[gray]q quit  r refresh  c cancel selected[-]")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(m.header, 3, 0, false).
		AddItem(m.table, 0, 1, true).
		AddItem(m.status, 1, 0, false)

	m.app.SetRoot(layout, true)
	m.app.SetInputCapture(m.handleKey)
	return m
}

func (m *monitor) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refresh(ctx)
			}
		}
	}()

	return m.app.Run()
}

func (m *monitor) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch {
	case ev.Key() == tcell.KeyEscape, ev.Rune() == 'q':
		m.app.Stop()
		return nil
	case ev.Rune() == 'r':
		go m.refresh(context.Background())
		return nil
	case ev.Rune() == 'c':
		row, _ := m.table.GetSelection()
		if ref, ok := m.table.GetCell(row, 0).GetReference().(uint64); ok {
			go m.cancel(ref)
		}
		return nil
	}
	return ev
}

func (m *monitor) cancel(id uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.client.command(ctx, fmt.Sprintf("/activities/%d/cancel", id), nil)
	m.app.QueueUpdateDraw(func() {
		if err != nil {
			m.status.SetText(fmt.Sprintf("[red]cancel #%d: %v[-]", id, err))
			return
		}
		m.status.SetText(fmt.Sprintf("[green]cancelled #%d[-]", id))
	})
	m.refresh(context.Background())
}

func (m *monitor) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.interval+5*time.Second)
	defer cancel()

	t, terr := m.client.currentTarget(ctx)
	acts, aerr := m.client.activities(ctx, 100)

	m.app.QueueUpdateDraw(func() {
		switch {
		case terr != nil:
			m.header.SetText(fmt.Sprintf("[red]%v[-]", terr))
		case t.Tracking:
			m.header.SetText(fmt.Sprintf("[yellow]Tracking[-] %s", t.Target))
		default:
			m.header.SetText("[gray]Idle[-]")
		}

		if aerr != nil {
			m.status.SetText(fmt.Sprintf("[red]%v[-]", aerr))
			return
		}
		m.fillTable(acts)
	})
}

func (m *monitor) fillTable(acts []activityView) {
	m.table.Clear()
	for col, h := range []string{"ID", "Kind", "Target", "Status", "Milestone", "Created", "Error"} {
		m.table.SetCell(0, col, tview.NewTableCell(h).SetTextColor(tcell.ColorYellow).SetSelectable(false))
	}

	for i := range acts {
		a := &acts[i]
		row := i + 1
		color, ok := statusColors[a.Status]
		if !ok {
			color = tcell.ColorWhite
		}
		m.table.SetCell(row, 0, tview.NewTableCell(fmt.Sprint(a.ID)).SetReference(a.ID))
		m.table.SetCell(row, 1, tview.NewTableCell(a.Kind))
		m.table.SetCell(row, 2, tview.NewTableCell(describe(a)).SetExpansion(1))
		m.table.SetCell(row, 3, tview.NewTableCell(a.Status).SetTextColor(color))
		m.table.SetCell(row, 4, tview.NewTableCell(a.Milestone))
		m.table.SetCell(row, 5, tview.NewTableCell(a.Created.Local().Format("15:04:05")))
		m.table.SetCell(row, 6, tview.NewTableCell(a.Error).SetTextColor(tcell.ColorRed))
	}
}
