package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// RoomRow is one line of the rooms listing.
type RoomRow struct {
	ID       string
	Members  int
	Capacity int
}

func (r RoomRow) status() string {
	if r.Members >= r.Capacity {
		return "full"
	}
	return "waiting"
}

// RoomsView renders the rooms of a signaling server.
func RoomsView(rows []RoomRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			r.ID,
			fmt.Sprintf("%d/%d", r.Members, r.Capacity),
			r.status(),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Room", "Members", "Status").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderRooms(rows []RoomRow) {
	fmt.Fprintln(Output, RoomsView(rows))
}

// ServerRow is a signaling server found on the local network.
type ServerRow struct {
	Instance string
	Host     string
	Port     int
	URL      string
}

// ServersView renders discovered servers with go-pretty.
func ServersView(rows []ServerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No servers found")
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.AppendHeader(prettytable.Row{"#", "Instance", "Host", "Port", "URL"})
	for i, r := range rows {
		t.AppendRow(prettytable.Row{i + 1, r.Instance, r.Host, strconv.Itoa(r.Port), r.URL})
	}
	return t.Render()
}

func RenderServers(rows []ServerRow) {
	fmt.Fprintln(Output, ServersView(rows))
}

// CallSummary is printed once a call view exits.
type CallSummary struct {
	Room     string
	Peer     string
	Duration string
	Packets  int64
}

func CallSummaryView(s CallSummary) string {
	peer := s.Peer
	if peer == "" {
		peer = "-"
	}
	rows := [][]string{
		{"Room", s.Room},
		{"Peer", peer},
		{"Duration", s.Duration},
		{"RTP packets received", strconv.FormatInt(s.Packets, 10)},
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Metric", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableRowStyle
		})

	return tbl.Render()
}
