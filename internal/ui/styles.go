package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary    = lipgloss.Color("#34d399") // green accent
	Secondary  = lipgloss.Color("#7C3AED")
	Success    = lipgloss.Color("#10B981")
	Warning    = lipgloss.Color("#F59E0B")
	Error      = lipgloss.Color("#EF4444")
	Muted      = lipgloss.Color("#6B7280")
	Foreground = lipgloss.Color("#F9FAFB")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(Error)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	// StatusStyle renders the negotiation state badge.
	StatusStyle = lipgloss.NewStyle().
			Foreground(Foreground).
			Background(Secondary).
			Bold(true).
			Padding(0, 1)
)

var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCell        = lipgloss.NewStyle().Padding(0, 1)
	TableRowStyle    = tableCell.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCell.Foreground(lipgloss.Color("245"))
)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconCall    = "📞"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconAudio   = "🔊"
)

// Output is where the Print helpers write.
var Output io.Writer = os.Stdout

func printLine(icon string, iconStyle lipgloss.Style, msg string) {
	fmt.Fprintf(Output, "%s %s\n", iconStyle.Render(icon), msg)
}

func PrintError(msg string) {
	printLine(IconError, ErrorStyle, ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	printLine(IconWarning, WarningStyle, WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	printLine(IconSuccess, SuccessStyle, msg)
}

func PrintInfo(msg string) {
	printLine(IconInfo, lipgloss.NewStyle(), msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
