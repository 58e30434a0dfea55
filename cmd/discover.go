package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/discovery"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var flagDiscoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find signaling servers on the local network",
	Long: `Browse mDNS for signaling servers started with "warpcall serve --mdns".

Examples:
  warpcall discover
  warpcall discover --timeout 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return discoverServers(cmd.Context())
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&flagDiscoverTimeout, "timeout", 3*time.Second, "How long to listen for announcements")
	rootCmd.AddCommand(discoverCmd)
}

func discoverServers(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, flagDiscoverTimeout)
	defer cancel()

	sp := ui.NewConnectionSpinner("Looking for servers on the local network...")
	sp.Start()
	servers, err := discovery.Browse(ctx, slog.Default())
	if err != nil {
		sp.Error("Browsing failed")
		return callerr.NewError("discover servers", err)
	}
	sp.Success(fmt.Sprintf("Found %d server(s)", len(servers)))

	ui.RenderServers(serverRows(servers))
	return nil
}

func serverRows(servers []discovery.Server) []ui.ServerRow {
	rows := make([]ui.ServerRow, 0, len(servers))
	for _, s := range servers {
		rows = append(rows, ui.ServerRow{Instance: s.Instance, Host: s.Host, Port: s.Port, URL: s.URL()})
	}
	return rows
}
