package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Warpcall/internal/callerr"
	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/server"
	"github.com/BioHazard786/Warpcall/internal/ui"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on a signaling server",
	Long: `List the rooms a signaling server currently holds and how many participants each has.

Examples:
  warpcall rooms
  warpcall rooms --server wss://signal.example.com/ws`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms(cmd.Context())
	},
}

func init() {
	roomsCmd.Flags().StringVar(&flagRoomsServer, "server", "", "Signaling server websocket url (env SERVER_URL)")
	rootCmd.AddCommand(roomsCmd)
}

func listRooms(ctx context.Context) error {
	cfg, err := config.Load(config.Options{ServerURL: flagRoomsServer})
	if err != nil {
		return callerr.NewError("load config", err)
	}

	rooms, err := fetchRooms(ctx, cfg.HTTPBaseURL(), dns.NewResolver())
	if err != nil {
		return callerr.WrapError("list rooms", err, cfg.ServerURL)
	}

	rows := make([]ui.RoomRow, 0, len(rooms.Rooms))
	for _, r := range rooms.Rooms {
		rows = append(rows, ui.RoomRow{ID: r.ID, Members: r.Members, Capacity: rooms.Capacity})
	}
	ui.RenderRooms(rows)
	return nil
}

func fetchRooms(ctx context.Context, baseURL string, resolver *dns.Resolver) (*server.RoomsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := &http.Client{Transport: &http.Transport{DialContext: resolver.DialContext}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", callerr.ErrTimeout, err)
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", callerr.ErrServerRejected, resp.StatusCode)
	}

	var rooms server.RoomsResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return &rooms, nil
}
