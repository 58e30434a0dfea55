package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/brutella/dnssd"
)

const (
	ServiceType = "_warpcall._tcp"
	Domain      = "local"

	defaultPath = "/ws"
)

// Server is a signaling server announced on the local network.
type Server struct {
	Instance string
	Host     string
	IPs      []net.IP
	Port     int
	Path     string
	Version  string
}

// URL is the websocket address a participant connects to.
func (s Server) URL() string {
	host := s.Host
	for _, ip := range s.IPs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	if host == "" && len(s.IPs) > 0 {
		host = s.IPs[0].String()
	}
	path := s.Path
	if path == "" {
		path = defaultPath
	}
	return "ws://" + net.JoinHostPort(host, strconv.Itoa(s.Port)) + path
}

// Advertise announces the server until ctx is done.
func Advertise(ctx context.Context, instance string, port int, version string, logger *slog.Logger) error {
	cfg := dnssd.Config{
		Name:   instance,
		Type:   ServiceType,
		Domain: Domain,
		Port:   port,
		Text: map[string]string{
			"path":    defaultPath,
			"version": version,
		},
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	logger.Info("advertising on mDNS", "instance", instance, "type", ServiceType, "port", port)
	if err = rp.Respond(ctx); err != nil && !isDone(err) {
		return fmt.Errorf("failed to respond to mDNS queries: %w", err)
	}
	logger.Debug("mDNS advertising stopped")
	return nil
}

// Browse collects announced servers until ctx is done and returns them sorted by instance.
func Browse(ctx context.Context, logger *slog.Logger) ([]Server, error) {
	var (
		mu      sync.Mutex
		servers = make(map[string]Server)
	)

	add := func(e dnssd.BrowseEntry) {
		s := fromEntry(e)
		logger.Debug("found server", "instance", s.Instance, "host", s.Host, "port", s.Port, "iface", e.IfaceName)
		mu.Lock()
		servers[entryKey(e)] = s
		mu.Unlock()
	}
	remove := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(servers, entryKey(e))
		mu.Unlock()
	}

	service := fmt.Sprintf("%s.%s.", ServiceType, Domain)
	if err := dnssd.LookupType(ctx, service, add, remove); err != nil && !isDone(err) {
		return nil, fmt.Errorf("mDNS lookup failed: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return snapshot(servers), nil
}

func entryKey(e dnssd.BrowseEntry) string {
	return fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)
}

func fromEntry(e dnssd.BrowseEntry) Server {
	return Server{
		Instance: e.Name,
		Host:     e.Host,
		IPs:      e.IPs,
		Port:     e.Port,
		Path:     e.Text["path"],
		Version:  e.Text["version"],
	}
}

func snapshot(servers map[string]Server) []Server {
	out := make([]Server, 0, len(servers))
	for _, s := range servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func isDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
