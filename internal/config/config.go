package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultServerURL   = "ws://localhost:8080/ws"
	DefaultSTUN        = "stun:stun.l.google.com:19302"
	DefaultCodec       = "json"
	DefaultAddr        = ":8080"
	DefaultServiceName = "warpcall"
)

// Config holds the call client's configuration
type Config struct {
	// ServerURL is the websocket endpoint of the signaling server
	ServerURL string

	// Codec is the wire encoding requested from the server (json or msgpack)
	Codec string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	Codec      string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		ServerURL:  firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"), DefaultServerURL),
		Codec:      strings.ToLower(firstNonEmpty(opts.Codec, os.Getenv("CODEC"), DefaultCodec)),
		STUNServer: firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay: opts.ForceRelay,
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.ServerURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be ws or wss", cfg.ServerURL)
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

// WebSocketURL returns the server url with the codec query set.
func (c *Config) WebSocketURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	q := u.Query()
	q.Set("codec", c.Codec)
	u.RawQuery = q.Encode()
	return u.String()
}

// HTTPBaseURL maps the websocket endpoint to the server's http root, for /rooms and /health.
func (c *Config) HTTPBaseURL() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return c.ServerURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ServerConfig holds the signaling server's configuration
type ServerConfig struct {
	// Addr is the listen address
	Addr string

	// AllowedOrigins restricts websocket upgrades; empty allows any origin
	AllowedOrigins []string

	// OTLPEndpoint enables metric export when set
	OTLPEndpoint string

	ServiceName string

	// Advertise announces the server on the local network over mDNS
	Advertise bool
}

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	Addr           string
	AllowedOrigins string
	OTLPEndpoint   string
	Advertise      bool
}

// LoadServer reads server configuration with the same priority as Load.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	cfg := &ServerConfig{
		Addr:         firstNonEmpty(opts.Addr, os.Getenv("ADDR"), DefaultAddr),
		OTLPEndpoint: firstNonEmpty(opts.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		ServiceName:  firstNonEmpty(os.Getenv("SERVICE_NAME"), DefaultServiceName),
		Advertise:    opts.Advertise || envBool("MDNS"),
	}

	for _, origin := range strings.Split(firstNonEmpty(opts.AllowedOrigins, os.Getenv("ALLOWED_ORIGINS")), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg, nil
}

// Port returns the numeric port of Addr, or 0 if it has none.
func (c *ServerConfig) Port() int {
	_, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
