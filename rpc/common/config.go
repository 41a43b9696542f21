package common

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// TransportType names a client/server transport.
type TransportType string

const (
	TransportQUIC TransportType = "quic"
	TransportTCP  TransportType = "tcp"
	TransportUnix TransportType = "unix"
	TransportHTTP TransportType = "http"
)

// ParseTransportType validates a transport name.
func ParseTransportType(s string) (TransportType, error) {
	switch t := TransportType(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportQUIC, TransportTCP, TransportUnix, TransportHTTP:
		return t, nil
	default:
		return "", fmt.Errorf("invalid transport %q (expected one of: quic, tcp, unix, http)", s)
	}
}

// SocketConf holds socket buffer sizes (tcp and unix).
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TLSConf holds the TLS material for the quic transport. If CertFile and KeyFile are
// empty the server generates a self-signed certificate at startup.
type TLSConf struct {
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool // client only
}

// ServerTransportConfig configures the server side transport.
type ServerTransportConfig struct {
	Type     TransportType
	Endpoint string
	SocketConf
	TCPConf
	TLSConf
}

// ClientTransportConfig configures the client side transport.
type ClientTransportConfig struct {
	Type                   TransportType
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
	TLSConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a roc server.
type ServerConfig struct {
	Transport ServerTransportConfig

	// Storage
	Engine                 string
	DataDir                string
	SnapshotIntervalSecond int64
	SnapshotCompression    string

	// Actor mailboxes
	EngineQueueSize  int
	SessionQueueSize int
	AdminQueueSize   int

	// Operator control
	AdminEndpoint string
	AdminConsole  bool

	// TimeoutSecond bounds how long a request waits for the engine
	TimeoutSecond int64

	// Logging configuration
	LogLevel string
}

// DefaultServerConfig returns the configuration used by `roc serve` without flags.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport: ServerTransportConfig{
			Type:     TransportQUIC,
			Endpoint: "127.0.0.1:7878",
			TCPConf:  TCPConf{TCPNoDelay: true},
		},
		Engine:                 "btree",
		DataDir:                "data",
		SnapshotIntervalSecond: 30,
		SnapshotCompression:    "zstd",
		EngineQueueSize:        1024,
		SessionQueueSize:       64,
		AdminQueueSize:         8,
		AdminEndpoint:          "127.0.0.1:9880",
		TimeoutSecond:          5,
		LogLevel:               "info",
	}
}

// Timeout returns TimeoutSecond as a duration (0 = no timeout).
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// SnapshotInterval returns SnapshotIntervalSecond as a duration (0 = disabled).
func (c *ServerConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSecond) * time.Second
}

// Validate checks the configuration for values the server cannot start with.
func (c *ServerConfig) Validate() error {
	if _, err := ParseTransportType(string(c.Transport.Type)); err != nil {
		return err
	}
	if c.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	if c.AdminEndpoint != "" && c.AdminEndpoint == c.Transport.Endpoint {
		return fmt.Errorf("admin endpoint must differ from the client endpoint (%s)", c.AdminEndpoint)
	}
	if c.SnapshotIntervalSecond < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
	}
	switch c.Engine {
	case "", "btree", "maple":
	default:
		return fmt.Errorf("invalid database engine %q (expected btree or maple)", c.Engine)
	}
	switch c.SnapshotCompression {
	case "", "none", "zstd":
	default:
		return fmt.Errorf("invalid snapshot compression %q (expected none or zstd)", c.SnapshotCompression)
	}
	if (c.Transport.CertFile == "") != (c.Transport.KeyFile == "") {
		return fmt.Errorf("tls cert and key must be given together")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Transport", string(c.Transport.Type))
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.Transport.Type == TransportQUIC {
		if c.Transport.CertFile != "" {
			addField("TLS Certificate", c.Transport.CertFile)
		} else {
			addField("TLS Certificate", "self-signed")
		}
	}

	// Storage
	addSection("Storage")
	addField("Engine", c.Engine)
	addField("Data Directory", c.DataDir)
	if abs, err := filepath.Abs(c.DataDir); err == nil && abs != c.DataDir {
		addField("Absolute Path", abs)
	}
	addField("Snapshot Interval", fmt.Sprintf("%d sec", c.SnapshotIntervalSecond))
	addField("Snapshot Compression", c.SnapshotCompression)

	// Actors
	addSection("Mailboxes")
	addField("Engine Queue", strconv.Itoa(c.EngineQueueSize))
	addField("Session Queue", strconv.Itoa(c.SessionQueueSize))
	addField("Admin Queue", strconv.Itoa(c.AdminQueueSize))

	// Admin
	addSection("Admin")
	if c.AdminEndpoint != "" {
		addField("Endpoint", c.AdminEndpoint)
	} else {
		addField("Endpoint", "disabled")
	}
	addField("Console", fmt.Sprintf("%t", c.AdminConsole))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds the configuration of a roc client.
type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
	// UserIDFile is where the client persists its user id between runs
	UserIDFile string
}

// Timeout returns TimeoutSecond as a duration (0 = no timeout).
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Transport", string(c.Transport.Type))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))
	if c.UserIDFile != "" {
		addField("User ID File", c.UserIDFile)
	}

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
