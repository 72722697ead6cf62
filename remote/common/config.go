package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Sync server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for a sync server node.
type ServerConfig struct {
	// state engine parameters
	HistorySize int

	// storage settings, an empty DataDir disables the persistent event log
	DataDir string

	// api settings, the endpoint is an address for http and tcp or a socket
	// path for unix transports
	Endpoint      string
	DebugEndpoint string

	// socket transport settings, TimeoutSecond bounds response writes
	TimeoutSecond int
	Socket        SocketConfig

	// Logging configuration
	LogLevel string
}

// HasEventLog checks if the configuration enables the persistent event log
func (c *ServerConfig) HasEventLog() bool {
	return c.DataDir != ""
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

	// Sync server settings
	addSection("Sync Server")
	addField("Endpoint", c.Endpoint)
	if c.DebugEndpoint != "" {
		addField("Debug Endpoint", c.DebugEndpoint)
	}
	if c.TimeoutSecond > 0 {
		addField("Write Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	}

	// State engine
	addSection("State Engine")
	addField("History Size", strconv.Itoa(c.HistorySize))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.HasEventLog() {
		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Socket tuning options
// --------------------------------------------------------------------------

// SocketConfig tunes connections of the socket transports (tcp, unix). The
// zero value leaves the operating system defaults in place.
type SocketConfig struct {
	WriteBufferSize int
	ReadBufferSize  int
	TCPNoDelay      bool
	TCPKeepAliveSec int
}

// --------------------------------------------------------------------------
// Sync client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints     []string
	TimeoutSecond int
	RetryCount    int

	// socket transport settings, ignored by the http transport
	ConnectionsPerEndpoint int
	Socket                 SocketConfig
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
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	if c.ConnectionsPerEndpoint > 0 {
		addField("Conns Per Endpoint", strconv.Itoa(c.ConnectionsPerEndpoint))
	}

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
