package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/accordlabs/accord/lib/value"
	"github.com/accordlabs/accord/remote/codec"
	"github.com/accordlabs/accord/remote/common"
	"github.com/accordlabs/accord/remote/transport"
	"github.com/accordlabs/accord/remote/transport/httpt"
	"github.com/accordlabs/accord/remote/transport/tcpt"
	"github.com/accordlabs/accord/remote/transport/unixt"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds common connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the accord server, an URL for http, host:port for tcp or a socket path for unix. Multiple endpoints can be specified as a comma-separated list for round-robin load balancing"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry the request"))

	key = "connections"
	cmd.PersistentFlags().Int(key, 1, WrapString("Connections per endpoint for the socket transports"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Disable Nagle's algorithm on the tcp transport"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("accord")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		RetryCount:             viper.GetInt("retries"),
		Endpoints:              strings.Split(viper.GetString("endpoints"), ","),
		ConnectionsPerEndpoint: viper.GetInt("connections"),
		Socket: common.SocketConfig{
			TCPNoDelay: viper.GetBool("tcp-nodelay"),
		},
	}
}

// GetCodec creates a codec based on configuration
func GetCodec() (codec.Codec, error) {
	switch viper.GetString("codec") {
	case "json":
		return codec.NewJSONCodec(), nil
	case "gob":
		return codec.NewGOBCodec(), nil
	default:
		return nil, fmt.Errorf("invalid codec %s", viper.GetString("codec"))
	}
}

// GetTransport creates a client transport based on configuration
func GetTransport() (transport.ClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return httpt.NewHTTPClientTransport(), nil
	case "tcp":
		return tcpt.NewTCPClientTransport(), nil
	case "unix":
		return unixt.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// ParseValue turns a command line argument into a value. Arguments that
// parse as JSON keep their JSON type, everything else becomes a string.
func ParseValue(arg string) value.Value {
	var v value.Value
	if err := json.Unmarshal([]byte(arg), &v); err == nil {
		return v
	}
	return value.String(arg)
}
