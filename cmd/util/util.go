package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/client"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/ValentinKolb/roc/rpc/transport/http"
	"github.com/ValentinKolb/roc/rpc/transport/quic"
	"github.com/ValentinKolb/roc/rpc/transport/tcp"
	"github.com/ValentinKolb/roc/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. ROC_DATA_DIR)
	EnvPrefix = "roc"
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

// InitConfig loads .env files and makes viper read ROC_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "127.0.0.1:7878", WrapString("The address of the roc server. Multiple endpoints can be specified as a comma-separated list, requests are balanced round robin"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint (tcp and unix)"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try a request"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http and quic)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http and quic)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds, only for tcp)"))

	key = "tls-insecure"
	cmd.PersistentFlags().Bool(key, false, WrapString("Accept any server certificate (only for quic, needed for self-signed certificates)"))

	key = "user-id-file"
	cmd.PersistentFlags().String(key, "", WrapString("Where the client keeps its user id (default ~/.roc_client/user_id.crd)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	transportType, err := common.ParseTransportType(viper.GetString("transport"))
	if err != nil {
		return nil, err
	}

	userIDFile := viper.GetString("user-id-file")
	if userIDFile == "" {
		if userIDFile, err = client.DefaultUserIDFile(); err != nil {
			return nil, err
		}
	}

	conf := &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		UserIDFile:    userIDFile,
		Transport: common.ClientTransportConfig{
			Type:                   transportType,
			RetryCount:             viper.GetInt("transport-retries"),
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
			TLSConf: common.TLSConf{
				InsecureSkipVerify: viper.GetBool("tls-insecure"),
			},
		},
	}

	return conf, nil
}

// GetTransport creates the client transport of the given type
func GetTransport(t common.TransportType) (transport.IRPCClientTransport, error) {
	switch t {
	case common.TransportQUIC:
		return quic.NewQUICClientTransport(), nil
	case common.TransportHTTP:
		return http.NewHttpClientTransport(), nil
	case common.TransportTCP:
		return tcp.NewTCPClientTransport(), nil
	case common.TransportUnix:
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", t)
	}
}

// ConnectStore creates an RPC store client from the configuration in viper.
// The returned transport must be closed by the caller.
func ConnectStore() (*common.ClientConfig, store.IStore, transport.IRPCClientTransport, error) {
	config, err := GetClientConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	t, err := GetTransport(config.Transport.Type)
	if err != nil {
		return nil, nil, nil, err
	}

	s, err := client.NewRPCStore(*config, t)
	if err != nil {
		return nil, nil, nil, err
	}
	return config, s, t, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
