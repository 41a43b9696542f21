package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/roc/cmd/util"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/server"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/ValentinKolb/roc/rpc/transport/http"
	"github.com/ValentinKolb/roc/rpc/transport/quic"
	"github.com/ValentinKolb/roc/rpc/transport/tcp"
	"github.com/ValentinKolb/roc/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultServerConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the roc server",
		Long:    `Start the roc server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is ROC_<flag> (e.g. ROC_DATA_DIR=/var/lib/roc)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	defaults := common.DefaultServerConfig()

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.Transport.Endpoint, cmdUtil.WrapString("The address on which clients connect (e.g. 127.0.0.1:7878, /tmp/roc.sock for unix)"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, defaults.Engine, cmdUtil.WrapString("In-memory database engine (btree: ordered tree, maple: hash table per user)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, defaults.DataDir, cmdUtil.WrapString("Directory holding the write-ahead log, the snapshot and the checkpoint flag. Created if missing"))

	key = "snapshot-interval"
	ServeCmd.PersistentFlags().Int64(key, defaults.SnapshotIntervalSecond, cmdUtil.WrapString("Seconds between periodic snapshots, 0 disables them (a snapshot is still written on shutdown)"))

	key = "snapshot-compression"
	ServeCmd.PersistentFlags().String(key, defaults.SnapshotCompression, cmdUtil.WrapString("Compression of snapshots (none, zstd)"))

	key = "engine-queue"
	ServeCmd.PersistentFlags().Int(key, defaults.EngineQueueSize, cmdUtil.WrapString("Capacity of the engine mailbox"))

	key = "session-queue"
	ServeCmd.PersistentFlags().Int(key, defaults.SessionQueueSize, cmdUtil.WrapString("Capacity of every user session mailbox"))

	key = "admin-queue"
	ServeCmd.PersistentFlags().Int(key, defaults.AdminQueueSize, cmdUtil.WrapString("Capacity of the admin mailbox"))

	key = "admin-endpoint"
	ServeCmd.PersistentFlags().String(key, defaults.AdminEndpoint, cmdUtil.WrapString("Address of the admin HTTP server (empty disables it). Must differ from the client endpoint"))

	key = "admin-console"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Read admin commands (shutdown, crash, clear, snapshot) from stdin"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, defaults.TimeoutSecond, cmdUtil.WrapString("Timeout in seconds a request waits for the engine"))

	key = "tls-cert"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("TLS certificate file for quic (a self-signed certificate is generated if empty)"))

	key = "tls-key"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("TLS key file for quic"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the write buffer for the transport (in KB, tcp and unix)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the read buffer for the transport (in KB, tcp and unix)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, only for tcp)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, defaults.LogLevel, cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	transportType, err := common.ParseTransportType(viper.GetString("transport"))
	if err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Type:     transportType,
		Endpoint: viper.GetString("endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
		TLSConf: common.TLSConf{
			CertFile: viper.GetString("tls-cert"),
			KeyFile:  viper.GetString("tls-key"),
		},
	}
	serveCmdConfig.Engine = viper.GetString("engine")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SnapshotIntervalSecond = viper.GetInt64("snapshot-interval")
	serveCmdConfig.SnapshotCompression = viper.GetString("snapshot-compression")
	serveCmdConfig.EngineQueueSize = viper.GetInt("engine-queue")
	serveCmdConfig.SessionQueueSize = viper.GetInt("session-queue")
	serveCmdConfig.AdminQueueSize = viper.GetInt("admin-queue")
	serveCmdConfig.AdminEndpoint = viper.GetString("admin-endpoint")
	serveCmdConfig.AdminConsole = viper.GetBool("admin-console")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if err := serveCmdConfig.Validate(); err != nil {
		return err
	}

	return common.InitLoggers(serveCmdConfig)
}

// run starts the roc server and blocks until it stopped
func run(_ *cobra.Command, _ []string) error {

	// Parse the transport
	var t transport.IRPCServerTransport
	switch serveCmdConfig.Transport.Type {
	case common.TransportQUIC:
		t = quic.NewQUICServerTransport()
	case common.TransportHTTP:
		t = http.NewHttpServerTransport()
	case common.TransportTCP:
		t = tcp.NewTCPServerTransport(64 * 1024)
	case common.TransportUnix:
		t = unix.NewUnixServerTransport(64 * 1024)
	default:
		return fmt.Errorf("invalid transport %s", serveCmdConfig.Transport.Type)
	}

	// SIGINT and SIGTERM shut the server down gracefully
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serv := server.NewRPCServer(serveCmdConfig, t)

	return serv.Serve(ctx)
}
