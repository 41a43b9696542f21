package kv

import (
	"github.com/ValentinKolb/roc/cmd/util"
	"github.com/ValentinKolb/roc/lib/store"
	"github.com/ValentinKolb/roc/rpc/client"
	"github.com/ValentinKolb/roc/rpc/common"
	"github.com/ValentinKolb/roc/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore     store.IStore
	rpcTransport transport.IRPCClientTransport
	clientConfig *common.ClientConfig
	userID       string

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		Long:               `Perform key-value store operations. Unless --user-id is given, the client performs the HI handshake first and reuses the user id stored in the user id file.`,
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	key := "user-id"
	KeyValueCommands.PersistentFlags().String(key, "", util.WrapString("User id to act as (skips the handshake and the user id file)"))

	key = "test-mode"
	KeyValueCommands.PersistentFlags().Bool(key, false, util.WrapString("Always request a fresh user id and never touch the user id file"))

	// Add subcommands
	KeyValueCommands.AddCommand(hiCmd)
	KeyValueCommands.AddCommand(pingCmd)
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(updateCmd)
	KeyValueCommands.AddCommand(rangeCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(exitCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the RPC store client and resolves the user id
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	clientConfig, rpcStore, rpcTransport, err = util.ConnectStore()
	if err != nil {
		return err
	}

	if userID = viper.GetString("user-id"); userID != "" {
		return nil
	}
	userID, err = client.LoadOrCreateUserID(rpcStore, clientConfig.UserIDFile, viper.GetBool("test-mode"))
	return err
}

// closeKVClient closes the transport after the command finished
func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcTransport == nil {
		return nil
	}
	return rpcTransport.Close()
}
