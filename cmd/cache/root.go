package cache

import (
	"github.com/ValentinKolb/tKV/cmd/util"
	"github.com/ValentinKolb/tKV/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcCache *client.RPCCache

	// CacheCommands represents the cache command group
	CacheCommands = &cobra.Command{
		Use:               "cache",
		Short:             "Perform cache operations",
		PersistentPreRunE: setupCacheClient,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if rpcCache == nil {
				return nil
			}
			return rpcCache.Close()
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the cache command
	util.SetupRPCClientFlags(CacheCommands)

	// Lifespan of written entries
	CacheCommands.PersistentFlags().Duration("lifespan", 0, util.WrapString("Lifespan of written entries (e.g. 30s, 5m), 0 never expires"))

	// Add subcommands
	CacheCommands.AddCommand(putCmd)
	CacheCommands.AddCommand(putIfAbsentCmd)
	CacheCommands.AddCommand(getCmd)
	CacheCommands.AddCommand(removeCmd)
	CacheCommands.AddCommand(removeIfCmd)
	CacheCommands.AddCommand(replaceCmd)
	CacheCommands.AddCommand(replaceIfCmd)
	CacheCommands.AddCommand(computeCmd)
	CacheCommands.AddCommand(putAllCmd)
	CacheCommands.AddCommand(statsCmd)
	CacheCommands.AddCommand(perfTestCmd)
}

// setupCacheClient initializes the RPC cache client
func setupCacheClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the cache client
	rpcCache, err = client.NewRPCCache(
		*config,
		t,
		s,
	)

	return err
}
