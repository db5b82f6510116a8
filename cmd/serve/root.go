package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/tKV/cmd/util"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a tKV node",
		Long:    `Start a tKV node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is TKV_<flag> (e.g. TKV_NUM_OWNERS=3)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "node-name"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Name of the node, it must be one of the cluster members. A random name is generated for a single node cluster if empty"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of all nodes of the cluster in the format 'node-1=localhost:8080,node-2=localhost:8081,...'. Empty starts a single node cluster"))

	key = "num-segments"
	ServeCmd.PersistentFlags().Int(key, 256, cmdUtil.WrapString("Number of segments the key space is divided into. Must be the same on all nodes"))

	key = "num-owners"
	ServeCmd.PersistentFlags().Int(key, 2, cmdUtil.WrapString("Number of nodes owning each segment (one primary and num-owners - 1 backups)"))

	key = "topology-id"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Id of the initial topology. Must be the same on all nodes"))

	key = "ack-timeout"
	ServeCmd.PersistentFlags().Duration(key, 15*time.Second, cmdUtil.WrapString("How long the originator of a write waits for the acknowledgments of the owners"))

	key = "lock-timeout"
	ServeCmd.PersistentFlags().Duration(key, 10*time.Second, cmdUtil.WrapString("How long a primary owner waits for the lock of a key"))

	key = "record-ttl"
	ServeCmd.PersistentFlags().Duration(key, time.Minute, cmdUtil.WrapString("How long completed writes are remembered to answer retries"))

	key = "max-retries"
	ServeCmd.PersistentFlags().Int(key, 3, cmdUtil.WrapString("How often a write is retried after a topology change (negative disables retries)"))

	key = "topology-timeout"
	ServeCmd.PersistentFlags().Duration(key, 5*time.Second, cmdUtil.WrapString("How long a node waits for a topology it has not installed yet"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of client requests and of the connections to the other nodes"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. http:localhost:8080, /tmp/tkv.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Maximum number of concurrent requests per connection (tcp and unix only, 0 uses the transport default)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address to serve prometheus metrics on (e.g. :9090), empty disables metrics"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.NodeName = viper.GetString("node-name")
	serveCmdConfig.NumSegments = viper.GetInt("num-segments")
	serveCmdConfig.NumOwners = viper.GetInt("num-owners")
	serveCmdConfig.TopologyID = viper.GetInt("topology-id")
	serveCmdConfig.AckTimeout = viper.GetDuration("ack-timeout")
	serveCmdConfig.LockTimeout = viper.GetDuration("lock-timeout")
	serveCmdConfig.RecordTTL = viper.GetDuration("record-ttl")
	serveCmdConfig.MaxRetries = viper.GetInt("max-retries")
	serveCmdConfig.TopologyTimeout = viper.GetDuration("topology-timeout")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.WorkersPerConn = viper.GetInt("workers-per-conn")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse cluster members
	members, err := cmdUtil.ParseMembers(viper.GetString("cluster-members"))
	if err != nil {
		return err
	}
	serveCmdConfig.ClusterMembers = members

	if serveCmdConfig.NodeName == "" {
		if len(members) > 0 {
			return fmt.Errorf("node-name is required for a cluster")
		}
		serveCmdConfig.NodeName = string(topology.NewAddress())
	}

	// test if the node is one of the cluster members
	if _, ok := members[serveCmdConfig.NodeName]; !ok && len(members) > 0 {
		return fmt.Errorf("no endpoint found for node %s in cluster members", serveCmdConfig.NodeName)
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the tKV node and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}
	newClient, err := cmdUtil.GetClientFactory()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, newClient, s)

	// stop the node on signal
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		if _, ok := <-signals; ok {
			server.Logger.Infof("Shutting down")
			_ = serv.Close()
		}
	}()

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("tkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
