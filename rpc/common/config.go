package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/tKV/lib/cluster"
	"github.com/ValentinKolb/tKV/lib/topology"
)

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes, zero keeps the OS default
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	Endpoint       string
	WorkersPerConn int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a cache node.
type ServerConfig struct {
	// Node identity, the name is the address of the node in the topology
	NodeName string

	// ClusterMembers maps the name of every member to its endpoint. An empty map
	// starts a single node cluster.
	ClusterMembers map[string]string

	// Topology parameters
	NumSegments int
	NumOwners   int
	TopologyID  int

	// Replication parameters
	AckTimeout  time.Duration
	LockTimeout time.Duration
	RecordTTL   time.Duration
	MaxRetries  int

	// how long a node waits for a topology it has not installed yet
	TopologyTimeout time.Duration

	// client request timeout
	TimeoutSecond int64

	// Transport settings
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string

	// MetricsEndpoint serves the prometheus metrics if set (e.g. :9090)
	MetricsEndpoint string
}

// Address returns the topology address of the node
func (c *ServerConfig) Address() topology.Address {
	return topology.Address(c.NodeName)
}

// Members returns the sorted addresses of all cluster members
func (c *ServerConfig) Members() []topology.Address {
	if len(c.ClusterMembers) == 0 {
		return []topology.Address{c.Address()}
	}
	members := make([]topology.Address, 0, len(c.ClusterMembers))
	for name := range c.ClusterMembers {
		members = append(members, topology.Address(name))
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}

// InitialTopology creates the topology the node starts with
func (c *ServerConfig) InitialTopology() (*topology.CacheTopology, error) {
	if len(c.ClusterMembers) > 0 {
		if _, ok := c.ClusterMembers[c.NodeName]; !ok {
			return nil, fmt.Errorf("node %q is not a cluster member", c.NodeName)
		}
	}
	return topology.NewCacheTopology(c.TopologyID, c.Members(), c.NumSegments, c.NumOwners)
}

// ToNodeConfig converts the ServerConfig to the configuration of a cluster node
func (c *ServerConfig) ToNodeConfig() cluster.Config {
	cfg := cluster.DefaultConfig()
	if c.AckTimeout > 0 {
		cfg.AckTimeout = c.AckTimeout
	}
	if c.LockTimeout > 0 {
		cfg.LockTimeout = c.LockTimeout
	}
	if c.RecordTTL > 0 {
		cfg.RecordTTL = c.RecordTTL
	}
	if c.MaxRetries != 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.TopologyTimeout > 0 {
		cfg.TopologyTimeout = c.TopologyTimeout
	}
	return cfg
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
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Node Identity
	addSection("Node Identity")
	addField("Node Name", c.NodeName)

	// Topology
	addSection("Topology")
	addField("Topology ID", strconv.Itoa(c.TopologyID))
	addField("Segments", strconv.Itoa(c.NumSegments))
	addField("Owners", strconv.Itoa(c.NumOwners))

	// Replication
	nodeCfg := c.ToNodeConfig()
	addSection("Replication")
	addField("Ack Timeout", nodeCfg.AckTimeout.String())
	addField("Lock Timeout", nodeCfg.LockTimeout.String())
	addField("Record TTL", nodeCfg.RecordTTL.String())
	addField("Max Retries", strconv.Itoa(nodeCfg.MaxRetries))
	addField("Topology Timeout", nodeCfg.TopologyTimeout.String())

	// Cluster configuration
	addSection("Cluster")
	if len(c.ClusterMembers) == 0 {
		sb.WriteString("  single node\n")
	}

	// Sort keys for consistent output
	for _, m := range c.Members() {
		if endpoint, ok := c.ClusterMembers[string(m)]; ok {
			sb.WriteString(fmt.Sprintf("    Node %s: %s\n", m, endpoint))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// Timeout returns the request timeout, zero disables it
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
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
