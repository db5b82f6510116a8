package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/tKV/lib/cluster"
	"github.com/ValentinKolb/tKV/lib/topology"
	"github.com/ValentinKolb/tKV/rpc/common"
	"github.com/ValentinKolb/tKV/rpc/peer"
	"github.com/ValentinKolb/tKV/rpc/serializer"
	"github.com/ValentinKolb/tKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("server")

// NewRPCServer creates a new RPC server
// It takes a config, the server transport, a factory for the client transports
// to the other members and a serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		tcp.NewTCPClientTransport,
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	newClient peer.ClientFactory,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		newClient:  newClient,
		serializer: serializer,
		adapter:    NewCacheServerAdapter(),
	}
}

// RPCServer serves the cache operations and the replication commands of one
// cluster node
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	newClient  peer.ClientFactory
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	mu      sync.Mutex
	node    *cluster.Node
	peer    *peer.Peer
	metrics *http.Server
}

// Node returns the cluster node of the server, nil before Serve
func (s *RPCServer) Node() *cluster.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node
}

// Serve starts the RPC server
// This function will also create the cluster node and start the transport
// layer. It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	err := s.transport.Listen(s.config)
	if errors.Is(err, transport.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the transport and the node
func (s *RPCServer) Close() error {
	err := s.transport.Close()

	s.mu.Lock()
	node, metricsServer := s.node, s.metrics
	s.mu.Unlock()

	if node != nil {
		err = errors.Join(err, node.Close())
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = errors.Join(err, metricsServer.Shutdown(ctx))
	}
	return err
}

func (s *RPCServer) init() error {
	initial, err := s.config.InitialTopology()
	if err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	// Endpoints of the other members
	endpoints := make(map[topology.Address]string, len(s.config.ClusterMembers))
	for name, endpoint := range s.config.ClusterMembers {
		if name != s.config.NodeName {
			endpoints[topology.Address(name)] = endpoint
		}
	}

	clientCfg := common.ClientConfig{
		TimeoutSecond: int(s.config.TimeoutSecond),
		Transport: common.ClientTransportConfig{
			RetryCount:             3,
			ConnectionsPerEndpoint: 1,
			SocketConf:             s.config.Transport.SocketConf,
			TCPConf:                s.config.Transport.TCPConf,
		},
	}

	p := peer.New(s.config.Address(), endpoints, s.newClient, clientCfg, s.serializer)
	node := cluster.NewNode(p, initial, s.config.ToNodeConfig())

	s.mu.Lock()
	s.peer = p
	s.node = node
	s.mu.Unlock()

	if s.config.MetricsEndpoint != "" {
		if err := s.serveMetrics(); err != nil {
			_ = node.Close()
			return err
		}
	}

	Logger.Infof("tKV node %s joined topology %d with %d members", node.Address(), initial.TopologyID, len(initial.Members))

	// Configure the transport layer
	s.registerTransportHandler()
	return nil
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = s.handle(&msg)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

func (s *RPCServer) handle(msg *common.Message) *common.Message {
	// Commands of other members go to the peer, they never block
	if msg.MsgType == common.MsgTCommand {
		return common.NewCommandResponse(s.peer.Receive(msg.Key, msg.Meta))
	}

	ctx := context.Background()
	if s.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
		defer cancel()
	}
	return s.adapter.Handle(ctx, msg, s.node)
}

// serveMetrics exposes the metrics of the process in the prometheus format
func (s *RPCServer) serveMetrics() error {
	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	s.mu.Lock()
	s.metrics = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics server: %v", err)
		}
	}()
	Logger.Infof("Serving metrics on %s/metrics", listener.Addr())
	return nil
}
