// Command raftchatd runs one node of the replicated messaging cluster.
// Grounded on spec §6's process argument contract (node id, cluster
// config path, data directory, listen address); the flag-parsing and
// signal-driven graceful shutdown shape follows the `oba` LDAP server's
// serve command (internal/server + os/signal + context cancellation),
// since the teacher's own main.go is a three-line TUI launcher with
// nothing to generalize from for a headless daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"raftchat/internal/config"
	"raftchat/internal/raftnode"
	"raftchat/internal/rafttransport"
	"raftchat/internal/router"
	"raftchat/internal/rpcapi"
	"raftchat/internal/session"
	"raftchat/internal/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Error("raftchatd: fatal")
		os.Exit(1)
	}
}

func run() error {
	var (
		nodeID      = flag.Uint64("node", 0, "this node's id (must appear in the cluster config)")
		clusterPath = flag.String("cluster", "", "path to the cluster config JSON file")
		dataDir     = flag.String("data-dir", "", "directory for this node's durable store")
		listenAddr  = flag.String("listen", "", "address to listen on for peer and client RPCs")
	)
	flag.Parse()

	if *nodeID == 0 || *clusterPath == "" || *dataDir == "" || *listenAddr == "" {
		return fmt.Errorf("raftchatd: -node, -cluster, -data-dir and -listen are all required")
	}

	log := logrus.New().WithFields(logrus.Fields{"node": *nodeID})

	cluster, err := config.LoadCluster(*clusterPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("raftchatd: create data dir: %w", err)
	}

	st, err := store.Open(*dataDir + "/raftchat.db")
	if err != nil {
		return err
	}
	defer st.Close()

	transport := rafttransport.NewRPCTransport(log)
	tunables := config.DefaultTunables()
	if err := tunables.Validate(); err != nil {
		return err
	}

	node, err := raftnode.New(*nodeID, cluster, tunables, st, transport, log)
	if err != nil {
		return err
	}

	sessions := session.NewTable()
	r := router.New(node, sessions, tunables)

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(rafttransport.PeerServiceName, &raftnode.PeerService{Node: node}); err != nil {
		return fmt.Errorf("raftchatd: register peer service: %w", err)
	}
	if err := rpcServer.RegisterName(rpcapi.ServiceName, &rpcapi.ClientService{Router: r, Log: log}); err != nil {
		return fmt.Errorf("raftchatd: register client service: %w", err)
	}

	listener, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return fmt.Errorf("raftchatd: listen on %s: %w", *listenAddr, err)
	}
	defer listener.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go acceptLoop(ctx, listener, rpcServer, log)
	go node.Run(ctx)

	log.WithField("listen", *listenAddr).Info("raftchatd: node started")
	<-ctx.Done()
	log.Info("raftchatd: shutting down")
	node.Stop()
	return nil
}

func acceptLoop(ctx context.Context, listener net.Listener, rpcServer *rpc.Server, log *logrus.Entry) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.WithError(err).Warn("raftchatd: accept failed")
				continue
			}
		}
		go rpcServer.ServeConn(conn)
	}
}
