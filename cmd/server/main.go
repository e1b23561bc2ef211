package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiv248/textsync/internal/connection"
	"github.com/shiv248/textsync/internal/docstore"
	"github.com/shiv248/textsync/internal/hub"
	"github.com/shiv248/textsync/internal/registry"
	"github.com/shiv248/textsync/pkg/logger"
)

type flags struct {
	host             string
	port             int
	backlog          int
	snapshotDir      string
	oplogDir         string
	snapshotInterval int
	heartbeatTimeout int
	logLevel         string
	registryURI      string
	idleDocTTL       time.Duration
	idleSweepEvery   time.Duration
}

func main() {
	f := &flags{}

	root := &cobra.Command{
		Use:   "textsync-server",
		Short: "Collaborative text-editing TCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	root.Flags().StringVar(&f.host, "host", "0.0.0.0", "bind host")
	root.Flags().IntVar(&f.port, "port", 5055, "bind port")
	root.Flags().IntVar(&f.backlog, "backlog", 128, "listen backlog size (reported in the startup log; not applied to the listener)")
	root.Flags().StringVar(&f.snapshotDir, "snapshot-dir", "snapshots", "snapshot storage directory")
	root.Flags().StringVar(&f.oplogDir, "oplog-dir", "oplogs", "oplog storage directory")
	root.Flags().IntVar(&f.snapshotInterval, "snapshot-interval", 50, "snapshot every N applied ops (minimum 1)")
	root.Flags().IntVar(&f.heartbeatTimeout, "heartbeat-timeout", 120, "session idle timeout in seconds (0 disables)")
	root.Flags().StringVar(&f.logLevel, "log-level", "INFO", "log level (DEBUG/INFO/ERROR; anything else means INFO)")
	root.Flags().StringVar(&f.registryURI, "registry-db", "", "SQLite registry database path (empty disables the registry)")
	root.Flags().DurationVar(&f.idleDocTTL, "idle-doc-ttl", 0, "evict unsubscribed in-memory documents idle longer than this (0 disables)")
	root.Flags().DurationVar(&f.idleSweepEvery, "idle-sweep-interval", time.Minute, "how often the idle-document sweep runs")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(f *flags) error {
	logger.Init(f.logLevel)

	store := docstore.New(f.snapshotDir, f.oplogDir)
	if err := store.EnsureDirs(); err != nil {
		return fmt.Errorf("prepare storage directories: %w", err)
	}

	var reg *registry.Registry
	if f.registryURI != "" {
		var err error
		reg, err = registry.Open(f.registryURI)
		if err != nil {
			return fmt.Errorf("open registry: %w", err)
		}
		defer reg.Close()
		logger.Info("registry: %s", f.registryURI)
	} else {
		logger.Info("registry: disabled")
	}

	h := hub.New(store, reg, hub.Config{
		SnapshotInterval: f.snapshotInterval,
		HeartbeatTimeout: time.Duration(f.heartbeatTimeout) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.StartIdleSweeper(ctx, f.idleSweepEvery, f.idleDocTTL)

	addr := fmt.Sprintf("%s:%d", f.host, f.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	defer ln.Close()
	if tcpLn, ok := ln.(*net.TCPListener); ok {
		_ = tcpLn.SetDeadline(time.Time{})
	}
	logger.Info("textsync listening on %s (backlog=%d)", addr, f.backlog)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		h.Shutdown()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.Error("accept failed: %v", err)
				return fmt.Errorf("accept: %w", err)
			}
		}
		go connection.Handle(h, conn)
	}
}
