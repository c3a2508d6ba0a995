package events

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartEmbeddedServer boots an in-process NATS server for deployments that
// do not run their own broker.
func StartEmbeddedServer(logger *log.Logger) (*server.Server, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, errors.New("unable to get user cache directory")
	}
	storeDir := filepath.Join(cacheDir, "memoryd", "nats")
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, errors.New("unable to create NATS store directory")
	}

	opts := &server.Options{
		Port:      4222,
		Host:      "127.0.0.1",
		JetStream: true,
		StoreDir:  storeDir,
	}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}
	go s.Start()

	if !s.ReadyForConnections(5 * time.Second) {
		return nil, errors.New("NATS server not ready in time")
	}

	if tcpAddr, ok := s.Addr().(*net.TCPAddr); ok {
		logger.Info("Started embedded NATS server", "port", tcpAddr.Port)
	}
	return s, nil
}

// Connect dials the broker with reconnect handling.
func Connect(url string, logger *log.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	return nats.Connect(url, opts...)
}
