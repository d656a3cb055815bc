// Package server binds the controller's TCP stream to ingestion
// sessions.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marionridgway/Project-Reactor/config"
	"github.com/marionridgway/Project-Reactor/logger"
	"github.com/marionridgway/Project-Reactor/session"
)

// Serve listens on the configured address and runs one session per
// connection, one connection at a time: the bridge has a single sender
// and events must apply in arrival order. It returns nil once ctx is
// cancelled and the session's error when the store is lost.
func Serve(ctx context.Context, cfg *config.Config, gateway session.Gateway) error {
	listener, err := net.Listen("tcp", cfg.Server.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr(), err)
	}
	return serveListener(ctx, listener, gateway)
}

func serveListener(ctx context.Context, listener net.Listener, gateway session.Gateway) error {
	defer listener.Close()
	logger.Printf("waiting for controller connection on %s\n", listener.Addr())

	var mu sync.Mutex
	var active net.Conn
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		listener.Close()
		mu.Lock()
		if active != nil {
			active.Close()
		}
		mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		mu.Lock()
		active = conn
		mu.Unlock()
		logger.Printf("controller connected from %s\n", conn.RemoteAddr())

		runErr := session.New(gateway).Run(conn)
		conn.Close()
		mu.Lock()
		active = nil
		mu.Unlock()

		if runErr != nil {
			return runErr
		}
		logger.Printf("controller disconnected\n")

		if ctx.Err() != nil {
			return nil
		}
	}
}
