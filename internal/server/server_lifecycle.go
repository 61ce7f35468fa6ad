package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
)

// TLSConfig holds the TLS configuration for the server.
type TLSConfig struct {
	// CertPath is the path to the TLS certificate file.
	CertPath string
	// KeyPath is the path to the TLS private key file.
	KeyPath string
}

// StartAsync starts the server in a goroutine and returns any startup errors.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use). Failing
// to bind is the only error that should stop the relay process.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.serve(ln, false, errCh)
	return errCh
}

// StartAsyncTLS is StartAsync with TLS. When TLS is configured, the server
// only accepts HTTPS/WSS connections.
func (s *Server) StartAsyncTLS(tlsCfg TLSConfig) <-chan error {
	errCh := make(chan error, 1)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	cert, err := tls.LoadX509KeyPair(tlsCfg.CertPath, tlsCfg.KeyPath)
	if err != nil {
		ln.Close()
		errCh <- fmt.Errorf("failed to load TLS certificate: %w", err)
		close(errCh)
		return errCh
	}

	tlsLn := tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})

	s.serve(tlsLn, true, errCh)
	return errCh
}

// ListenAddr returns the bound address once started, or the configured
// address before that. Useful when addr ends in ":0".
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

func (s *Server) serve(ln net.Listener, tlsEnabled bool, errCh chan<- error) {
	mux := s.createMux()

	s.mu.Lock()
	s.httpServer = &http.Server{Handler: mux}
	s.boundAddr = ln.Addr().String()
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", tlsEnabled).Msg("relay listening")
		errCh <- nil
		close(errCh)

		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("relay server error")
		}
	}()
}

// Stop shuts down the server. It signals every client to close and stops
// accepting new connections. Broadcasts after Stop reach no one.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// writePump sends the close frame when it sees done closed.
	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)

	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer != nil {
		return httpServer.Close()
	}
	return nil
}
