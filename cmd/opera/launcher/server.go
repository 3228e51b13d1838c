package launcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"

	"github.com/rony4d/go-opera-devnode/ethapi"
	"github.com/rony4d/go-opera-devnode/integration"
)

// endpoint is one listening JSON-RPC server.
type endpoint struct {
	name string
	rpc  *rpc.Server
	http *http.Server
	addr net.Addr
}

// rpcStack holds the HTTP and WebSocket endpoints of a node.
type rpcStack struct {
	endpoints []*endpoint
}

// startRPC starts the endpoints enabled in cfg. On failure every endpoint
// started so far is closed again.
func startRPC(n *integration.Node, cfg RPCConfig) (*rpcStack, error) {
	stack := &rpcStack{}
	if cfg.HTTPEnabled {
		srv, err := ethapi.NewServer(n, cfg.HTTPAPI)
		if err != nil {
			return nil, err
		}
		handler := newCorsHandler(srv, cfg.HTTPCors)
		if err := stack.listen("http", fmt.Sprintf("%s:%d", cfg.HTTPAddr, cfg.HTTPPort), srv, handler, cfg.Timeout); err != nil {
			stack.Close()
			return nil, err
		}
	}
	if cfg.EnableWS {
		srv, err := ethapi.NewServer(n, cfg.WSAPI)
		if err != nil {
			stack.Close()
			return nil, err
		}
		// websocket connections are long lived, no timeouts
		if err := stack.listen("ws", fmt.Sprintf("%s:%d", cfg.WSAddr, cfg.WSPort), srv, srv.WebsocketHandler(cfg.WSOrigins), 0); err != nil {
			stack.Close()
			return nil, err
		}
	}
	return stack, nil
}

func (s *rpcStack) listen(name, addr string, srv *rpc.Server, handler http.Handler, timeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		srv.Stop()
		return fmt.Errorf("%s endpoint %s: %w", name, addr, err)
	}
	e := &endpoint{
		name: name,
		rpc:  srv,
		http: &http.Server{
			Handler:      handler,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
			IdleTimeout:  120 * time.Second,
		},
		addr: listener.Addr(),
	}
	go func() {
		if err := e.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("RPC endpoint stopped", "endpoint", name, "err", err)
		}
	}()
	s.endpoints = append(s.endpoints, e)
	log.Info(fmt.Sprintf("%s endpoint opened", name), "url", fmt.Sprintf("%s://%s", name, e.addr))
	return nil
}

// Close shuts the endpoints down.
func (s *rpcStack) Close() {
	for _, e := range s.endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.http.Shutdown(ctx); err != nil {
			log.Warn("RPC endpoint shutdown failed", "endpoint", e.name, "err", err)
		}
		cancel()
		e.rpc.Stop()
		log.Info(fmt.Sprintf("%s endpoint closed", e.name), "url", fmt.Sprintf("%s://%s", e.name, e.addr))
	}
	s.endpoints = nil
}

func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	// disable CORS support if user has not specified a custom CORS configuration
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(srv)
}
