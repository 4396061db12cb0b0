package gearjob

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/juliaogris/gearjob/pkg/queue"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Sentinel Errors returned by the gearjob package.
var (
	ErrCredentials = errors.New("credentials setup error")
	ErrCertLoad    = errors.New("certificate load error")
	ErrCASetup     = errors.New("CA setup error")
	ErrCommonName  = errors.New("failed to extract Common Name")
	ErrClientConn  = errors.New("client connection error")
	ErrMessage     = errors.New("malformed message")
	ErrIncomplete  = errors.New("task set incomplete")
)

// TLSFiles names the PEM files used to secure connections. For a server, CA
// is the client CA; for a client, CA is the server CA and may be empty to
// use the system roots. The zero value selects plaintext connections.
type TLSFiles struct {
	Cert string
	Key  string
	CA   string
}

// Enabled reports whether any TLS file is set.
func (f TLSFiles) Enabled() bool {
	return f.Cert != "" || f.Key != "" || f.CA != ""
}

// Client is a connection to a gearjob server. It is used both by
// applications submitting tasks and by workers running them.
type Client struct {
	conn *grpc.ClientConn
	rpc  jobClient
}

// Server is a wrapper around the gRPC server for the JobServer service.
// It provides methods for starting and stopping the server, as well as
// managing the underlying job queue.
type Server struct {
	*grpc.Server
	queue *queue.Queue
}

// NewClient creates a new gearjob client for the server at the specified
// address. With TLS files set it authenticates with the client certificate
// and key using mTLS; otherwise it connects in plaintext.
//
// The connection is established lazily on the first call.
func NewClient(address string, tlsFiles TLSFiles) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsFiles.Enabled() {
		tlsConfig, err := tlsFiles.clientConfig()
		if err != nil {
			return nil, fmt.Errorf("NewClient: %w: %w", ErrCredentials, err)
		}
		creds = credentials.NewTLS(tlsConfig)
	}
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("NewClient: address %q: %w", address, err)
	}
	return &Client{conn: conn, rpc: jobClient{cc: conn}}, nil
}

// Close closes the client's connection to the server.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("%w: cannot close: %w", ErrClientConn, err)
	}
	return nil
}

// NewServer creates a new gearjob server backed by a fresh job queue created
// with the given options.
//
// With TLS files set, the server requires and verifies client certificates
// and tags every call with the client's Common Name. Without them it serves
// plaintext.
func NewServer(tlsFiles TLSFiles, queueOpts ...queue.Option) (*Server, error) {
	var opts []grpc.ServerOption
	if tlsFiles.Enabled() {
		tlsConfig, err := tlsFiles.serverConfig()
		if err != nil {
			return nil, fmt.Errorf("NewServer: %w: %w", ErrCredentials, err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	} else {
		slog.Warn("serving without TLS")
	}
	i := interceptor{requireCN: tlsFiles.Enabled()}
	opts = append(opts, grpc.UnaryInterceptor(i.unary), grpc.StreamInterceptor(i.stream))
	q := queue.NewQueue(queueOpts...)
	grpcServer := grpc.NewServer(opts...)
	Register(grpcServer, &Service{Queue: q})
	return &Server{
		Server: grpcServer,
		queue:  q,
	}, nil
}

// Queue returns the job queue served by s.
func (s *Server) Queue() *queue.Queue {
	return s.queue
}

// Stop stops the server ungracefully and shuts down the job queue.
// Useful for tests, especially within a defer statement.
func (s *Server) Stop() {
	if err := s.queue.Shutdown(); err != nil {
		slog.Error("failed to shut down job queue", "err", err)
	}
	s.Server.Stop()
}

// StopOnSignals registers signal handlers to gracefully stop the server
// and shut down the job queue when specified signals are received.
// If no signals are provided, this function does nothing.
func (s *Server) StopOnSignals(sig ...os.Signal) {
	if len(sig) == 0 {
		return
	}
	go handleSignals(s.Server, s.queue, sig...)
}

// handleSignals receives signals and gracefully stops the server and job
// queue. It is intended to be run in a separate goroutine.
func handleSignals(grpcServer *grpc.Server, q *queue.Queue, sig ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig...)
	<-ch
	slog.Info("stopping server")
	// Queue shutdown must precede GracefulStop to release blocked Grab and Watch calls.
	if err := q.Shutdown(); err != nil {
		slog.Error("failed to shut down job queue", "err", err)
	}
	go grpcServer.GracefulStop()
	time.Sleep(2 * time.Second) // grace period
	grpcServer.Stop()
}
