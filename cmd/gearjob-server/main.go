// Gearjob-server is a gRPC job server that queues jobs submitted by clients
// and hands them to workers.
//
// The server can be configured with the following options:
//
//   - `--address`: The address to listen on.
//   - `--server-cert`: The path to the server's certificate file.
//   - `--server-key`: The path to the server's key file.
//   - `--client-ca-cert`: The path to the client CA certificate file.
//   - `--hostname`: The host name used in job handles.
//   - `--retention`: How long finished jobs can be queried.
//   - `--log-level`: The minimum level of log messages.
//
// Without certificate files the server accepts plaintext connections. The
// server can also be configured using environment variables:
//
//   - GEARJOB_ADDRESS: The address to listen on.
//   - GEARJOB_SERVER_CERT: The path to the server's certificate file.
//   - GEARJOB_SERVER_KEY: The path to the server's key file.
//   - GEARJOB_CLIENT_CA_CERT: The path to the client CA certificate file.
//
// Sample usage after environment setup:
//
//	gearjob-server --hostname jobs1
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/juliaogris/gearjob/pkg/gearjob"
	"github.com/juliaogris/gearjob/pkg/queue"
)

const description = "Gearjob-server is a gRPC job server that queues jobs for workers."

type app struct {
	Address      string `required:"" short:"A" help:"Address to listen on." env:"GEARJOB_ADDRESS"`
	ServerCert   string `help:"Server certificate file." env:"GEARJOB_SERVER_CERT"`
	ServerKey    string `help:"Server private key file." env:"GEARJOB_SERVER_KEY"`
	ClientCACert string `help:"Client CA certificate file." env:"GEARJOB_CLIENT_CA_CERT"`

	Hostname  string        `short:"H" help:"Host name used in job handles, defaults to the system host name."`
	Retention time.Duration `short:"r" default:"1h" help:"How long finished jobs can be queried, 0 for ever." env:"GEARJOB_RETENTION"`
	LogLevel  slog.Level    `short:"l" help:"Log level: DEBUG, INFO, WARN or ERROR." default:"INFO" env:"GEARJOB_LOG_LEVEL"`
}

func main() {
	opts := []kong.Option{kong.Description(description)}
	kctx := kong.Parse(&app{}, opts...)
	kctx.FatalIfErrorf(kctx.Run())
}

// Run is called by [kong] after flags have been validated and parsed.
func (a *app) Run() error {
	slog.SetLogLoggerLevel(a.LogLevel)
	opts := []queue.Option{queue.WithRetention(a.Retention)}
	if a.Hostname != "" {
		opts = append(opts, queue.WithHostname(a.Hostname))
	}
	tlsFiles := gearjob.TLSFiles{Cert: a.ServerCert, Key: a.ServerKey, CA: a.ClientCACert}
	server, err := gearjob.NewServer(tlsFiles, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.StopOnSignals(os.Interrupt)
	lis, err := net.Listen("tcp", a.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	slog.Info("starting server", "address", lis.Addr().String(), "tls", tlsFiles.Enabled())
	if err := server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}
