// Gearjob-worker runs jobs for a gearjob server.
//
// It serves the built-in example jobs Add and Reverse. With a plugin
// directory it also serves the jobs named with `--plugin`, each loaded from
// `<plugin-dir>/<Name>.so`, which must export a `New<Name>` job factory.
//
// The worker can be configured using environment variables:
//
//   - GEARJOB_ADDRESS: the address of the gearjob server.
//   - GEARJOB_CLIENT_CERT: the path to the client's certificate file.
//   - GEARJOB_CLIENT_KEY: the path to the client's key file.
//   - GEARJOB_SERVER_CA_CERT: the path to the server's CA certificate file.
//   - GEARJOB_PLUGIN_DIR: the directory of job plugins.
//
// Sample usage after environment setup:
//
//	gearjob-worker --concurrency 4 --plugin Resize
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/juliaogris/gearjob/pkg/gearjob"
	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/jobs"
)

const description = "Gearjob-worker runs jobs for a gearjob server."

var errNoPluginDir = errors.New("--plugin requires --plugin-dir")

type app struct {
	Address      string `required:"" short:"A" help:"Server address." env:"GEARJOB_ADDRESS"`
	ClientCert   string `help:"Client Certificate file." env:"GEARJOB_CLIENT_CERT"`
	ClientKey    string `help:"Client Private Key file." env:"GEARJOB_CLIENT_KEY"`
	ServerCACert string `help:"Server CA certificate file." env:"GEARJOB_SERVER_CA_CERT"`

	Concurrency int        `short:"c" default:"1" help:"Number of jobs run at the same time."`
	PluginDir   string     `type:"existingdir" help:"Directory of job plugins." env:"GEARJOB_PLUGIN_DIR"`
	Plugins     []string   `name:"plugin" short:"p" help:"Job served by a plugin, repeatable."`
	LogLevel    slog.Level `short:"l" help:"Log level: DEBUG, INFO, WARN or ERROR." default:"INFO" env:"GEARJOB_LOG_LEVEL"`
}

func main() {
	opts := []kong.Option{kong.Description(description)}
	kctx := kong.Parse(&app{}, opts...)
	kctx.FatalIfErrorf(kctx.Run())
}

// Run is called by [kong] after flags have been validated and parsed.
func (a *app) Run() error {
	slog.SetLogLoggerLevel(a.LogLevel)
	dispatcher, funcs, err := a.dispatcher()
	if err != nil {
		return err
	}
	tlsFiles := gearjob.TLSFiles{Cert: a.ClientCert, Key: a.ClientKey, CA: a.ServerCACert}
	client, err := gearjob.NewClient(a.Address, tlsFiles)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer client.Close() //nolint:errcheck // nothing left to do on exit

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	w := gearjob.NewWorker(client, dispatcher, funcs, gearjob.WithConcurrency(a.Concurrency))
	if err := w.Work(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	slog.Info("worker stopped")
	return nil
}

// dispatcher returns a dispatcher resolving the built-in jobs first, then
// plugins, and the names of all jobs to grab.
func (a *app) dispatcher() (*job.Dispatcher, []string, error) {
	registry := job.NewRegistry()
	if err := jobs.Register(registry); err != nil {
		return nil, nil, fmt.Errorf("cannot register built-in jobs: %w", err)
	}
	resolvers := []job.Resolver{registry}
	funcs := registry.Names()
	if len(a.Plugins) > 0 {
		if a.PluginDir == "" {
			return nil, nil, errNoPluginDir
		}
		for _, name := range a.Plugins {
			if err := job.ValidateName(name); err != nil {
				return nil, nil, err
			}
		}
		resolvers = append(resolvers, job.PluginResolver{Dir: a.PluginDir})
		funcs = append(funcs, a.Plugins...)
	}
	return job.NewDispatcher(resolvers...), funcs, nil
}
