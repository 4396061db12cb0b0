// Gearjob is the client CLI to run jobs on gearjob workers.
//
// It communicates with a gearjob server over gRPC. The CLI supports the
// following commands:
//
//   - run: runs one task per argument and prints the results.
//   - submit: submits a single job and prints its handle.
//   - status: retrieves the status of a job.
//   - watch: streams the data and result of a job.
//
// Each command requires the address of the gearjob server. With a client
// certificate and key the connection uses mTLS; the server's CA certificate
// can also be provided if it's not available as part of the system's trust
// store.
//
// The CLI optionally uses environment variables to configure the server address
// and certificate paths. The following environment variables are supported:
//
//   - GEARJOB_ADDRESS: the address of the gearjob server.
//   - GEARJOB_CLIENT_CERT: the path to the client's certificate file.
//   - GEARJOB_CLIENT_KEY: the path to the client's key file.
//   - GEARJOB_SERVER_CA_CERT: the path to the server's CA certificate file.
//
// Example usage after environment setup:
//
//	gearjob run Reverse hello world
//	gearjob run --high Add '[1,2,3]'
//	gearjob submit --background Reverse hello
//	gearjob status <handle>
//	gearjob watch <handle>
//	gearjob [COMMAND] --help
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/juliaogris/gearjob/pkg/gearjob"
	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/queue"
	"github.com/juliaogris/gearjob/pkg/task"
)

const description = "Gearjob is a client CLI to run jobs on gearjob workers."

type app struct {
	Run    runCmd    `cmd:"" help:"Run one task per argument and print the results."`
	Submit submitCmd `cmd:"" help:"Submit a job and print its handle."`
	Status statusCmd `cmd:"" help:"Status of the job with given handle."`
	Watch  watchCmd  `cmd:"" help:"Print data and result of the job with given handle. Continuously stream additional output."`
}

func main() {
	var writer io.Writer = os.Stdout
	opts := []kong.Option{
		kong.Bind(&writer),
		kong.Description(description),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
	kctx := kong.Parse(&app{}, opts...)
	kctx.FatalIfErrorf(kctx.Run())
}

type taskFlags struct {
	High       bool `xor:"type" help:"Queue with high priority."`
	Low        bool `xor:"type" help:"Queue with low priority."`
	Background bool `xor:"type" help:"Do not wait for the job to finish."`
}

func (f taskFlags) taskType() task.Type {
	switch {
	case f.High:
		return task.High
	case f.Low:
		return task.Low
	case f.Background:
		return task.Background
	}
	return task.Normal
}

type runCmd struct {
	cmd
	taskFlags
	Func    string        `arg:"" required:"" help:"Job function name."`
	Args    []string      `arg:"" required:"" help:"Job arguments, one task each."`
	Timeout time.Duration `short:"T" help:"Give up after this duration, 0 waits forever." env:"GEARJOB_TIMEOUT"`
}

type submitCmd struct {
	cmd
	taskFlags
	Func string `arg:"" required:"" help:"Job function name."`
	Arg  string `arg:"" optional:"" help:"Job argument."`
	Uniq string `short:"u" help:"Unique ID, coalesces with unfinished jobs of the same ID."`
}

type statusCmd struct {
	cmd
	Handle     string `arg:"" required:"" help:"Job handle."`
	TimeFormat string `short:"t" help:"Time format." default:"2006-01-02T15:04:05Z07:00" env:"GEARJOB_TIME_FORMAT"`
}

type watchCmd struct {
	cmd
	Handle string `arg:"" required:"" help:"Job handle."`
}

type cmd struct {
	Address      string `required:"" short:"A" help:"Server address." env:"GEARJOB_ADDRESS"`
	ClientCert   string `help:"Client Certificate file." env:"GEARJOB_CLIENT_CERT"`
	ClientKey    string `help:"Client Private Key file." env:"GEARJOB_CLIENT_KEY"`
	ServerCACert string `help:"Server CA certificate file." env:"GEARJOB_SERVER_CA_CERT"`

	client *gearjob.Client
	w      io.Writer // can be overridden for testing
}

// Run is called by [kong] when the CLI arguments contain the `run` command.
func (c *runCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if c.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	set := task.NewSet()
	tasks := make([]*task.Task, 0, len(c.Args))
	for _, arg := range c.Args {
		t := task.NewTask(c.Func, []byte(arg), task.WithType(c.taskType()))
		set.Add(t)
		tasks = append(tasks, t)
	}
	if err := c.client.RunSet(ctx, set); err != nil {
		return fmt.Errorf("failed to run tasks: %w", err)
	}
	return printTasks(c.w, tasks)
}

// Run is called by [kong] when the CLI arguments contain the `submit` command.
func (c *submitCmd) Run() error {
	req := queue.Request{
		Func:       c.Func,
		Uniq:       c.Uniq,
		Arg:        []byte(c.Arg),
		Background: c.Background,
	}
	switch {
	case c.High:
		req.Priority = queue.PriorityHigh
	case c.Low:
		req.Priority = queue.PriorityLow
	}
	handle, err := c.client.Submit(context.Background(), req)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	if _, err := fmt.Fprintln(c.w, handle); err != nil {
		return fmt.Errorf("failed to write job handle %q: %w", handle, err)
	}
	return nil
}

// Run is called by [kong] when the CLI arguments contain the `status` command.
func (c *statusCmd) Run() error {
	st, err := c.client.Status(context.Background(), c.Handle)
	if err != nil {
		return fmt.Errorf("failed to get job status: %w", err)
	}
	return printJobStatus(c.w, st, c.TimeFormat)
}

// Run is called by [kong] when the CLI arguments contain the `watch` command.
// Data updates are written as they arrive, followed by the result.
func (c *watchCmd) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	stream, err := c.client.Watch(ctx, c.Handle)
	if err != nil {
		return fmt.Errorf("cannot watch job: %w", err)
	}
	for {
		u, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get job updates from stream: %w", err)
		}
		switch u.Kind {
		case job.UpdateData, job.UpdateComplete:
			if _, err := c.w.Write(u.Data); err != nil {
				return fmt.Errorf("failed to print job output: %w", err)
			}
		case job.UpdateFail:
			return fmt.Errorf("job %q failed", c.Handle) //nolint:err113 // reported once to the user
		case job.UpdateStatus:
		}
	}
}

// AfterApply is called by [kong] immediately after flag validation and
// assignment and _before_ a command's Run method. It is useful for setting up
// common resources like gRPC connections.
//
// The pointer to the io.Writer is required to keep the io.Writer type when
// passing through an `any` parameter on the [kong.Bind] function.
func (c *cmd) AfterApply(w *io.Writer) error {
	c.w = cmp.Or(*w, io.Writer(os.Stdout))
	tlsFiles := gearjob.TLSFiles{Cert: c.ClientCert, Key: c.ClientKey, CA: c.ServerCACert}
	client, err := gearjob.NewClient(c.Address, tlsFiles)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	c.client = client
	return nil
}

// AfterRun is called by [kong] immediately after a command's Run method
// completes. It is useful for cleaning up common resources like gRPC
// connections.
func (c *cmd) AfterRun() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("after run: %w", err)
	}
	return nil
}

// printTasks writes one row per task in a tabular format.
func printTasks(w io.Writer, tasks []*task.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "HANDLE\tSTATE\tRESULT"); err != nil {
		return fmt.Errorf("cannot write task header: %w", err)
	}
	for _, t := range tasks {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Handle(), t.State(), t.Result()); err != nil {
			return fmt.Errorf("cannot write task %q: %w", t.Uniq(), err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("cannot flush task tab writer: %w", err)
	}
	return nil
}

// printJobStatus writes the job status to the provided writer in a tabular
// format.
func printJobStatus(w io.Writer, s queue.Status, layout string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, err := fmt.Fprintln(tw, "HANDLE\tFUNC\tSTATE\tPROGRESS\tSUBMITTED\tSTARTED\tSTOPPED")
	if err != nil {
		return fmt.Errorf("cannot write job status header: %w", err)
	}
	submitted := timeString(s.Submitted, layout)
	started := timeString(s.Started, layout)
	stopped := timeString(s.Stopped, layout)
	_, err = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", s.Handle, s.Func, s.State, progressString(s), submitted, started, stopped)
	if err != nil {
		return fmt.Errorf("cannot write job status content: %w", err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("cannot flush job status tab writer: %w", err)
	}
	return nil
}

// progressString formats the job's status fraction, or "" if the job has
// not reported any.
func progressString(s queue.Status) string {
	if s.Denominator == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", s.Numerator, s.Denominator)
}

// timeString formats t according to the provided layout. If t is zero, it
// returns an empty string.
func timeString(t time.Time, layout string) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(layout) //nolint:gosmopolitan // usage of time.Local in local client CLI makes timestamps more readable.
}
