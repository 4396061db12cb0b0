package job_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/stretchr/testify/require"
)

// addJob sums the decimal digits of its argument.
type addJob struct {
	*job.Common
}

func (a *addJob) Run(ctx context.Context, arg []byte) ([]byte, error) {
	sum := 0
	for i, b := range arg {
		if err := a.Status(ctx, uint64(i), uint64(len(arg))); err != nil { //nolint:gosec // i and len are non-negative
			return nil, err
		}
		sum += int(b - '0')
	}
	return []byte(strconv.Itoa(sum)), nil
}

// badImpl can run but cannot report status or results.
type badImpl struct{}

func (badImpl) Run(context.Context, []byte) ([]byte, error) { return nil, nil }

type recordingConn struct {
	mutex   sync.Mutex
	updates map[string][]job.Update
	err     error
}

func newRecordingConn() *recordingConn {
	return &recordingConn{updates: make(map[string][]job.Update)}
}

func (c *recordingConn) Update(_ context.Context, handle string, u job.Update) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.err != nil {
		return c.err
	}
	c.updates[handle] = append(c.updates[handle], u)
	return nil
}

func (c *recordingConn) get(handle string) []job.Update {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.updates[handle]
}

func newTestRegistry(t *testing.T) *job.Registry {
	t.Helper()
	r := job.NewRegistry()
	err := r.Register("Add", func(conn job.Conn, handle string) any {
		return &addJob{Common: job.NewCommon(conn, handle)}
	})
	require.NoError(t, err)
	err = r.Register("BadImpl", func(job.Conn, string) any { return badImpl{} })
	require.NoError(t, err)
	return r
}

func TestDispatcherCreate(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(newTestRegistry(t))
	conn := newRecordingConn()

	h, err := d.Create("Add", conn, "H:test:1")
	require.NoError(t, err)
	require.IsType(t, &addJob{}, h)
	require.Equal(t, "H:test:1", h.Handle())

	// Create does not run the job.
	require.Empty(t, conn.get("H:test:1"))

	ctx := context.Background()
	result, err := h.Run(ctx, []byte("123"))
	require.NoError(t, err)
	require.Equal(t, "6", string(result))
	require.NoError(t, h.Complete(ctx, result))

	updates := conn.get("H:test:1")
	require.Len(t, updates, 4)
	require.Equal(t, job.Update{Kind: job.UpdateStatus, Numerator: 2, Denominator: 3}, updates[2])
	require.Equal(t, job.Update{Kind: job.UpdateComplete, Data: []byte("6")}, updates[3])
}

func TestDispatcherUnresolvable(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(newTestRegistry(t))

	_, err := d.Create("NoSuchJob", newRecordingConn(), "H:test:1")
	require.ErrorIs(t, err, job.ErrUnresolvableJob)
	require.NotErrorIs(t, err, job.ErrInvalidHandler)

	_, err = d.Create("", newRecordingConn(), "H:test:1")
	require.ErrorIs(t, err, job.ErrUnresolvableJob)
	require.ErrorIs(t, err, job.ErrJobName)

	_, err = job.NewDispatcher().Create("Add", newRecordingConn(), "H:test:1")
	require.ErrorIs(t, err, job.ErrUnresolvableJob)
}

func TestDispatcherInvalidHandler(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(newTestRegistry(t))
	h, err := d.Create("BadImpl", newRecordingConn(), "H:test:1")
	require.ErrorIs(t, err, job.ErrInvalidHandler)
	require.NotErrorIs(t, err, job.ErrUnresolvableJob)
	require.Nil(t, h)
}

func TestDispatcherResolverOrder(t *testing.T) {
	t.Parallel()
	first := job.NewRegistry()
	second := job.NewRegistry()
	require.NoError(t, first.RegisterFunc("Echo", func(_ context.Context, _ *job.Common, arg []byte) ([]byte, error) {
		return append([]byte("first:"), arg...), nil
	}))
	require.NoError(t, second.RegisterFunc("Echo", func(_ context.Context, _ *job.Common, arg []byte) ([]byte, error) {
		return append([]byte("second:"), arg...), nil
	}))
	require.NoError(t, second.RegisterFunc("Only", func(_ context.Context, _ *job.Common, arg []byte) ([]byte, error) {
		return arg, nil
	}))
	d := job.NewDispatcher(first, second)

	h, err := d.Create("Echo", newRecordingConn(), "H1")
	require.NoError(t, err)
	got, err := h.Run(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.Equal(t, "first:x", string(got))

	h, err = d.Create("Only", newRecordingConn(), "H2")
	require.NoError(t, err)
	require.Equal(t, "H2", h.Handle())
}

type failingResolver struct{}

var errResolverBroken = errors.New("resolver broken")

func (failingResolver) Resolve(string) (job.Factory, error) { return nil, errResolverBroken }

func TestDispatcherResolverError(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(failingResolver{}, newTestRegistry(t))
	_, err := d.Create("Add", newRecordingConn(), "H1")
	require.ErrorIs(t, err, errResolverBroken)
}

func TestDispatcherConcurrentCreate(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(newTestRegistry(t))
	conn := newRecordingConn()
	wg := &sync.WaitGroup{}
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := "H:" + strconv.Itoa(i)
			h, err := d.Create("Add", conn, handle)
			if err != nil {
				t.Errorf("create %q: %v", handle, err)
				return
			}
			if h.Handle() != handle {
				t.Errorf("handle = %q, want %q", h.Handle(), handle)
			}
		}()
	}
	wg.Wait()
}

func TestPluginResolverMissing(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(job.PluginResolver{Dir: t.TempDir()})
	_, err := d.Create("Add", newRecordingConn(), "H1")
	require.ErrorIs(t, err, job.ErrUnresolvableJob)

	_, err = job.PluginResolver{Dir: t.TempDir()}.Resolve("send-email")
	require.ErrorIs(t, err, job.ErrUnresolvableJob)
}

func TestPluginResolverFallback(t *testing.T) {
	t.Parallel()
	d := job.NewDispatcher(job.PluginResolver{Dir: t.TempDir()}, newTestRegistry(t))
	h, err := d.Create("Add", newRecordingConn(), "H1")
	require.NoError(t, err)
	require.Equal(t, "H1", h.Handle())
}

func TestPluginResolverPlugin(t *testing.T) {
	t.Parallel()
	dir := buildTestPlugin(t, "Greet", "Shout", "Broken")
	d := job.NewDispatcher(job.PluginResolver{Dir: dir})
	ctx := context.Background()

	h, err := d.Create("Greet", newRecordingConn(), "H1")
	require.NoError(t, err)
	require.Equal(t, "H1", h.Handle())
	result, err := h.Run(ctx, []byte("world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(result))

	h, err = d.Create("Shout", newRecordingConn(), "H2")
	require.NoError(t, err)
	result, err = h.Run(ctx, []byte("world"))
	require.NoError(t, err)
	require.Equal(t, "HELLO WORLD", string(result))

	_, err = d.Create("Broken", newRecordingConn(), "H3")
	require.ErrorIs(t, err, job.ErrInvalidHandler)
}

// buildTestPlugin builds testdata/greet as a Go plugin and links it into a
// temporary directory under each of names. It skips the test where plugins
// cannot be built or loaded.
func buildTestPlugin(t *testing.T, names ...string) string {
	t.Helper()
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && runtime.GOOS != "freebsd" {
		t.Skipf("plugins are not supported on %s", runtime.GOOS)
	}
	if testing.CoverMode() != "" {
		t.Skip("plugins cannot be loaded into a coverage instrumented binary")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go command not found")
	}
	out, err := exec.Command(goBin, "env", "CGO_ENABLED").Output()
	if err != nil || strings.TrimSpace(string(out)) != "1" {
		t.Skip("plugins require cgo")
	}

	dir := t.TempDir()
	so := filepath.Join(dir, "greet.so")
	args := []string{"build", "-buildmode=plugin", "-o", so}
	if raceEnabled {
		args = append(args, "-race")
	}
	cmd := exec.Command(goBin, append(args, "./testdata/greet")...) //nolint:gosec // fixed arguments
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "building plugin: %s", out)
	for _, name := range names {
		require.NoError(t, os.Symlink(so, filepath.Join(dir, name+".so")))
	}

	if _, err := (job.PluginResolver{Dir: dir}).Resolve(names[0]); err != nil &&
		strings.Contains(err.Error(), "different version of package") {
		t.Skipf("plugin does not match the test binary: %v", err)
	}
	return dir
}
