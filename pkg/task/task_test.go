package task_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/juliaogris/gearjob/pkg/task"
	"github.com/stretchr/testify/require"
)

func TestTaskDefaults(t *testing.T) {
	t.Parallel()
	tk := task.NewTask("Reverse", []byte("hello"))
	require.Equal(t, "Reverse", tk.Func())
	require.Equal(t, []byte("hello"), tk.Arg())
	require.Equal(t, task.Normal, tk.Type())
	require.Equal(t, task.Pending, tk.State())
	require.Equal(t, "", tk.Handle())
	_, err := uuid.Parse(tk.Uniq())
	require.NoError(t, err)

	other := task.NewTask("Reverse", []byte("hello"))
	require.NotEqual(t, tk.Uniq(), other.Uniq())
}

func TestTaskCallbacks(t *testing.T) {
	t.Parallel()
	var events []string
	tk := task.NewTask("Add", nil,
		task.WithType(task.High),
		task.WithCallback(task.EventStatus, func(tk *task.Task) {
			n, d := tk.Status()
			events = append(events, fmt.Sprintf("status %d/%d", n, d))
		}),
		task.WithCallback(task.EventComplete, func(tk *task.Task) {
			events = append(events, "complete", string(tk.Result()))
		}),
	)
	tk.Attach(task.EventData, func(tk *task.Task) {
		events = append(events, "data", string(tk.Data()))
	})
	require.Equal(t, task.High, tk.Type())

	tk.SetStatus(1, 2)
	tk.AppendData([]byte("ab"))
	tk.AppendData([]byte("c"))
	tk.Complete([]byte("3"))

	want := []string{"status 1/2", "data", "ab", "data", "abc", "complete", "3"}
	require.Equal(t, want, events)
	require.Equal(t, task.Complete, tk.State())
	require.True(t, tk.Finished())
}

func TestTaskFail(t *testing.T) {
	t.Parallel()
	failed := false
	tk := task.NewTask("Add", nil, task.WithCallback(task.EventFail, func(*task.Task) { failed = true }))
	require.False(t, tk.Finished())
	tk.Fail()
	require.True(t, failed)
	require.Equal(t, task.Failed, tk.State())
	require.True(t, tk.Finished())
}

func TestTypeAndStateStrings(t *testing.T) {
	t.Parallel()
	require.Equal(t, "background", task.Background.String())
	require.Equal(t, "low", task.Low.String())
	require.Equal(t, "complete", task.Complete.String())
	require.Equal(t, "unknown", task.State(42).String())
}
