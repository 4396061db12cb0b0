package gearjob_test

import (
	"context"
	"net"
	"testing"

	"github.com/juliaogris/gearjob/pkg/gearjob"
	"github.com/juliaogris/gearjob/pkg/queue"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestServiceDirectly(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue(queue.WithHostname("direct"))
	defer func() { require.NoError(t, q.Shutdown()) }()
	service := &gearjob.Service{Queue: q}
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{"func": "Reverse", "uniq": "u1", "arg": "aGVsbG8="})
	require.NoError(t, err)
	resp, err := service.Submit(ctx, req)
	require.NoError(t, err)
	handle := resp.GetFields()["handle"].GetStringValue()
	require.Equal(t, "H:direct:1", handle)

	st, err := q.Status(handle)
	require.NoError(t, err)
	require.Equal(t, "Reverse", st.Func)
	require.Equal(t, "u1", st.Uniq)

	req, err = structpb.NewStruct(map[string]any{"funcs": []any{"Reverse"}})
	require.NoError(t, err)
	resp, err = service.Grab(ctx, req)
	require.NoError(t, err)
	require.Equal(t, handle, resp.GetFields()["handle"].GetStringValue())
	require.Equal(t, "aGVsbG8=", resp.GetFields()["arg"].GetStringValue())

	req, err = structpb.NewStruct(map[string]any{"handle": handle, "kind": "bogus"})
	require.NoError(t, err)
	_, err = service.Update(ctx, req)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err = structpb.NewStruct(map[string]any{"handle": handle})
	require.NoError(t, err)
	resp, err = service.Status(ctx, req)
	require.NoError(t, err)
	require.InDelta(t, float64(queue.StateRunning), resp.GetFields()["state"].GetNumberValue(), 0)
}

func TestServiceGrabCanceled(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue(queue.WithHostname("direct"))
	service := &gearjob.Service{Queue: q}
	handle, err := q.Submit(queue.Request{Func: "Add"})
	require.NoError(t, err)

	// A job grabbed for a caller that is already gone is put back.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := structpb.NewStruct(map[string]any{"funcs": []any{"Add"}})
	require.NoError(t, err)
	_, err = service.Grab(ctx, req)
	require.Equal(t, codes.Canceled, status.Code(err))

	st, err := q.Status(handle)
	require.NoError(t, err)
	require.Equal(t, queue.StatePending, st.State)
}

func TestServiceWithCustomServer(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue(queue.WithHostname("custom"))
	defer func() { require.NoError(t, q.Shutdown()) }()
	grpcServer := grpc.NewServer(grpc.Creds(insecure.NewCredentials()))
	gearjob.Register(grpcServer, &gearjob.Service{Queue: q})
	lis, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			t.Errorf("serve error: %v", err)
		}
	}()
	defer grpcServer.Stop()

	client := newTestClient(t, lis.Addr().String(), gearjob.TLSFiles{})
	handle, err := client.Submit(context.Background(), queue.Request{Func: "Add", Arg: []byte("[1]")})
	require.NoError(t, err)
	require.Equal(t, "H:custom:1", handle)
	st, err := q.Status(handle)
	require.NoError(t, err)
	require.Equal(t, queue.StatePending, st.State)
}

func TestServiceRejectsOutOfRangeNumbers(t *testing.T) {
	t.Parallel()
	q := queue.NewQueue(queue.WithHostname("direct"))
	defer func() { require.NoError(t, q.Shutdown()) }()
	service := &gearjob.Service{Queue: q}
	ctx := context.Background()

	for _, priority := range []float64{2, -2, 0.5} {
		req, err := structpb.NewStruct(map[string]any{"func": "Add", "priority": priority})
		require.NoError(t, err)
		_, err = service.Submit(ctx, req)
		require.Equal(t, codes.InvalidArgument, status.Code(err), "priority %v", priority)
	}
	req, err := structpb.NewStruct(map[string]any{"func": "Add", "priority": float64(queue.PriorityLow)})
	require.NoError(t, err)
	resp, err := service.Submit(ctx, req)
	require.NoError(t, err)
	handle := resp.GetFields()["handle"].GetStringValue()
	_, err = q.Grab(ctx, []string{"Add"})
	require.NoError(t, err)

	for _, n := range []float64{-1, 1.5, 1 << 60} {
		req, err := structpb.NewStruct(map[string]any{"handle": handle, "kind": "status", "numerator": n, "denominator": 1.0})
		require.NoError(t, err)
		_, err = service.Update(ctx, req)
		require.Equal(t, codes.InvalidArgument, status.Code(err), "numerator %v", n)
	}
	st, err := q.Status(handle)
	require.NoError(t, err)
	require.Equal(t, queue.PriorityLow, st.Priority)
	require.Zero(t, st.Numerator)
}
