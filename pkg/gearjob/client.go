package gearjob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/juliaogris/gearjob/pkg/job"
	"github.com/juliaogris/gearjob/pkg/queue"
	"github.com/juliaogris/gearjob/pkg/task"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Submit queues a job on the server and returns its handle.
func (c *Client) Submit(ctx context.Context, req queue.Request) (string, error) {
	in, err := pbRequest(req)
	if err != nil {
		return "", err
	}
	out, err := c.rpc.invoke(ctx, "Submit", in)
	if err != nil {
		return "", clientError("submit", err)
	}
	return getString(out, "handle"), nil
}

// SubmitTask queues t on the server and returns the job handle. It does not
// assign the handle to t; [task.Set.Assign] does.
func (c *Client) SubmitTask(ctx context.Context, t *task.Task) (string, error) {
	return c.Submit(ctx, taskRequest(t))
}

// Status returns a snapshot of the job with the given handle.
func (c *Client) Status(ctx context.Context, handle string) (queue.Status, error) {
	in, err := pbHandle(handle)
	if err != nil {
		return queue.Status{}, err
	}
	out, err := c.rpc.invoke(ctx, "Status", in)
	if err != nil {
		return queue.Status{}, clientError("status", err)
	}
	return statusFromPB(out)
}

// Grab waits until the server assigns a job of one of funcs to the caller.
func (c *Client) Grab(ctx context.Context, funcs []string) (queue.Assignment, error) {
	in, err := pbFuncs(funcs)
	if err != nil {
		return queue.Assignment{}, err
	}
	out, err := c.rpc.invoke(ctx, "Grab", in)
	if err != nil {
		return queue.Assignment{}, clientError("grab", err)
	}
	return assignmentFromPB(out)
}

// Update sends an update for the job with the given handle. It makes Client
// a [job.Conn].
func (c *Client) Update(ctx context.Context, handle string, u job.Update) error {
	in, err := pbUpdate(handle, u)
	if err != nil {
		return err
	}
	if _, err := c.rpc.invoke(ctx, "Update", in); err != nil {
		return clientError("update", err)
	}
	return nil
}

// Requeue hands a grabbed job back to the server, which queues it again
// ahead of other pending jobs of its function.
func (c *Client) Requeue(ctx context.Context, handle string) error {
	in, err := pbHandle(handle)
	if err != nil {
		return err
	}
	if _, err := c.rpc.invoke(ctx, "Requeue", in); err != nil {
		return clientError("requeue", err)
	}
	return nil
}

// Watch follows the updates of the job with the given handle.
func (c *Client) Watch(ctx context.Context, handle string) (*UpdateStream, error) {
	in, err := pbHandle(handle)
	if err != nil {
		return nil, err
	}
	stream, err := c.rpc.watch(ctx, in)
	if err != nil {
		return nil, clientError("watch", err)
	}
	return &UpdateStream{stream: stream}, nil
}

// UpdateStream receives the updates of a watched job.
type UpdateStream struct {
	stream grpc.ClientStream
}

// Recv returns the next update. It returns io.EOF after the job's terminal
// update has been received.
func (s *UpdateStream) Recv() (job.Update, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		if errors.Is(err, io.EOF) {
			return job.Update{}, io.EOF
		}
		return job.Update{}, clientError("watch", err)
	}
	return updateFromPB(msg)
}

// clientError wraps a gRPC error, keeping its status code reachable with
// status.Code. NotFound errors also wrap [queue.ErrJobNotFound].
func clientError(call string, err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("cannot %s: %w: %w", call, queue.ErrJobNotFound, err)
	}
	return fmt.Errorf("cannot %s: %w", call, err)
}

func taskRequest(t *task.Task) queue.Request {
	req := queue.Request{
		Func: t.Func(),
		Uniq: t.Uniq(),
		Arg:  t.Arg(),
	}
	switch t.Type() {
	case task.High:
		req.Priority = queue.PriorityHigh
	case task.Low:
		req.Priority = queue.PriorityLow
	case task.Background:
		req.Background = true
	case task.Normal:
	}
	return req
}
