package gearjob

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/juliaogris/gearjob/pkg/queue"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service implements the JobServer gRPC service on top of a [queue.Queue].
//
// It is a lower integration point than the Server type for custom security
// setup or testing; register it with [Register].
//
// Clients use Submit, Status and Watch. Workers use Grab and Update.
type Service struct {
	Queue *queue.Queue
}

// Register registers s on grpcServer.
func Register(grpcServer grpc.ServiceRegistrar, s *Service) {
	grpcServer.RegisterService(&serviceDesc, s)
}

// Submit queues a job and responds with its handle. Submitting a function and
// unique ID that are already queued or running responds with the existing
// job's handle.
func (s *Service) Submit(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r, err := requestFromPB(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	handle, err := s.Queue.Submit(r)
	if err != nil {
		return nil, statusError(err, r.Func)
	}
	return respond(pbHandle(handle))
}

// Status responds with a snapshot of the job with the requested handle.
func (s *Service) Status(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	handle := getString(req, "handle")
	st, err := s.Queue.Status(handle)
	if err != nil {
		return nil, statusError(err, handle)
	}
	return respond(pbStatus(st))
}

// Grab waits for a pending job of one of the requested functions and assigns
// it to the calling worker. If the call is abandoned after a job was taken,
// the job is put back at the front of the queue.
func (s *Service) Grab(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	a, err := s.Queue.Grab(ctx, getStrings(req, "funcs"))
	if err != nil {
		return nil, statusError(err, "")
	}
	if ctx.Err() != nil {
		if err := s.Queue.Requeue(a.Handle); err != nil {
			slog.Warn("cannot requeue abandoned job", "handle", a.Handle, "err", err)
		}
		return nil, statusError(ctx.Err(), a.Handle)
	}
	slog.Debug("job assigned", "handle", a.Handle, "func", a.Func, "worker", PeerFromContext(ctx))
	return respond(pbAssignment(a))
}

// Update records a worker's status, data, complete or fail update.
func (s *Service) Update(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	handle := getString(req, "handle")
	u, err := updateFromPB(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}
	if err := s.Queue.Update(handle, u); err != nil {
		return nil, statusError(err, handle)
	}
	return &structpb.Struct{}, nil
}

// Requeue puts a job the calling worker gave up on back at the front of its
// queue.
func (s *Service) Requeue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	handle := getString(req, "handle")
	if err := s.Queue.Requeue(handle); err != nil {
		return nil, statusError(err, handle)
	}
	slog.Debug("job requeued", "handle", handle, "worker", PeerFromContext(ctx))
	return &structpb.Struct{}, nil
}

// Watch streams all updates of the requested job, past and future, and ends
// after its complete or fail update.
func (s *Service) Watch(req *structpb.Struct, stream grpc.ServerStream) error {
	handle := getString(req, "handle")
	w, err := s.Queue.Watch(stream.Context(), handle)
	if err != nil {
		return statusError(err, handle)
	}
	for {
		updates, err := w.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return statusError(err, handle)
		}
		for _, u := range updates {
			msg, err := pbUpdate("", u)
			if err != nil {
				return status.Errorf(codes.Internal, "%v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func respond(msg *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return msg, nil
}

// statusError converts a queue error to a gRPC status error.
func statusError(err error, subject string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrJobNotFound):
		return status.Errorf(codes.NotFound, "job %q not found", subject)
	case errors.Is(err, queue.ErrFunction), errors.Is(err, queue.ErrUpdate):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, queue.ErrNotRunning), errors.Is(err, queue.ErrFinished):
		return status.Errorf(codes.FailedPrecondition, "job %q: %v", subject, err)
	case errors.Is(err, queue.ErrShutdown):
		return status.Errorf(codes.Unavailable, "%v", err)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%v", err)
	}
	return status.Errorf(codes.Internal, "job %q: %v", subject, err)
}
