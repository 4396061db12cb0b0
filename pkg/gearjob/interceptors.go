package gearjob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// PeerKey is the context key of the caller's identity: the Common Name of
// its client certificate with mTLS, its network address otherwise.
type PeerKey struct{}

// PeerFromContext returns the caller identity stored under [PeerKey].
func PeerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(PeerKey{}).(string)
	return s
}

// interceptor tags calls with the caller identity and logs them.
type interceptor struct {
	requireCN bool
}

func (i interceptor) unary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id, err := i.identify(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "%v", err)
	}
	start := time.Now()
	resp, err := handler(context.WithValue(ctx, PeerKey{}, id), req)
	logCall(info.FullMethod, id, start, err)
	return resp, err
}

func (i interceptor) stream(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx := stream.Context()
	id, err := i.identify(ctx)
	if err != nil {
		return status.Errorf(codes.Unauthenticated, "%v", err)
	}
	ctx = context.WithValue(ctx, PeerKey{}, id)
	wrapped := &wrappedServerStream{ServerStream: stream, ctx: ctx}
	start := time.Now()
	err = handler(srv, wrapped)
	logCall(info.FullMethod, id, start, err)
	return err
}

func (i interceptor) identify(ctx context.Context) (string, error) {
	if i.requireCN {
		return extractCommonName(ctx)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String(), nil
	}
	return "unknown", nil
}

func logCall(method, id string, start time.Time, err error) {
	attrs := []any{"method", method, "peer", id, "duration", time.Since(start)}
	if err != nil && status.Code(err) != codes.Canceled {
		slog.Warn("call failed", append(attrs, "err", err)...)
		return
	}
	slog.Debug("call", attrs...)
}

// extractCommonName extracts the common name from the client's certificate.
func extractCommonName(ctx context.Context) (string, error) {
	peer, ok := peer.FromContext(ctx)
	if !ok {
		return "", fmt.Errorf("%w: cannot get peer from context", ErrCommonName)
	}
	tlsInfo, ok := peer.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", fmt.Errorf("%w: cannot get TLSInfo from peer", ErrCommonName)
	}
	peerCerts := tlsInfo.State.PeerCertificates
	if len(peerCerts) == 0 {
		return "", fmt.Errorf("%w: no peer certificates", ErrCommonName)
	}
	return peerCerts[0].Subject.CommonName, nil
}

// wrappedServerStream is a wrapper around grpc.ServerStream that allows
// modifying the context.
type wrappedServerStream struct {
	grpc.ServerStream
	//nolint:containedctx
	// seems to be an accepted pattern for stream middleware see
	// https://github.com/grpc-ecosystem/go-grpc-middleware/blob/d42ae9d517069c2bd7f9339147a0eafa86b3d4a3/wrappers.go#L16
	ctx context.Context
}

// Context returns the modified context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
