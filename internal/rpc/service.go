// Package rpc implements the clipring.v1.History gRPC service that UI
// collaborators and the CLI use to drive the daemon over its Unix socket.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipring/internal/engine"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
)

const (
	serviceName = "clipring.v1.History"

	// clientHeader carries the caller's name for logging.
	clientHeader = "x-clipring-client"

	stopGrace = 2 * time.Second
)

// Engine is the command surface the service exposes. *engine.Engine
// satisfies it.
type Engine interface {
	ListHistory() []history.Entry
	Get(id uint64) (history.Entry, error)
	Paste(ctx context.Context, id uint64, targetHint string) (inject.Result, error)
	Pin(id uint64) error
	Unpin(id uint64) error
	Delete(id uint64) error
	ClearHistory(keepPinned bool) int
	Subscribe(kinds ...hub.Kind) (<-chan hub.Event, func())
	Status() engine.Status
}

// Service implements clipring.v1.History.
type Service struct {
	eng  Engine
	stop chan struct{}
}

// New returns a Service backed by eng.
func New(eng Engine) *Service {
	return &Service{eng: eng, stop: make(chan struct{})}
}

// Serve registers the service on a new gRPC server and serves ln until ctx
// is cancelled. Open Subscribe streams are ended so shutdown is graceful.
func Serve(ctx context.Context, ln net.Listener, svc *Service) error {
	srv := grpc.NewServer()
	srv.RegisterService(&serviceDesc, svc)

	go func() {
		<-ctx.Done()
		close(svc.stop)
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(stopGrace):
			srv.Stop()
		}
	}()

	slog.Info("command interface listening", "addr", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Service) List(_ context.Context, _ *ListRequest) (*ListResponse, error) {
	entries := s.eng.ListHistory()
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = toEntry(e, false)
	}
	return &ListResponse{Entries: out}, nil
}

func (s *Service) Get(_ context.Context, req *IDRequest) (*GetResponse, error) {
	if req.ID == 0 {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	e, err := s.eng.Get(req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetResponse{Entry: toEntry(e, true)}, nil
}

// Paste reports a written clipboard with a failed keystroke as a normal
// response carrying Error, not as an RPC failure.
func (s *Service) Paste(ctx context.Context, req *PasteRequest) (*PasteResponse, error) {
	if req.ID == 0 {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	slog.Debug("paste requested", "id", req.ID, "client", clientFromCtx(ctx))
	res, err := s.eng.Paste(ctx, req.ID, req.TargetHint)
	resp := &PasteResponse{ClipboardWritten: res.ClipboardWritten, Injected: res.Injected}
	switch {
	case err == nil:
		return resp, nil
	case res.ClipboardWritten && errors.Is(err, inject.ErrInjectionFailed):
		resp.Error = err.Error()
		return resp, nil
	default:
		return nil, toStatus(err)
	}
}

func (s *Service) Pin(_ context.Context, req *IDRequest) (*Empty, error) {
	return s.mutate(req, s.eng.Pin)
}

func (s *Service) Unpin(_ context.Context, req *IDRequest) (*Empty, error) {
	return s.mutate(req, s.eng.Unpin)
}

func (s *Service) Delete(_ context.Context, req *IDRequest) (*Empty, error) {
	return s.mutate(req, s.eng.Delete)
}

func (s *Service) mutate(req *IDRequest, fn func(uint64) error) (*Empty, error) {
	if req.ID == 0 {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if err := fn(req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Service) Clear(_ context.Context, req *ClearRequest) (*ClearResponse, error) {
	return &ClearResponse{Removed: s.eng.ClearHistory(req.KeepPinned)}, nil
}

func (s *Service) Status(_ context.Context, _ *StatusRequest) (*engine.Status, error) {
	st := s.eng.Status()
	return &st, nil
}

// Subscribe streams bus events until the client goes away or the server
// stops.
func (s *Service) Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	events, cancel := s.eng.Subscribe(req.Kinds...)
	defer cancel()

	client := clientFromCtx(ctx)
	slog.Info("subscriber connected", "client", client, "kinds", req.Kinds)
	defer slog.Info("subscriber disconnected", "client", client)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case ev := <-events:
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, inject.ErrClipboardWriteFailed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func clientFromCtx(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(clientHeader); len(vals) > 0 {
			return vals[0]
		}
	}
	return "unknown"
}
