package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipring/internal/engine"
	"go.klb.dev/clipring/internal/history"
	"go.klb.dev/clipring/internal/hub"
	"go.klb.dev/clipring/internal/inject"
)

// Client talks to a running daemon.
type Client struct {
	conn *grpc.ClientConn
	name string
}

// Dial connects to the daemon's Unix socket. No auth is needed: the socket
// is owner-only.
func Dial(socketPath, name string) (*Client, error) {
	return NewClient("unix://"+socketPath, name)
}

// NewClient connects to target with the JSON codec selected. Extra options
// are appended, e.g. a context dialer in tests.
func NewClient(target, name string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, name: name}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if c.name != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, clientHeader, c.name)
	}
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), req, resp))
}

// List returns every entry, newest first, without payloads.
func (c *Client) List(ctx context.Context) ([]Entry, error) {
	var resp ListResponse
	if err := c.invoke(ctx, "List", &ListRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Get returns one entry including its payload.
func (c *Client) Get(ctx context.Context, id uint64) (Entry, error) {
	var resp GetResponse
	if err := c.invoke(ctx, "Get", &IDRequest{ID: id}, &resp); err != nil {
		return Entry{}, err
	}
	return resp.Entry, nil
}

// Paste asks the daemon to paste an entry. A partial success returns the
// result together with an error wrapping inject.ErrInjectionFailed.
func (c *Client) Paste(ctx context.Context, id uint64, targetHint string) (inject.Result, error) {
	var resp PasteResponse
	if err := c.invoke(ctx, "Paste", &PasteRequest{ID: id, TargetHint: targetHint}, &resp); err != nil {
		return inject.Result{EntryID: id}, err
	}
	res := inject.Result{EntryID: id, ClipboardWritten: resp.ClipboardWritten, Injected: resp.Injected}
	if resp.Error != "" {
		return res, fmt.Errorf("%w: %s", inject.ErrInjectionFailed, resp.Error)
	}
	return res, nil
}

func (c *Client) Pin(ctx context.Context, id uint64) error {
	return c.invoke(ctx, "Pin", &IDRequest{ID: id}, &Empty{})
}

func (c *Client) Unpin(ctx context.Context, id uint64) error {
	return c.invoke(ctx, "Unpin", &IDRequest{ID: id}, &Empty{})
}

func (c *Client) Delete(ctx context.Context, id uint64) error {
	return c.invoke(ctx, "Delete", &IDRequest{ID: id}, &Empty{})
}

// Clear removes entries and returns how many went.
func (c *Client) Clear(ctx context.Context, keepPinned bool) (int, error) {
	var resp ClearResponse
	if err := c.invoke(ctx, "Clear", &ClearRequest{KeepPinned: keepPinned}, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (c *Client) Status(ctx context.Context) (engine.Status, error) {
	var resp engine.Status
	err := c.invoke(ctx, "Status", &StatusRequest{}, &resp)
	return resp, err
}

// Subscription is an open event stream.
type Subscription struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event. It returns io.EOF when the daemon ends
// the stream.
func (s *Subscription) Recv() (hub.Event, error) {
	var ev hub.Event
	if err := s.stream.RecvMsg(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return ev, io.EOF
		}
		return ev, fromStatus(err)
	}
	return ev, nil
}

// Subscribe opens an event stream for kinds (all when empty). Cancel ctx to
// close it.
func (c *Client) Subscribe(ctx context.Context, kinds ...hub.Kind) (*Subscription, error) {
	if c.name != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, clientHeader, c.name)
	}
	stream, err := c.conn.NewStream(ctx, &subscribeDesc, fullMethod(subscribeDesc.StreamName))
	if err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(&SubscribeRequest{Kinds: kinds}); err != nil {
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fromStatus(err)
	}
	return &Subscription{stream: stream}, nil
}

// fromStatus turns gRPC codes back into the daemon's sentinel errors.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		if st.Message() == history.ErrNotFound.Error() {
			return history.ErrNotFound
		}
		return fmt.Errorf("%w: %s", history.ErrNotFound, st.Message())
	case codes.Unavailable:
		// Transport failures share the code; only the daemon's own
		// message identifies a failed clipboard write.
		if msg, ok := strings.CutPrefix(st.Message(), inject.ErrClipboardWriteFailed.Error()); ok {
			return fmt.Errorf("%w%s", inject.ErrClipboardWriteFailed, msg)
		}
	}
	return err
}
