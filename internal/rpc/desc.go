package rpc

import (
	"context"

	"google.golang.org/grpc"

	"go.klb.dev/clipring/internal/engine"
)

// historyServer is the handler type checked by grpc.Server.RegisterService.
type historyServer interface {
	List(context.Context, *ListRequest) (*ListResponse, error)
	Get(context.Context, *IDRequest) (*GetResponse, error)
	Paste(context.Context, *PasteRequest) (*PasteResponse, error)
	Pin(context.Context, *IDRequest) (*Empty, error)
	Unpin(context.Context, *IDRequest) (*Empty, error)
	Delete(context.Context, *IDRequest) (*Empty, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
	Status(context.Context, *StatusRequest) (*engine.Status, error)
	Subscribe(*SubscribeRequest, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*historyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("List", (*Service).List),
		unary("Get", (*Service).Get),
		unary("Paste", (*Service).Paste),
		unary("Pin", (*Service).Pin),
		unary("Unpin", (*Service).Unpin),
		unary("Delete", (*Service).Delete),
		unary("Clear", (*Service).Clear),
		unary("Status", (*Service).Status),
	},
	Streams:  []grpc.StreamDesc{subscribeDesc},
	Metadata: "clipring/v1/history",
}

var subscribeDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		req := new(SubscribeRequest)
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		return srv.(*Service).Subscribe(req, stream)
	},
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unary adapts a typed method to grpc's untyped handler signature.
func unary[Req, Resp any](name string, call func(*Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*Service)
			if ic == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return ic(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(s, ctx, r.(*Req))
			})
		},
	}
}
