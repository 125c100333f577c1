package admin

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"rental_dashboard/internal/cache"
	"rental_dashboard/internal/invalidation"
	"rental_dashboard/internal/obs"
)

const CacheAdminServiceName = "dashboard.admin.CacheAdmin"

// CacheAdminServer is the gRPC form of the admin surface. Messages are
// well-known types so no generated code is needed.
type CacheAdminServer interface {
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Invalidate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Purge(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var CacheAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: CacheAdminServiceName,
	HandlerType: (*CacheAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Stats", Handler: unaryHandler("Stats", func(srv CacheAdminServer, ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
			return srv.Stats(ctx, in)
		})},
		{MethodName: "Invalidate", Handler: unaryHandler("Invalidate", func(srv CacheAdminServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.Invalidate(ctx, in)
		})},
		{MethodName: "Purge", Handler: unaryHandler("Purge", func(srv CacheAdminServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return srv.Purge(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dashboard/admin.proto",
}

func unaryHandler[In any, PIn interface {
	*In
}](method string, call func(CacheAdminServer, context.Context, PIn) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + CacheAdminServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PIn(new(In))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CacheAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CacheAdminServer), ctx, req.(PIn))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCConfig struct {
	Auth        *Authenticator
	Stats       *StatsSource
	Purger      *cache.Purger
	Invalidator *invalidation.ServerInvalidator
	Logger      *log.Logger
}

type grpcServer struct {
	stats  *StatsSource
	ops    *operations
	logger *log.Logger
}

// NewGRPCServer returns a server with CacheAdmin registered behind the
// token interceptor.
func NewGRPCServer(cfg GRPCConfig, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(TokenInterceptor(cfg.Auth)))
	server := grpc.NewServer(opts...)
	server.RegisterService(&CacheAdminServiceDesc, &grpcServer{
		stats:  cfg.Stats,
		ops:    &operations{purger: cfg.Purger, invalidator: cfg.Invalidator},
		logger: obs.OrDiscard(cfg.Logger),
	})
	return server
}

// TokenInterceptor requires "authorization: Bearer <token>" metadata.
func TokenInterceptor(a *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		header := ""
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
		if err := a.CheckToken(header); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

func (s *grpcServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.stats == nil {
		return nil, status.Error(codes.Unavailable, "stats unavailable")
	}
	stats, err := s.stats.Collect(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return toStruct(stats)
}

func (s *grpcServer) Invalidate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	mutation := in.GetFields()["mutation"].GetStringValue()
	if mutation == "" {
		return nil, status.Error(codes.InvalidArgument, "mutation is required")
	}
	return s.purge(ctx, PurgeRequest{Mutation: mutation})
}

func (s *grpcServer) Purge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.purge(ctx, PurgeRequest{Prefix: in.GetFields()["prefix"].GetStringValue()})
}

func (s *grpcServer) purge(ctx context.Context, req PurgeRequest) (*structpb.Struct, error) {
	result, err := s.ops.purge(ctx, req)
	if errors.Is(err, invalidation.ErrUnknownMutation) {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err != nil {
		s.logger.Warn("admin purge failed", "scope", result.Scope, "err", err)
		return nil, status.Error(codes.Internal, "purge failed")
	}
	s.logger.Info("admin purge", "scope", result.Scope, "removed", result.Removed, "via", "grpc")
	return toStruct(result)
}

func toStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// CacheAdminClient calls CacheAdmin on conn.
type CacheAdminClient struct {
	conn grpc.ClientConnInterface
}

func NewCacheAdminClient(conn grpc.ClientConnInterface) *CacheAdminClient {
	return &CacheAdminClient{conn: conn}
}

func (c *CacheAdminClient) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+CacheAdminServiceName+"/Stats", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CacheAdminClient) Invalidate(ctx context.Context, mutation string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Invalidate", map[string]any{"mutation": mutation}, opts...)
}

func (c *CacheAdminClient) Purge(ctx context.Context, prefix string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, "Purge", map[string]any{"prefix": prefix}, opts...)
}

func (c *CacheAdminClient) call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+CacheAdminServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WithToken attaches the admin bearer token to outgoing calls.
func WithToken(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}
