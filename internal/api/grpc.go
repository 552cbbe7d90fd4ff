package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "marketpanel.v1.MarketData"

// Full method names.
const (
	MethodGetSeries      = "/" + ServiceName + "/GetSeries"
	MethodGetQuote       = "/" + ServiceName + "/GetQuote"
	MethodGetCompanyName = "/" + ServiceName + "/GetCompanyName"
)

// MarketDataServer is the server API for the MarketData service. Requests
// and responses are well-known Struct messages.
type MarketDataServer interface {
	GetSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCompanyName(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMarketDataServer registers srv on gs.
func RegisterMarketDataServer(gs grpc.ServiceRegistrar, srv MarketDataServer) {
	gs.RegisterService(&MarketDataServiceDesc, srv)
}

// MarketDataServiceDesc describes the MarketData service for grpc.Server.
var MarketDataServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketDataServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSeries", Handler: unaryHandler(MethodGetSeries, MarketDataServer.GetSeries)},
		{MethodName: "GetQuote", Handler: unaryHandler(MethodGetQuote, MarketDataServer.GetQuote)},
		{MethodName: "GetCompanyName", Handler: unaryHandler(MethodGetCompanyName, MarketDataServer.GetCompanyName)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketpanel/v1/marketdata.proto",
}

type structMethod func(MarketDataServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketDataServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarketDataServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
