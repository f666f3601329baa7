package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ParserClient is the client API of billing.v1.BillingParser.
type ParserClient interface {
	Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (ParseStreamClient, error)
}

// ParseStreamClient receives Parse frames until io.EOF or a status error.
type ParseStreamClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type parserClient struct {
	cc grpc.ClientConnInterface
}

func NewParserClient(cc grpc.ClientConnInterface) ParserClient {
	return &parserClient{cc}
}

func (c *parserClient) Parse(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (ParseStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], ParseMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &parseClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type parseClientStream struct {
	grpc.ClientStream
}

func (x *parseClientStream) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
