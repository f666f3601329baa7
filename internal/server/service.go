package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/billing-parser/internal/common"
	"github.com/joseph-ayodele/billing-parser/internal/entity"
	"github.com/joseph-ayodele/billing-parser/internal/events"
	"github.com/joseph-ayodele/billing-parser/internal/ingest"
	"github.com/joseph-ayodele/billing-parser/internal/pipeline"
)

const (
	ServiceName = "billing.v1.BillingParser"
	ParseMethod = "/" + ServiceName + "/Parse"

	maxStepBound = 100
)

// ParserServer is the server API of billing.v1.BillingParser.
type ParserServer interface {
	Parse(*structpb.Struct, ParseStream) error
}

// ParseStream is the server side of a Parse call.
type ParseStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

// ServiceDesc describes billing.v1.BillingParser. Messages travel as
// google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ParserServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Parse",
			Handler:       parseHandler,
			ServerStreams: true,
		},
	},
	Metadata: "billing/v1/billing.proto",
}

func RegisterParserServer(s grpc.ServiceRegistrar, srv ParserServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type parseServerStream struct {
	grpc.ServerStream
}

func (x *parseServerStream) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func parseHandler(srv any, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ParserServer).Parse(m, &parseServerStream{stream})
}

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, obs pipeline.Observer) (pipeline.Outcome, error)
}

// ParserService streams pipeline runs to gRPC clients.
type ParserService struct {
	runner Runner
	loader *ingest.Loader
	logger *slog.Logger
}

func NewParserService(runner Runner, loader *ingest.Loader, logger *slog.Logger) *ParserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParserService{runner: runner, loader: loader, logger: logger}
}

// Parse runs the pipeline over the request's files. Every event is relayed as
// an "event" frame, every completed stage as a "partial" frame, and the run
// ends with one "final" frame.
func (s *ParserService) Parse(in *structpb.Struct, stream ParseStream) error {
	ctx := stream.Context()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			ctx = common.WithRequestID(ctx, ids[0])
		}
	}
	start := time.Now()

	pr, err := decodeRequest(in)
	if err != nil {
		s.logger.Warn("parse.request.invalid", "error", err)
		return common.InvalidArgumentErrorf("malformed request: %v", err)
	}
	v := common.NewValidator()
	v.Field("stepBound", pr.StepBound, common.IntRange(0, maxStepBound))
	for i, st := range pr.Steps {
		v.Field(fmt.Sprintf("steps[%d]", i), st, common.Required)
	}
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	refs, err := pr.fileRefs()
	if err != nil {
		return common.InvalidArgumentErrorf("malformed request: %v", err)
	}
	if err := ingest.Validate(refs); err != nil {
		return common.InvalidArgumentError(err.Error())
	}

	req := pipeline.Request{
		Source:    "grpc",
		Resolve:   func(ctx context.Context) ([]entity.FileDescriptor, error) { return s.loader.Load(ctx, refs) },
		StepBound: pr.StepBound,
		Verbose:   pr.Verbose,
	}
	if len(pr.Steps) > 0 {
		req.Proposer = pr.proposer()
	}

	out, err := s.runner.Run(ctx, req, &streamObserver{stream: stream})
	if err != nil {
		s.logger.Error("parse.failed", "run_id", out.RunID, "kind", common.KindOf(err), "error", err)
		return common.StatusFromError(err)
	}

	final, err := finalFrame(out)
	if err != nil {
		return common.InternalErrorf("encode result: %v", err)
	}
	if err := stream.Send(final); err != nil {
		return err
	}
	s.logger.Info("parse.ok", "run_id", out.RunID, "steps", out.Steps, "results", len(out.Payload.Classification),
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// streamObserver turns run notifications into stream frames.
type streamObserver struct {
	stream ParseStream
}

func (o *streamObserver) OnEvent(_ context.Context, ev events.ToolEvent) error {
	f, err := eventFrame(ev)
	if err != nil {
		return err
	}
	return o.stream.Send(f)
}

func (o *streamObserver) OnPartial(_ context.Context, snap pipeline.Snapshot) error {
	f, err := partialFrame(snap)
	if err != nil {
		return err
	}
	return o.stream.Send(f)
}
