package api

import (
	"context"

	"github.com/sirupsen/logrus"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/tracefold/app-server/auth"
	"github.com/tracefold/app-server/cache"
	"github.com/tracefold/app-server/db"
	"github.com/tracefold/app-server/logs"
	"github.com/tracefold/app-server/mq"
	"github.com/tracefold/app-server/traces"
)

// GRPCServices implements the OTLP trace and logs export services on the
// second port, authenticating via the authorization metadata entry.
type GRPCServices struct {
	coltracepb.UnimplementedTraceServiceServer

	DB     *db.DB
	Cache  cache.Cache
	Queue  mq.MessageQueue
	Logger *logrus.Logger
}

// Register attaches both services to a gRPC server.
func (g *GRPCServices) Register(server *grpc.Server) {
	coltracepb.RegisterTraceServiceServer(server, g)
	collogspb.RegisterLogsServiceServer(server, &logsService{parent: g})
}

// authenticate resolves the project key from gRPC metadata.
func (g *GRPCServices) authenticate(ctx context.Context) (*db.ProjectAPIKey, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	token, err := auth.ExtractBearerTokenFromMetadata(md)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid bearer token")
	}
	key, err := auth.GetProjectAPIKey(ctx, g.DB, g.Cache, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid project API key")
	}
	return key, nil
}

// Export implements the OTLP trace export service.
func (g *GRPCServices) Export(ctx context.Context, request *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	key, err := g.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if err := traces.PushSpansToQueue(ctx, request, key.ProjectID, g.Queue, g.Logger); err != nil {
		g.Logger.WithError(err).Error("failed to enqueue gRPC trace export")
		return nil, status.Error(codes.Internal, "failed to enqueue spans")
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

// logsService adapts GRPCServices to the logs export service, which shares
// the Export method name with the trace service.
type logsService struct {
	collogspb.UnimplementedLogsServiceServer
	parent *GRPCServices
}

// Export implements the OTLP logs export service.
func (l *logsService) Export(ctx context.Context, request *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	key, err := l.parent.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	if err := logs.PushLogsToQueue(ctx, request, key.ProjectID, l.parent.Queue, l.parent.Logger); err != nil {
		l.parent.Logger.WithError(err).Error("failed to enqueue gRPC logs export")
		return nil, status.Error(codes.Internal, "failed to enqueue logs")
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}
