package v2

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Totarae/firefly/internal/auth"
	"github.com/Totarae/firefly/internal/handlers"
	"github.com/Totarae/firefly/internal/model"
	"github.com/Totarae/firefly/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCServer struct {
	Service handlers.Shortener
	Logger  *zap.Logger
	BaseURL string
}

func NewGRPCServer(svc handlers.Shortener, logger *zap.Logger, baseURL string) *GRPCServer {
	return &GRPCServer{Service: svc, Logger: logger, BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *GRPCServer) Shorten(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	var requested *string
	if v, ok := fields["code"]; ok {
		c := v.GetStringValue()
		requested = &c
	}

	rec, created, err := s.Service.Shorten(ctx, fields["url"].GetStringValue(), userFrom(ctx), requested)
	if err != nil {
		return nil, s.toStatus(err)
	}

	out := s.record(rec)
	out["created"] = created
	return structpb.NewStruct(out)
}

// Resolve возвращает исходный URL и засчитывает переход.
func (s *GRPCServer) Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireCode(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.Service.Resolve(ctx, c)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return structpb.NewStruct(map[string]any{"url": rec.URL})
}

func (s *GRPCServer) Info(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireCode(req)
	if err != nil {
		return nil, err
	}
	rec, err := s.Service.Lookup(ctx, c)
	if err != nil {
		return nil, s.toStatus(err)
	}
	if rec == nil {
		return nil, status.Error(codes.NotFound, "code is unknown")
	}
	return structpb.NewStruct(s.record(rec))
}

func (s *GRPCServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	opts := model.ListOptions{
		User:       userFrom(ctx),
		SortColumn: fields["sort"].GetStringValue(),
		SortOrder:  fields["order"].GetStringValue(),
		Limit:      int(fields["limit"].GetNumberValue()),
		All:        fields["all"].GetBoolValue(),
	}
	if opts.All {
		opts.User = ""
	}

	urls, err := s.Service.List(ctx, opts)
	if err != nil {
		return nil, s.toStatus(err)
	}
	items := make([]any, 0, len(urls))
	for _, u := range urls {
		items = append(items, s.record(u))
	}
	return structpb.NewStruct(map[string]any{"urls": items})
}

func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireCode(req)
	if err != nil {
		return nil, err
	}
	if err := s.Service.Delete(ctx, c, userFrom(ctx)); err != nil {
		return nil, s.toStatus(err)
	}
	return &structpb.Struct{}, nil
}

func (s *GRPCServer) record(u *model.URL) map[string]any {
	return map[string]any{
		"short_url":  s.BaseURL + "/" + u.Code,
		"code":       u.Code,
		"url":        u.URL,
		"user":       u.User,
		"clicks":     u.Clicks,
		"created_at": u.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *GRPCServer) toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrInvalidCode):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, "code is unknown")
	case errors.Is(err, service.ErrForbidden):
		return status.Error(codes.PermissionDenied, "url belongs to another user")
	default:
		s.Logger.Error("grpc call failed", zap.Error(err))
		return status.Error(codes.Internal, "an unknown error occurred")
	}
}

func requireCode(req *structpb.Struct) (string, error) {
	c := req.GetFields()["code"].GetStringValue()
	if c == "" {
		return "", status.Error(codes.InvalidArgument, "code is required")
	}
	return c, nil
}

func userFrom(ctx context.Context) string {
	if user, ok := auth.UserFromContext(ctx); ok {
		return user
	}
	return model.DefaultUser
}
