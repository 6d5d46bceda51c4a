// Package api provides the gRPC correlation rule API.
package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/correlate/internal/core/config"
	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

// CorrelationAPIService implements the correlation.v1.CorrelationAPI
// methods. Thin transport layer delegating to the correlation service.
type CorrelationAPIService struct {
	svc *correlation.Service
	cfg *config.CorrelationAPIConfig
}

// NewCorrelationAPIService creates service instance with dependencies.
func NewCorrelationAPIService(svc *correlation.Service, cfg *config.CorrelationAPIConfig) (*CorrelationAPIService, error) {
	if svc == nil {
		return nil, fmt.Errorf("svc cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	return &CorrelationAPIService{svc: svc, cfg: cfg}, nil
}

type rulesRequest struct {
	Correlations []types.RuleInput `json:"correlations"`
}

type idsRequest struct {
	IDs []types.RuleID `json:"correlationids"`
}

type getRequest struct {
	ID types.RuleID `json:"correlationid"`
}

type listRequest struct {
	Status *types.Status `json:"status"`
	Search string        `json:"search"`
	Limit  int           `json:"limit"`
}

type listResponse struct {
	Correlations []types.RuleView `json:"correlations"`
}

// Create validates and stores new rules.
// Request: {"correlations": [...]}. Response: {"correlationids": [...]}.
func (s *CorrelationAPIService) Create(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rulesRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(in.Correlations)); err != nil {
		return nil, err
	}

	ids, err := s.svc.Create(ctx, in.Correlations)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(idsRequest{IDs: ids})
}

// Update applies partial updates to existing rules.
// Request: {"correlations": [...]}. Response: {"correlationids": [...]}.
func (s *CorrelationAPIService) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in rulesRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(in.Correlations)); err != nil {
		return nil, err
	}

	ids, err := s.svc.Update(ctx, in.Correlations)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(idsRequest{IDs: ids})
}

// Get returns one rule with display letters.
// Request: {"correlationid": "..."}.
func (s *CorrelationAPIService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in getRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, status.Error(codes.InvalidArgument, `the parameter "correlationid" is missing`)
	}

	view, err := s.svc.Get(ctx, in.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(view)
}

// List returns rules ordered by name.
// Request: {"status": 0, "search": "...", "limit": 10}, every field optional.
func (s *CorrelationAPIService) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, status.Error(codes.InvalidArgument, `invalid parameter "status": value must be one of 0, 1`)
	}
	if in.Limit < 0 || in.Limit > s.cfg.MaxBatchSize {
		return nil, status.Errorf(codes.InvalidArgument, "limit must be between 0 and %d", s.cfg.MaxBatchSize)
	}
	limit := in.Limit
	if limit == 0 {
		limit = s.cfg.MaxBatchSize
	}

	views, err := s.svc.List(ctx, types.ListOptions{Status: in.Status, Search: in.Search, Limit: limit})
	if err != nil {
		return nil, toStatus(err)
	}
	if views == nil {
		views = []types.RuleView{}
	}
	return encode(listResponse{Correlations: views})
}

// Delete removes rules.
// Request: {"correlationids": [...]}. Response echoes the deleted IDs.
func (s *CorrelationAPIService) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in idsRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if err := s.checkBatch(len(in.IDs)); err != nil {
		return nil, err
	}

	if err := s.svc.Delete(ctx, in.IDs); err != nil {
		return nil, toStatus(err)
	}
	return encode(in)
}

func (s *CorrelationAPIService) checkBatch(n int) error {
	if n == 0 {
		return status.Error(codes.InvalidArgument, "batch cannot be empty")
	}
	if n > s.cfg.MaxBatchSize {
		return status.Errorf(codes.InvalidArgument, "batch size %d exceeds maximum %d", n, s.cfg.MaxBatchSize)
	}
	return nil
}
