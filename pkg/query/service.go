package query

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/jordanlanch/reportdb/pkg/domain"
	"github.com/jordanlanch/reportdb/pkg/logger"
	"github.com/jordanlanch/reportdb/pkg/metadata"
	"github.com/jordanlanch/reportdb/pkg/models"
)

// QueryResult is the API response for one ad-hoc query run
type QueryResult struct {
	Rows  []map[string]interface{} `json:"rows"`
	Count int                      `json:"count"`
}

// Service runs ad-hoc queries: metadata resolution, access filtering,
// compilation and execution in one pass.
type Service struct {
	resolver *metadata.Resolver
	compiler *Compiler
	runner   domain.QueryRunner
	validate *validator.Validate
	log      logger.Logger
}

// NewService creates a new query service
func NewService(resolver *metadata.Resolver, compiler *Compiler, runner domain.QueryRunner, log logger.Logger) *Service {
	return &Service{
		resolver: resolver,
		compiler: compiler,
		runner:   runner,
		validate: validator.New(),
		log:      log,
	}
}

// Run executes an ad-hoc query for one caller. The policy prunes fields
// the caller may not see before any SQL is built.
func (s *Service) Run(ctx context.Context, req models.QueryRequest, policy *domain.AccessPolicy) (*QueryResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	allowed, err := metadata.FilterByPolicy(req.FieldIDs, policy)
	if err != nil {
		return nil, err
	}
	req.FieldIDs = allowed

	meta, err := s.resolver.Resolve(ctx, req.AllFieldIDs())
	if err != nil {
		return nil, err
	}

	compiled, err := s.compiler.Compile(meta, req)
	if err != nil {
		return nil, err
	}

	rows, err := s.runner.Run(ctx, *compiled)
	if err != nil {
		return nil, err
	}

	s.log.Debug("ad-hoc query executed", "fields", len(req.FieldIDs), "rows", len(rows))
	return &QueryResult{Rows: rows, Count: len(rows)}, nil
}

// Count executes the count variant of the query, for pagination
func (s *Service) Count(ctx context.Context, req models.QueryRequest, policy *domain.AccessPolicy) (int, error) {
	allowed, err := metadata.FilterByPolicy(req.FieldIDs, policy)
	if err != nil {
		return 0, err
	}
	req.FieldIDs = allowed

	meta, err := s.resolver.Resolve(ctx, req.AllFieldIDs())
	if err != nil {
		return 0, err
	}

	compiled, err := s.compiler.CompileCount(meta, req)
	if err != nil {
		return 0, err
	}

	rows, err := s.runner.Run(ctx, *compiled)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	for _, v := range rows[0] {
		switch n := v.(type) {
		case int64:
			return int(n), nil
		case int:
			return n, nil
		case float64:
			return int(n), nil
		}
	}
	return 0, nil
}
