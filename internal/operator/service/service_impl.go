package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/farebox/internal/cache"
	"github.com/smallbiznis/farebox/internal/operator/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Cache cache.OperatorCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.OperatorCache
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("operator.service"),
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Operator, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrInvalidToken
	}
	hash := domain.HashToken(rawToken)

	if s.cache != nil {
		if operator, ok := s.cache.Get(hash); ok {
			return operator, nil
		}
	}

	operator, err := s.repo.FindByTokenHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if operator == nil {
		return nil, domain.ErrInvalidToken
	}

	if s.cache != nil {
		s.cache.Set(hash, operator)
	}
	return operator, nil
}

func (s *Service) GetByID(ctx context.Context, companyID, id snowflake.ID) (*domain.Operator, error) {
	operator, err := s.repo.FindByID(ctx, s.db, companyID, id)
	if err != nil {
		return nil, err
	}
	if operator == nil {
		return nil, domain.ErrNotFound
	}
	return operator, nil
}
