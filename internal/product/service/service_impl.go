package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditrail/internal/clock"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  productdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  productdomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) productdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, orgID snowflake.ID, req productdomain.CreateRequest) (*productdomain.Response, error) {
	if orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, productdomain.ErrInvalidName
	}

	billingType := productdomain.BillingType(strings.TrimSpace(req.BillingType))
	switch billingType {
	case productdomain.BillingTypeMetered, productdomain.BillingTypeLicensed:
	default:
		return nil, productdomain.ErrInvalidBillingType
	}

	if req.UnitDivisor != nil && *req.UnitDivisor <= 0 {
		return nil, productdomain.ErrInvalidUnitConfig
	}
	if req.UnitsPerCredit != nil && *req.UnitsPerCredit <= 0 {
		return nil, productdomain.ErrInvalidUnitConfig
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	product := &productdomain.Product{
		ID:             s.genID.Generate(),
		OrgID:          orgID,
		Name:           name,
		BillingType:    billingType,
		UnitDivisor:    req.UnitDivisor,
		UnitsPerCredit: req.UnitsPerCredit,
		Active:         active,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, product); err != nil {
		return nil, err
	}

	return s.toResponse(product), nil
}

func (s *Service) GetByID(ctx context.Context, orgID snowflake.ID, id string) (*productdomain.Response, error) {
	if orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	productID, err := productdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, productdomain.ErrInvalidID
	}

	product, err := s.repo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, productdomain.ErrNotFound
	}

	return s.toResponse(product), nil
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]productdomain.Response, error) {
	if orgID == 0 {
		return nil, productdomain.ErrInvalidOrganization
	}

	products, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}

	responses := make([]productdomain.Response, 0, len(products))
	for i := range products {
		responses = append(responses, *s.toResponse(&products[i]))
	}
	return responses, nil
}

func (s *Service) toResponse(p *productdomain.Product) *productdomain.Response {
	return &productdomain.Response{
		ID:             p.ID.String(),
		OrganizationID: p.OrgID.String(),
		Name:           p.Name,
		BillingType:    string(p.BillingType),
		UnitDivisor:    p.UnitDivisor,
		UnitsPerCredit: p.UnitsPerCredit,
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
