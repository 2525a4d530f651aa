package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditrail/internal/balancelock"
	"github.com/smallbiznis/creditrail/internal/clock"
	creditsdomain "github.com/smallbiznis/creditrail/internal/credits/domain"
	"github.com/smallbiznis/creditrail/internal/events"
	"github.com/smallbiznis/creditrail/internal/observability/metrics"
	productdomain "github.com/smallbiznis/creditrail/internal/product/domain"
	"github.com/smallbiznis/creditrail/pkg/db"
	"github.com/smallbiznis/creditrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// conflictRetries bounds how often a guarded update is retried before the
// operation gives up. With the balance lock held a conflict is rare, so a
// small budget is enough.
const conflictRetries = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Guard       *balancelock.Guard
	Outbox      *events.Outbox
	Metrics     *metrics.Metrics `optional:"true"`
	Repo        creditsdomain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        creditsdomain.Repository
	productRepo productdomain.Repository
	genID       *snowflake.Node
	clock       clock.Clock
	guard       *balancelock.Guard
	outbox      *events.Outbox
	metrics     *metrics.Metrics
}

func New(p Params) creditsdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("credits.service"),
		repo:        p.Repo,
		productRepo: p.ProductRepo,
		genID:       p.GenID,
		clock:       p.Clock,
		guard:       p.Guard,
		outbox:      p.Outbox,
		metrics:     p.Metrics,
	}
}

func (s *Service) Grant(ctx context.Context, orgID snowflake.ID, req creditsdomain.TransactionRequest) (*creditsdomain.TransactionResponse, error) {
	return s.apply(ctx, orgID, req, creditsdomain.TransactionTypeGrant)
}

func (s *Service) Deduct(ctx context.Context, orgID snowflake.ID, req creditsdomain.TransactionRequest) (*creditsdomain.TransactionResponse, error) {
	return s.apply(ctx, orgID, req, creditsdomain.TransactionTypeDeduct)
}

func (s *Service) Refund(ctx context.Context, orgID snowflake.ID, req creditsdomain.TransactionRequest) (*creditsdomain.TransactionResponse, error) {
	return s.apply(ctx, orgID, req, creditsdomain.TransactionTypeRefund)
}

func (s *Service) apply(ctx context.Context, orgID snowflake.ID, req creditsdomain.TransactionRequest, txnType creditsdomain.TransactionType) (*creditsdomain.TransactionResponse, error) {
	if orgID == 0 {
		return nil, creditsdomain.ErrInvalidOrganization
	}
	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return nil, creditsdomain.ErrInvalidCustomer
	}
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, creditsdomain.ErrInvalidProduct
	}
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, creditsdomain.ErrInvalidAmount
	}

	product, err := s.productRepo.FindByID(ctx, s.db, orgID, productID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		return nil, creditsdomain.ErrProductNotFound
	}

	credits, err := resolveCredits(req.Amount, product, txnType)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(ctx, orgID.String(), customerID.String(), productID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	var txn *creditsdomain.CreditTransaction
	for attempt := 0; attempt < conflictRetries; attempt++ {
		txn, err = s.applyOnce(ctx, orgID, customerID, productID, credits, req, txnType)
		if err == nil {
			break
		}
		if !errors.Is(err, creditsdomain.ErrConflict) {
			break
		}
		if s.metrics != nil {
			s.metrics.RecordBalanceConflict(ctx, string(txnType))
		}
		s.log.Warn("balance update conflict, retrying",
			zap.String("customer_id", customerID.String()),
			zap.String("product_id", productID.String()),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		if errors.Is(err, creditsdomain.ErrInsufficientCredits) && s.metrics != nil {
			s.metrics.RecordInsufficientCredits(ctx)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCreditOperation(ctx, string(txnType))
	}
	return toTransactionResponse(txn), nil
}

// applyOnce runs one attempt of the ledger mutation. The balance update,
// transaction row, and outbox event commit together or not at all.
func (s *Service) applyOnce(
	ctx context.Context,
	orgID, customerID, productID snowflake.ID,
	credits creditsdomain.Credits,
	req creditsdomain.TransactionRequest,
	txnType creditsdomain.TransactionType,
) (*creditsdomain.CreditTransaction, error) {
	now := s.clock.Now()
	var txn *creditsdomain.CreditTransaction

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.repo.FindBalance(ctx, tx, orgID, customerID, productID)
		if err != nil {
			return err
		}

		if balance == nil {
			// Only a grant may create the balance row; deducts and refunds
			// against an unknown balance are a caller error, not a zero balance.
			if txnType != creditsdomain.TransactionTypeGrant {
				return creditsdomain.ErrBalanceNotFound
			}
			balance = &creditsdomain.CreditBalance{
				ID:         s.genID.Generate(),
				OrgID:      orgID,
				CustomerID: customerID,
				ProductID:  productID,
				UpdatedAt:  now,
			}
			if err := s.repo.InsertBalance(ctx, tx, balance); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return creditsdomain.ErrConflict
				}
				return err
			}
		}

		observed := *balance
		applied := credits

		switch txnType {
		case creditsdomain.TransactionTypeGrant:
			balance.Balance += applied
			balance.Granted += applied
		case creditsdomain.TransactionTypeDeduct:
			if balance.Balance < applied {
				return creditsdomain.ErrInsufficientCredits
			}
			balance.Balance -= applied
			balance.Consumed += applied
		case creditsdomain.TransactionTypeRefund:
			// Refunds never push consumed below zero; anything beyond
			// what was consumed is simply not refundable.
			if applied > balance.Consumed {
				applied = balance.Consumed
			}
			if applied == 0 {
				return creditsdomain.ErrInvalidAmount
			}
			balance.Balance += applied
			balance.Consumed -= applied
		default:
			return creditsdomain.ErrInvalidTransactionType
		}
		balance.UpdatedAt = now

		rows, err := s.repo.UpdateBalanceGuarded(ctx, tx, &observed, balance)
		if err != nil {
			return err
		}
		if rows == 0 {
			return creditsdomain.ErrConflict
		}

		txn = &creditsdomain.CreditTransaction{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			CustomerID:    customerID,
			ProductID:     productID,
			Type:          txnType,
			Amount:        applied,
			BalanceBefore: observed.Balance,
			BalanceAfter:  balance.Balance,
			Reason:        strings.TrimSpace(req.Reason),
			Metadata:      datatypes.JSONMap(req.Metadata),
			CreatedAt:     now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		return s.outbox.PublishTx(ctx, tx, orgID, eventTypeFor(txnType), map[string]any{
			"transaction_id": txn.ID.String(),
			"customer_id":    customerID.String(),
			"product_id":     productID.String(),
			"type":           string(txnType),
			"amount":         int64(applied),
			"balance_after":  int64(balance.Balance),
			"reason":         txn.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) GetBalance(ctx context.Context, orgID snowflake.ID, customerID, productID string) (*creditsdomain.BalanceResponse, error) {
	if orgID == 0 {
		return nil, creditsdomain.ErrInvalidOrganization
	}
	custID, err := snowflake.ParseString(strings.TrimSpace(customerID))
	if err != nil {
		return nil, creditsdomain.ErrInvalidCustomer
	}
	prodID, err := snowflake.ParseString(strings.TrimSpace(productID))
	if err != nil {
		return nil, creditsdomain.ErrInvalidProduct
	}

	balance, err := s.repo.FindBalance(ctx, s.db, orgID, custID, prodID)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return nil, creditsdomain.ErrBalanceNotFound
	}

	return &creditsdomain.BalanceResponse{
		OrganizationID: balance.OrgID.String(),
		CustomerID:     balance.CustomerID.String(),
		ProductID:      balance.ProductID.String(),
		Balance:        int64(balance.Balance),
		Consumed:       int64(balance.Consumed),
		Granted:        int64(balance.Granted),
		UpdatedAt:      balance.UpdatedAt,
	}, nil
}

func (s *Service) ListTransactions(ctx context.Context, orgID snowflake.ID, req creditsdomain.ListTransactionsRequest) (*creditsdomain.ListTransactionsResponse, error) {
	if orgID == 0 {
		return nil, creditsdomain.ErrInvalidOrganization
	}
	custID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return nil, creditsdomain.ErrInvalidCustomer
	}

	filter := creditsdomain.TransactionFilter{
		OrgID:      orgID,
		CustomerID: custID,
	}
	if strings.TrimSpace(req.ProductID) != "" {
		prodID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
		if err != nil {
			return nil, creditsdomain.ErrInvalidProduct
		}
		filter.ProductID = prodID
	}

	limit := req.Pagination.PageSize
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	filter.Limit = limit + 1

	if token := strings.TrimSpace(req.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		filter.CursorID = cursorID
		filter.CursorCreatedAt = createdAt
	}

	transactions, err := s.repo.ListTransactions(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	hasMore := len(transactions) > limit
	if hasMore {
		transactions = transactions[:limit]
	}

	resp := &creditsdomain.ListTransactionsResponse{
		Transactions: make([]creditsdomain.TransactionResponse, 0, len(transactions)),
		PageInfo:     pagination.PageInfo{HasMore: hasMore},
	}
	for i := range transactions {
		resp.Transactions = append(resp.Transactions, *toTransactionResponse(&transactions[i]))
	}
	if hasMore && len(transactions) > 0 {
		last := transactions[len(transactions)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		resp.PageInfo.NextPageToken = token
	}
	return resp, nil
}

// resolveCredits turns the request amount into whole credits. Grants are
// denominated in credits already; deducts and refunds arrive as raw usage
// amounts and go through the product's unit conversion.
func resolveCredits(amount float64, product *productdomain.Product, txnType creditsdomain.TransactionType) (creditsdomain.Credits, error) {
	if txnType == creditsdomain.TransactionTypeGrant {
		if amount != math.Trunc(amount) {
			return 0, creditsdomain.ErrInvalidAmount
		}
		return creditsdomain.Credits(amount), nil
	}

	cfg := creditsdomain.BillingConfig{}
	if product.UnitDivisor != nil {
		cfg.UnitDivisor = *product.UnitDivisor
	}
	if product.UnitsPerCredit != nil {
		cfg.UnitsPerCredit = *product.UnitsPerCredit
	}
	credits := creditsdomain.ToCredits(amount, cfg)
	if credits <= 0 {
		return 0, creditsdomain.ErrInvalidAmount
	}
	return credits, nil
}

func eventTypeFor(txnType creditsdomain.TransactionType) string {
	switch txnType {
	case creditsdomain.TransactionTypeGrant:
		return events.TypeCreditGranted
	case creditsdomain.TransactionTypeDeduct:
		return events.TypeCreditDeducted
	default:
		return events.TypeCreditRefunded
	}
}

func toTransactionResponse(t *creditsdomain.CreditTransaction) *creditsdomain.TransactionResponse {
	return &creditsdomain.TransactionResponse{
		ID:             t.ID.String(),
		OrganizationID: t.OrgID.String(),
		CustomerID:     t.CustomerID.String(),
		ProductID:      t.ProductID.String(),
		Type:           string(t.Type),
		Amount:         int64(t.Amount),
		BalanceBefore:  int64(t.BalanceBefore),
		BalanceAfter:   int64(t.BalanceAfter),
		Reason:         t.Reason,
		Metadata:       map[string]any(t.Metadata),
		CreatedAt:      t.CreatedAt,
	}
}
