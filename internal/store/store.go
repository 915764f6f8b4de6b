package store

import (
	"context"
	"errors"
	"time"

	"tokoku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrOverpayment       = errors.New("payment exceeds remaining debt")
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEntryManaged is returned when a ledger entry owned by a source
	// operation (order, debt-created, debt-payment) is edited or deleted
	// directly instead of through its source.
	ErrEntryManaged = errors.New("ledger entry is managed by its source operation")
)

// Repository is the persistence boundary. Every financial operation method
// (CreateDebt, PayDebt, SoftDeleteDebtor, AppendCashMovement,
// UpdateCashMovement, SoftDeleteLedgerEntry, CreateOrder, UpdateOrderStatus)
// commits its debtor, client-balance and ledger writes as one atomic unit:
// either all of them land or none do.
type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SoftDeleteProduct(ctx context.Context, id string, at time.Time) error

	ListClients(ctx context.Context, filter domain.ClientFilter) ([]domain.Client, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClientByID(ctx context.Context, id string) (*domain.Client, error)
	UpdateClientInfo(ctx context.Context, client domain.Client) (*domain.Client, error)
	SoftDeleteClient(ctx context.Context, id string, at time.Time) error
	CountOpenDebtors(ctx context.Context, clientID string) (int, error)

	ListDebtors(ctx context.Context, filter domain.DebtorFilter) ([]domain.Debtor, error)
	GetDebtorByID(ctx context.Context, id string) (*domain.Debtor, error)
	CreateDebt(ctx context.Context, debtor domain.Debtor, entry domain.LedgerEntry) (*domain.Debtor, error)
	PayDebt(ctx context.Context, debtorID string, paymentCents int64, paymentType string, next *domain.PaymentPlan, paidAt time.Time, createdBy string) (*domain.Debtor, error)
	UpdateDebtor(ctx context.Context, debtor domain.Debtor) (*domain.Debtor, error)
	SoftDeleteDebtor(ctx context.Context, id string, at time.Time) (*domain.Debtor, error)

	ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error)
	GetLedgerEntryByID(ctx context.Context, id string) (*domain.LedgerEntry, error)
	AppendCashMovement(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	UpdateCashMovement(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	SoftDeleteLedgerEntry(ctx context.Context, id string, at time.Time) error

	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order, entry domain.LedgerEntry) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Order, error)

	GetDashboardSummary(ctx context.Context, from time.Time, to time.Time, now time.Time) (domain.DashboardSummary, error)
	GetMonthlyStatistics(ctx context.Context, year int) (domain.MonthlyStatistics, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
