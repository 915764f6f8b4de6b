package domain

import "time"

type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Barcode        string         `json:"barcode,omitempty"`
	Category       string         `json:"category"`
	CostPriceCents int64          `json:"cost_price_cents"`
	SalePriceCents int64          `json:"sale_price_cents"`
	Quantity       int            `json:"quantity"`
	MinQuantity    int            `json:"min_quantity"`
	Discounts      []DiscountTier `json:"discounts,omitempty"`
	IsDeleted      bool           `json:"is_deleted,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DiscountTier grants a percentage off the sale price once the ordered
// quantity reaches MinQty. Tiers are evaluated highest MinQty first.
type DiscountTier struct {
	MinQty  int     `json:"min_qty"`
	Percent float64 `json:"percent"`
}

type ProductCreateRequest struct {
	Name           string         `json:"name"`
	Barcode        string         `json:"barcode"`
	Category       string         `json:"category"`
	CostPriceCents int64          `json:"cost_price_cents"`
	SalePriceCents int64          `json:"sale_price_cents"`
	Quantity       int            `json:"quantity"`
	MinQuantity    int            `json:"min_quantity"`
	Discounts      []DiscountTier `json:"discounts,omitempty"`
}

type ProductUpdateRequest struct {
	Name           *string         `json:"name,omitempty"`
	Barcode        *string         `json:"barcode,omitempty"`
	Category       *string         `json:"category,omitempty"`
	CostPriceCents *int64          `json:"cost_price_cents,omitempty"`
	SalePriceCents *int64          `json:"sale_price_cents,omitempty"`
	Quantity       *int            `json:"quantity,omitempty"`
	MinQuantity    *int            `json:"min_quantity,omitempty"`
	Discounts      *[]DiscountTier `json:"discounts,omitempty"`
}

type ProductFilter struct {
	Search   string
	Category string
	LowStock bool
	Limit    int
	Offset   int
}

type Client struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Note      string     `json:"note,omitempty"`
	DebtCents int64      `json:"debt_cents"`
	IsDeleted bool       `json:"is_deleted,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type ClientCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

// ClientUpdateRequest deliberately has no debt field: the balance is owned
// by the financial operations and is never patched directly.
type ClientUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Note  *string `json:"note,omitempty"`
}

type ClientFilter struct {
	Search string
	Limit  int
	Offset int
}

type PaymentPlan struct {
	AmountCents int64     `json:"amount_cents"`
	DueDate     time.Time `json:"due_date"`
}

type PaymentRecord struct {
	AmountCents int64     `json:"amount_cents"`
	Date        time.Time `json:"date"`
}

type Debtor struct {
	ID               string         `json:"id"`
	ClientID         string         `json:"client_id"`
	OrderID          string         `json:"order_id,omitempty"`
	Client           *Client        `json:"client,omitempty"`
	CurrentDebtCents int64          `json:"current_debt_cents"`
	InitialDebtCents int64          `json:"initial_debt_cents"`
	InitialDebtDate  time.Time      `json:"initial_debt_date"`
	TotalPaidCents   int64          `json:"total_paid_cents"`
	LastPayment      *PaymentRecord `json:"last_payment,omitempty"`
	NextPayment      *PaymentPlan   `json:"next_payment,omitempty"`
	Status           string         `json:"status"`
	Description      string         `json:"description,omitempty"`
	IsDeleted        bool           `json:"is_deleted,omitempty"`
	DeletedAt        *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type DebtorCreateRequest struct {
	ClientID         string       `json:"client_id"`
	CurrentDebtCents int64        `json:"current_debt_cents"`
	InitialDebtCents *int64       `json:"initial_debt_cents,omitempty"`
	NextPayment      *PaymentPlan `json:"next_payment,omitempty"`
	Description      string       `json:"description"`
}

type DebtorUpdateRequest struct {
	CurrentDebtCents *int64       `json:"current_debt_cents,omitempty"`
	InitialDebtCents *int64       `json:"initial_debt_cents,omitempty"`
	NextPayment      *PaymentPlan `json:"next_payment,omitempty"`
	Description      *string      `json:"description,omitempty"`
	Status           *string      `json:"status,omitempty"`
}

type DebtPaymentRequest struct {
	PaymentCents int64        `json:"payment_cents"`
	PaymentType  string       `json:"payment_type,omitempty"`
	NextPayment  *PaymentPlan `json:"next_payment,omitempty"`
}

type DebtorFilter struct {
	ClientID string
	Status   string
	Limit    int
	Offset   int
}

type LedgerEntry struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	AmountCents  int64      `json:"amount_cents"`
	PaymentType  string     `json:"payment_type"`
	ClientID     string     `json:"client_id,omitempty"`
	RelatedModel string     `json:"related_model,omitempty"`
	RelatedID    string     `json:"related_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
	IsDeleted    bool       `json:"is_deleted,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type CashMovementRequest struct {
	AmountCents int64  `json:"amount_cents"`
	PaymentType string `json:"payment_type"`
	ClientID    string `json:"client_id"`
	Description string `json:"description"`
}

type LedgerEntryUpdateRequest struct {
	AmountCents *int64  `json:"amount_cents,omitempty"`
	PaymentType *string `json:"payment_type,omitempty"`
	ClientID    *string `json:"client_id,omitempty"`
	Description *string `json:"description,omitempty"`
}

type LedgerFilter struct {
	Type     string
	ClientID string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

type OrderLine struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
	ProfitCents    int64  `json:"profit_cents"`
}

type Order struct {
	ID               string      `json:"id"`
	ClientID         string      `json:"client_id,omitempty"`
	Lines            []OrderLine `json:"lines"`
	TotalAmountCents int64       `json:"total_amount_cents"`
	PaidAmountCents  int64       `json:"paid_amount_cents"`
	DebtAmountCents  int64       `json:"debt_amount_cents"`
	ProfitCents      int64       `json:"profit_cents"`
	PaymentType      string      `json:"payment_type"`
	Status           string      `json:"status"`
	CreatedBy        string      `json:"created_by,omitempty"`
	IsDeleted        bool        `json:"is_deleted,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type OrderLineRequest struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents *int64 `json:"price_cents,omitempty"`
}

type OrderCreateRequest struct {
	ClientID        string             `json:"client_id"`
	Lines           []OrderLineRequest `json:"lines"`
	PaidAmountCents int64              `json:"paid_amount_cents"`
	DebtAmountCents int64              `json:"debt_amount_cents"`
	PaymentType     string             `json:"payment_type"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

type OrderFilter struct {
	ClientID string
	Status   string
	Limit    int
	Offset   int
}

// OrderEvent is the payload broadcast to push-notification listeners on
// order creation and status changes. Delivery is fire and forget.
type OrderEvent struct {
	Event string `json:"event"`
	Order Order  `json:"order"`
}

type DailyIncomePoint struct {
	Date        string `json:"date"`
	IncomeCents int64  `json:"income_cents"`
}

type DashboardSummary struct {
	From              string             `json:"from"`
	To                string             `json:"to"`
	CashInCents       int64              `json:"cash_in_cents"`
	CashInCount       int64              `json:"cash_in_count"`
	CashOutCents      int64              `json:"cash_out_cents"`
	CashOutCount      int64              `json:"cash_out_count"`
	OrdersCents       int64              `json:"orders_cents"`
	OrdersCount       int64              `json:"orders_count"`
	ProfitCents       int64              `json:"profit_cents"`
	ReceivableCents   int64              `json:"receivable_cents"`
	OverdueDebtors    int64              `json:"overdue_debtors"`
	StockCapitalCents int64              `json:"stock_capital_cents"`
	LowStockCount     int64              `json:"low_stock_count"`
	DailyIncome       []DailyIncomePoint `json:"daily_income"`
}

type MonthlyStatistics struct {
	Year         int       `json:"year"`
	CashInCents  [12]int64 `json:"cash_in_cents"`
	CashOutCents [12]int64 `json:"cash_out_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	EntryTypeCashIn      = "cash-in"
	EntryTypeCashOut     = "cash-out"
	EntryTypeOrder       = "order"
	EntryTypeDebtCreated = "debt-created"
	EntryTypeDebtPayment = "debt-payment"
)

const (
	PaymentTypeCash = "cash"
	PaymentTypeCard = "card"
	PaymentTypeDebt = "debt"
)

const (
	DebtorStatusPending = "pending"
	DebtorStatusPartial = "partial"
	DebtorStatusPaid    = "paid"
	DebtorStatusOverdue = "overdue"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	RelatedModelOrder  = "order"
	RelatedModelDebtor = "debtor"
)

const (
	OrderEventCreated = "order.created"
	OrderEventUpdated = "order.updated"
)

// IsValidEntryType reports whether t names one of the ledger entry types.
func IsValidEntryType(t string) bool {
	switch t {
	case EntryTypeCashIn, EntryTypeCashOut, EntryTypeOrder, EntryTypeDebtCreated, EntryTypeDebtPayment:
		return true
	}
	return false
}

func IsValidPaymentType(t string) bool {
	switch t {
	case PaymentTypeCash, PaymentTypeCard, PaymentTypeDebt:
		return true
	}
	return false
}

func IsValidDebtorStatus(s string) bool {
	switch s {
	case DebtorStatusPending, DebtorStatusPartial, DebtorStatusPaid, DebtorStatusOverdue:
		return true
	}
	return false
}
