package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoku/backend/internal/domain"
	"tokoku/backend/internal/store"
	"tokoku/backend/internal/xid"
)

// Store keeps everything behind one mutex, so every financial operation is
// naturally atomic: the balance update, the debtor mutation and the ledger
// append happen inside a single critical section.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	clients         map[string]domain.Client
	debtors         map[string]domain.Debtor
	ledger          map[string]domain.LedgerEntry
	ledgerOrder     []string
	orders          map[string]domain.Order
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		clients:         make(map[string]domain.Client),
		debtors:         make(map[string]domain.Debtor),
		ledger:          make(map[string]domain.LedgerEntry),
		ledgerOrder:     make([]string, 0, 128),
		orders:          make(map[string]domain.Order),
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prod-beras-01", Name: "Beras Premium 5kg", Category: "grocery", CostPriceCents: 620000, SalePriceCents: 710000, Quantity: 40, MinQuantity: 10},
		{ID: "prod-minyak-01", Name: "Minyak Goreng 2L", Category: "grocery", CostPriceCents: 310000, SalePriceCents: 365000, Quantity: 55, MinQuantity: 12},
		{ID: "prod-gula-01", Name: "Gula Pasir 1kg", Category: "grocery", CostPriceCents: 150000, SalePriceCents: 174000, Quantity: 80, MinQuantity: 20},
		{ID: "prod-kopi-01", Name: "Kopi Bubuk 250g", Category: "beverage", CostPriceCents: 180000, SalePriceCents: 232000, Quantity: 35, MinQuantity: 8, Discounts: []domain.DiscountTier{{MinQty: 10, Percent: 5}}},
		{ID: "prod-sabun-01", Name: "Sabun Cuci 800g", Category: "household", CostPriceCents: 98000, SalePriceCents: 126000, Quantity: 60, MinQuantity: 15},
		{ID: "prod-teh-01", Name: "Teh Celup 25s", Category: "beverage", CostPriceCents: 72000, SalePriceCents: 98000, Quantity: 6, MinQuantity: 10},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	clients := []domain.Client{
		{ID: "client-warung-01", Name: "Warung Bu Sari", Phone: "0812-1111-2222"},
		{ID: "client-warung-02", Name: "Toko Pak Dedi", Phone: "0813-3333-4444"},
	}
	for _, c := range clients {
		c.CreatedAt = now
		c.UpdatedAt = now
		s.clients[c.ID] = c
	}

	return s
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func copyProduct(p domain.Product) domain.Product {
	out := p
	out.Discounts = slices.Clone(p.Discounts)
	return out
}

func copyDebtor(d domain.Debtor) domain.Debtor {
	out := d
	if d.LastPayment != nil {
		lp := *d.LastPayment
		out.LastPayment = &lp
	}
	if d.NextPayment != nil {
		np := *d.NextPayment
		out.NextPayment = &np
	}
	out.Client = nil
	return out
}

func copyOrder(o domain.Order) domain.Order {
	out := o
	out.Lines = slices.Clone(o.Lines)
	return out
}

func matchesSearch(needle string, fields ...string) bool {
	if needle == "" {
		return true
	}
	needle = strings.ToLower(needle)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit int, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ---- products ----

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.IsDeleted {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.LowStock && p.Quantity > p.MinQuantity {
			continue
		}
		if !matchesSearch(filter.Search, p.Name, p.Barcode) {
			continue
		}
		products = append(products, copyProduct(p))
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return paginate(products, filter.Limit, filter.Offset), nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.SalePriceCents < 1 || product.CostPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.IsDeleted = false

	s.products[product.ID] = copyProduct(product)
	created := copyProduct(product)
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists || product.IsDeleted {
		return nil, store.ErrNotFound
	}
	out := copyProduct(product)
	return &out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists || existing.IsDeleted {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.SalePriceCents < 1 || product.CostPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = copyProduct(product)
	updated := copyProduct(product)
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists || product.IsDeleted {
		return store.ErrNotFound
	}
	product.IsDeleted = true
	product.UpdatedAt = at
	s.products[id] = product
	return nil
}

// ---- clients ----

func (s *Store) ListClients(_ context.Context, filter domain.ClientFilter) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.IsDeleted {
			continue
		}
		if !matchesSearch(filter.Search, c.Name, c.Phone) {
			continue
		}
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})

	return paginate(clients, filter.Limit, filter.Offset), nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.Name == "" {
		return nil, store.ErrValidation
	}
	if client.ID == "" {
		client.ID = xid.New("client")
	}
	if _, exists := s.clients[client.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	client.DebtCents = 0
	client.IsDeleted = false

	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClientByID(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clients[id]
	if !exists || client.IsDeleted {
		return nil, store.ErrNotFound
	}
	out := client
	return &out, nil
}

// UpdateClientInfo saves name/phone/note only. The debt balance on the
// stored record always wins over whatever the caller passed in.
func (s *Store) UpdateClientInfo(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.clients[client.ID]
	if !exists || existing.IsDeleted {
		return nil, store.ErrNotFound
	}
	if client.Name == "" {
		return nil, store.ErrValidation
	}
	existing.Name = client.Name
	existing.Phone = client.Phone
	existing.Note = client.Note
	existing.UpdatedAt = time.Now().UTC()

	s.clients[client.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) SoftDeleteClient(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clients[id]
	if !exists || client.IsDeleted {
		return store.ErrNotFound
	}
	client.IsDeleted = true
	client.DeletedAt = &at
	client.UpdatedAt = at
	s.clients[id] = client
	return nil
}

func (s *Store) CountOpenDebtors(_ context.Context, clientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, d := range s.debtors {
		if d.IsDeleted || d.ClientID != clientID {
			continue
		}
		if d.CurrentDebtCents > 0 {
			count++
		}
	}
	return count, nil
}

// adjustClientDebt applies a signed delta to a client balance. Callers must
// hold the write lock.
func (s *Store) adjustClientDebt(clientID string, deltaCents int64) error {
	client, exists := s.clients[clientID]
	if !exists || client.IsDeleted {
		return store.ErrNotFound
	}
	client.DebtCents += deltaCents
	client.UpdatedAt = time.Now().UTC()
	s.clients[clientID] = client
	return nil
}

// appendEntry records a ledger entry. Callers must hold the write lock.
func (s *Store) appendEntry(entry domain.LedgerEntry) domain.LedgerEntry {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.ledger[entry.ID] = entry
	s.ledgerOrder = append(s.ledgerOrder, entry.ID)
	return entry
}

// ---- debtors ----

func (s *Store) ListDebtors(_ context.Context, filter domain.DebtorFilter) ([]domain.Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debtors := make([]domain.Debtor, 0, len(s.debtors))
	for _, d := range s.debtors {
		if d.IsDeleted {
			continue
		}
		if filter.ClientID != "" && d.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		out := copyDebtor(d)
		if client, ok := s.clients[d.ClientID]; ok {
			c := client
			out.Client = &c
		}
		debtors = append(debtors, out)
	}
	slices.SortFunc(debtors, func(a, b domain.Debtor) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return paginate(debtors, filter.Limit, filter.Offset), nil
}

func (s *Store) GetDebtorByID(_ context.Context, id string) (*domain.Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debtor, exists := s.debtors[id]
	if !exists || debtor.IsDeleted {
		return nil, store.ErrNotFound
	}
	out := copyDebtor(debtor)
	if client, ok := s.clients[debtor.ClientID]; ok {
		c := client
		out.Client = &c
	}
	return &out, nil
}

func (s *Store) CreateDebt(_ context.Context, debtor domain.Debtor, entry domain.LedgerEntry) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clients[debtor.ClientID]
	if !exists || client.IsDeleted {
		return nil, store.ErrNotFound
	}
	if debtor.CurrentDebtCents < 0 || debtor.InitialDebtCents < 0 {
		return nil, store.ErrValidation
	}
	if debtor.ID == "" {
		debtor.ID = xid.New("debtor")
	}
	now := time.Now().UTC()
	if debtor.InitialDebtDate.IsZero() {
		debtor.InitialDebtDate = now
	}
	debtor.CreatedAt = now
	debtor.UpdatedAt = now
	debtor.TotalPaidCents = 0
	if debtor.Status == "" {
		debtor.Status = domain.DebtorStatusPending
	}

	if err := s.adjustClientDebt(debtor.ClientID, debtor.CurrentDebtCents); err != nil {
		return nil, err
	}
	s.debtors[debtor.ID] = copyDebtor(debtor)

	entry.Type = domain.EntryTypeDebtCreated
	entry.AmountCents = debtor.CurrentDebtCents
	entry.ClientID = debtor.ClientID
	entry.RelatedModel = domain.RelatedModelDebtor
	entry.RelatedID = debtor.ID
	s.appendEntry(entry)

	out := copyDebtor(debtor)
	c := s.clients[debtor.ClientID]
	out.Client = &c
	return &out, nil
}

func (s *Store) PayDebt(_ context.Context, debtorID string, paymentCents int64, paymentType string, next *domain.PaymentPlan, paidAt time.Time, createdBy string) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtors[debtorID]
	if !exists || debtor.IsDeleted {
		return nil, store.ErrNotFound
	}
	if paymentCents <= 0 {
		return nil, store.ErrValidation
	}
	if paymentCents > debtor.CurrentDebtCents {
		return nil, store.ErrOverpayment
	}

	debtor.CurrentDebtCents -= paymentCents
	debtor.TotalPaidCents += paymentCents
	debtor.LastPayment = &domain.PaymentRecord{AmountCents: paymentCents, Date: paidAt}
	if next != nil {
		np := *next
		debtor.NextPayment = &np
	}
	if debtor.CurrentDebtCents == 0 {
		debtor.Status = domain.DebtorStatusPaid
	} else {
		debtor.Status = domain.DebtorStatusPartial
	}
	debtor.UpdatedAt = paidAt

	if err := s.adjustClientDebt(debtor.ClientID, -paymentCents); err != nil {
		return nil, err
	}
	s.debtors[debtorID] = copyDebtor(debtor)

	s.appendEntry(domain.LedgerEntry{
		Type:         domain.EntryTypeDebtPayment,
		AmountCents:  paymentCents,
		PaymentType:  paymentType,
		ClientID:     debtor.ClientID,
		RelatedModel: domain.RelatedModelDebtor,
		RelatedID:    debtor.ID,
		CreatedBy:    createdBy,
		CreatedAt:    paidAt,
	})

	out := copyDebtor(debtor)
	if client, ok := s.clients[debtor.ClientID]; ok {
		c := client
		out.Client = &c
	}
	return &out, nil
}

// UpdateDebtor saves the edited record and then reconciles the client
// balance from scratch: the balance becomes the sum of current debt across
// all non-deleted debtors of that client.
func (s *Store) UpdateDebtor(_ context.Context, debtor domain.Debtor) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.debtors[debtor.ID]
	if !exists || existing.IsDeleted {
		return nil, store.ErrNotFound
	}
	if debtor.CurrentDebtCents < 0 || debtor.InitialDebtCents < 0 {
		return nil, store.ErrValidation
	}
	if !domain.IsValidDebtorStatus(debtor.Status) {
		return nil, store.ErrValidation
	}
	debtor.ClientID = existing.ClientID
	debtor.CreatedAt = existing.CreatedAt
	debtor.TotalPaidCents = existing.TotalPaidCents
	debtor.LastPayment = existing.LastPayment
	debtor.UpdatedAt = time.Now().UTC()
	s.debtors[debtor.ID] = copyDebtor(debtor)

	client, ok := s.clients[debtor.ClientID]
	if !ok || client.IsDeleted {
		return nil, store.ErrNotFound
	}
	var sum int64
	for _, d := range s.debtors {
		if d.IsDeleted || d.ClientID != debtor.ClientID {
			continue
		}
		sum += d.CurrentDebtCents
	}
	client.DebtCents = sum
	client.UpdatedAt = debtor.UpdatedAt
	s.clients[client.ID] = client

	out := copyDebtor(debtor)
	c := s.clients[debtor.ClientID]
	out.Client = &c
	return &out, nil
}

// SoftDeleteDebtor tombstones the debtor and subtracts only that debtor's
// remaining debt from the client balance. Other open debts for the same
// client are untouched.
func (s *Store) SoftDeleteDebtor(_ context.Context, id string, at time.Time) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtors[id]
	if !exists || debtor.IsDeleted {
		return nil, store.ErrNotFound
	}

	if err := s.adjustClientDebt(debtor.ClientID, -debtor.CurrentDebtCents); err != nil {
		return nil, err
	}
	debtor.IsDeleted = true
	debtor.DeletedAt = &at
	debtor.UpdatedAt = at
	s.debtors[id] = copyDebtor(debtor)

	out := copyDebtor(debtor)
	return &out, nil
}

// ---- ledger ----

func (s *Store) ListLedgerEntries(_ context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, len(s.ledgerOrder))
	for i := len(s.ledgerOrder) - 1; i >= 0; i-- {
		entry := s.ledger[s.ledgerOrder[i]]
		if entry.IsDeleted {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.ClientID != "" && entry.ClientID != filter.ClientID {
			continue
		}
		if !filter.From.IsZero() && entry.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !entry.CreatedAt.Before(filter.To) {
			continue
		}
		entries = append(entries, entry)
	}

	return paginate(entries, filter.Limit, filter.Offset), nil
}

func (s *Store) GetLedgerEntryByID(_ context.Context, id string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.ledger[id]
	if !exists || entry.IsDeleted {
		return nil, store.ErrNotFound
	}
	out := entry
	return &out, nil
}

// cashEntryClientDelta is the signed effect of a cash entry on the client
// balance: money coming in reduces what the client owes, money going out
// increases it.
func cashEntryClientDelta(entry domain.LedgerEntry) int64 {
	if entry.ClientID == "" {
		return 0
	}
	switch entry.Type {
	case domain.EntryTypeCashIn:
		return -entry.AmountCents
	case domain.EntryTypeCashOut:
		return entry.AmountCents
	}
	return 0
}

func (s *Store) AppendCashMovement(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Type != domain.EntryTypeCashIn && entry.Type != domain.EntryTypeCashOut {
		return nil, store.ErrValidation
	}
	if entry.AmountCents < 0 {
		return nil, store.ErrValidation
	}
	if entry.ClientID != "" {
		if err := s.adjustClientDebt(entry.ClientID, cashEntryClientDelta(entry)); err != nil {
			return nil, err
		}
	}

	created := s.appendEntry(entry)
	out := created
	return &out, nil
}

func (s *Store) UpdateCashMovement(_ context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.ledger[entry.ID]
	if !exists || old.IsDeleted {
		return nil, store.ErrNotFound
	}
	if old.Type != domain.EntryTypeCashIn && old.Type != domain.EntryTypeCashOut {
		return nil, store.ErrEntryManaged
	}
	if entry.AmountCents < 0 {
		return nil, store.ErrValidation
	}

	// The entry type never changes on edit; only amount, payment type,
	// client and description do.
	entry.Type = old.Type
	entry.CreatedAt = old.CreatedAt
	entry.CreatedBy = old.CreatedBy
	entry.RelatedModel = old.RelatedModel
	entry.RelatedID = old.RelatedID

	// Both balance targets must resolve before either one is touched; a
	// failed edit leaves the entry and every client balance as they were.
	for _, clientID := range []string{old.ClientID, entry.ClientID} {
		if clientID == "" {
			continue
		}
		if client, ok := s.clients[clientID]; !ok || client.IsDeleted {
			return nil, store.ErrNotFound
		}
	}

	if old.ClientID != "" {
		if err := s.adjustClientDebt(old.ClientID, -cashEntryClientDelta(old)); err != nil {
			return nil, err
		}
	}
	if entry.ClientID != "" {
		if err := s.adjustClientDebt(entry.ClientID, cashEntryClientDelta(entry)); err != nil {
			return nil, err
		}
	}

	s.ledger[entry.ID] = entry
	out := entry
	return &out, nil
}

func (s *Store) SoftDeleteLedgerEntry(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.ledger[id]
	if !exists || entry.IsDeleted {
		return store.ErrNotFound
	}
	if entry.Type != domain.EntryTypeCashIn && entry.Type != domain.EntryTypeCashOut {
		return store.ErrEntryManaged
	}
	if entry.ClientID != "" {
		if err := s.adjustClientDebt(entry.ClientID, -cashEntryClientDelta(entry)); err != nil {
			return err
		}
	}
	entry.IsDeleted = true
	entry.DeletedAt = &at
	s.ledger[id] = entry
	return nil
}

// ---- orders ----

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if o.IsDeleted {
			continue
		}
		if filter.ClientID != "" && o.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		orders = append(orders, copyOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})

	return paginate(orders, filter.Limit, filter.Offset), nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists || order.IsDeleted {
		return nil, store.ErrNotFound
	}
	out := copyOrder(order)
	return &out, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order, entry domain.LedgerEntry) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Lines) == 0 {
		return nil, store.ErrValidation
	}
	for _, line := range order.Lines {
		product, exists := s.products[line.ProductID]
		if !exists || product.IsDeleted {
			return nil, store.ErrNotFound
		}
		if product.Quantity < line.Qty {
			return nil, store.ErrInsufficientStock
		}
	}
	if order.DebtAmountCents > 0 {
		client, exists := s.clients[order.ClientID]
		if !exists || client.IsDeleted {
			return nil, store.ErrNotFound
		}
	}

	for _, line := range order.Lines {
		product := s.products[line.ProductID]
		product.Quantity -= line.Qty
		product.UpdatedAt = time.Now().UTC()
		s.products[line.ProductID] = product
	}

	if order.ID == "" {
		order.ID = xid.New("order")
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	s.orders[order.ID] = copyOrder(order)

	entry.Type = domain.EntryTypeOrder
	entry.AmountCents = order.PaidAmountCents
	entry.ClientID = order.ClientID
	entry.RelatedModel = domain.RelatedModelOrder
	entry.RelatedID = order.ID
	s.appendEntry(entry)

	// The credit portion of an order is tracked as a regular debtor, so
	// the client balance stays the sum of open debts.
	if order.DebtAmountCents > 0 {
		debtor := domain.Debtor{
			ID:               xid.New("debtor"),
			ClientID:         order.ClientID,
			OrderID:          order.ID,
			CurrentDebtCents: order.DebtAmountCents,
			InitialDebtCents: order.DebtAmountCents,
			InitialDebtDate:  now,
			Status:           domain.DebtorStatusPending,
			Description:      "order " + order.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		s.debtors[debtor.ID] = debtor
		if err := s.adjustClientDebt(order.ClientID, order.DebtAmountCents); err != nil {
			return nil, err
		}
		s.appendEntry(domain.LedgerEntry{
			Type:         domain.EntryTypeDebtCreated,
			AmountCents:  order.DebtAmountCents,
			PaymentType:  domain.PaymentTypeDebt,
			ClientID:     order.ClientID,
			RelatedModel: domain.RelatedModelDebtor,
			RelatedID:    debtor.ID,
			CreatedBy:    entry.CreatedBy,
			CreatedAt:    now,
		})
	}

	out := copyOrder(order)
	return &out, nil
}

// UpdateOrderStatus cancels a completed order: stock goes back, order-linked
// debtors are tombstoned with their remaining debt taken off the client
// balance, and every ledger entry related to the order or those debtors is
// tombstoned.
func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists || order.IsDeleted {
		return nil, store.ErrNotFound
	}
	if status != domain.OrderStatusCancelled || order.Status != domain.OrderStatusCompleted {
		return nil, store.ErrValidation
	}

	// Collect and validate every balance target first; mutations only start
	// once the whole cancel is known to succeed. A fully-paid order debtor
	// carries no balance, so its client may already be gone.
	var cancelDebtors []string
	for debtorID, debtor := range s.debtors {
		if debtor.IsDeleted || debtor.OrderID != order.ID {
			continue
		}
		if debtor.CurrentDebtCents != 0 {
			client, ok := s.clients[debtor.ClientID]
			if !ok || client.IsDeleted {
				return nil, store.ErrNotFound
			}
		}
		cancelDebtors = append(cancelDebtors, debtorID)
	}

	for _, line := range order.Lines {
		product, ok := s.products[line.ProductID]
		if !ok {
			continue
		}
		product.Quantity += line.Qty
		product.UpdatedAt = at
		s.products[line.ProductID] = product
	}
	related := map[string]bool{order.ID: true}
	for _, debtorID := range cancelDebtors {
		debtor := s.debtors[debtorID]
		if debtor.CurrentDebtCents != 0 {
			if err := s.adjustClientDebt(debtor.ClientID, -debtor.CurrentDebtCents); err != nil {
				return nil, err
			}
		}
		debtor.IsDeleted = true
		debtor.DeletedAt = &at
		debtor.UpdatedAt = at
		s.debtors[debtorID] = debtor
		related[debtorID] = true
	}
	for entryID, entry := range s.ledger {
		if related[entry.RelatedID] && !entry.IsDeleted {
			entry.IsDeleted = true
			entry.DeletedAt = &at
			s.ledger[entryID] = entry
		}
	}

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = at
	s.orders[id] = copyOrder(order)

	out := copyOrder(order)
	return &out, nil
}

// ---- reports ----

func (s *Store) GetDashboardSummary(_ context.Context, from time.Time, to time.Time, now time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DashboardSummary{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}

	for _, id := range s.ledgerOrder {
		entry := s.ledger[id]
		if entry.IsDeleted {
			continue
		}
		inRange := !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to)
		if inRange {
			switch entry.Type {
			case domain.EntryTypeCashIn:
				summary.CashInCents += entry.AmountCents
				summary.CashInCount++
			case domain.EntryTypeCashOut:
				summary.CashOutCents += entry.AmountCents
				summary.CashOutCount++
			case domain.EntryTypeOrder:
				summary.OrdersCents += entry.AmountCents
				summary.OrdersCount++
			}
		}
	}

	for _, o := range s.orders {
		if o.IsDeleted || o.Status != domain.OrderStatusCompleted {
			continue
		}
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		summary.ProfitCents += o.ProfitCents
	}

	for _, d := range s.debtors {
		if d.IsDeleted {
			continue
		}
		summary.ReceivableCents += d.CurrentDebtCents
		if d.CurrentDebtCents > 0 && d.NextPayment != nil && d.NextPayment.DueDate.Before(now) {
			summary.OverdueDebtors++
		}
	}

	for _, p := range s.products {
		if p.IsDeleted {
			continue
		}
		summary.StockCapitalCents += int64(p.Quantity) * p.CostPriceCents
		if p.Quantity <= p.MinQuantity {
			summary.LowStockCount++
		}
	}

	summary.DailyIncome = s.dailyIncomeLocked(now)
	return summary, nil
}

// dailyIncomeLocked builds the fixed trailing 7-day income series ending on
// the day of `now`. Income counts cash-in and order entries.
func (s *Store) dailyIncomeLocked(now time.Time) []domain.DailyIncomePoint {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	points := make([]domain.DailyIncomePoint, 7)
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		day := dayStart.AddDate(0, 0, i-6)
		key := day.Format("2006-01-02")
		points[i] = domain.DailyIncomePoint{Date: key}
		index[key] = i
	}

	for _, id := range s.ledgerOrder {
		entry := s.ledger[id]
		if entry.IsDeleted {
			continue
		}
		if entry.Type != domain.EntryTypeCashIn && entry.Type != domain.EntryTypeOrder {
			continue
		}
		key := entry.CreatedAt.UTC().Format("2006-01-02")
		if i, ok := index[key]; ok {
			points[i].IncomeCents += entry.AmountCents
		}
	}
	return points
}

func (s *Store) GetMonthlyStatistics(_ context.Context, year int) (domain.MonthlyStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.MonthlyStatistics{Year: year}
	for _, id := range s.ledgerOrder {
		entry := s.ledger[id]
		if entry.IsDeleted {
			continue
		}
		created := entry.CreatedAt.UTC()
		if created.Year() != year {
			continue
		}
		month := int(created.Month()) - 1
		switch entry.Type {
		case domain.EntryTypeCashIn:
			stats.CashInCents[month] += entry.AmountCents
		case domain.EntryTypeCashOut:
			stats.CashOutCents[month] += entry.AmountCents
		}
	}
	return stats, nil
}

// ---- users ----

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
