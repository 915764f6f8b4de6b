package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tokoku/backend/internal/cache"
	"tokoku/backend/internal/domain"
	"tokoku/backend/internal/notify"
	"tokoku/backend/internal/store"
)

// ErrAdminRequired is returned by operations reserved for the admin role.
var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	hub       *notify.Hub
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, hub *notify.Hub, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		hub:       hub,
		reportTTL: reportTTL,
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrAdminRequired
	}
	return nil
}

func actorUsername(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "system"
	}
	return actor.Username
}

// ---- products ----

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.SalePriceCents < 1 || req.CostPriceCents < 0 || req.Quantity < 0 || req.MinQuantity < 0 {
		return domain.Product{}, store.ErrValidation
	}
	for _, tier := range req.Discounts {
		if tier.MinQty < 1 || tier.Percent < 0 || tier.Percent > 100 {
			return domain.Product{}, store.ErrValidation
		}
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           req.Name,
		Barcode:        strings.TrimSpace(req.Barcode),
		Category:       req.Category,
		CostPriceCents: req.CostPriceCents,
		SalePriceCents: req.SalePriceCents,
		Quantity:       req.Quantity,
		MinQuantity:    req.MinQuantity,
		Discounts:      req.Discounts,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Category = category
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.CostPriceCents = *req.CostPriceCents
	}
	if req.SalePriceCents != nil {
		if *req.SalePriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.Quantity = *req.Quantity
	}
	if req.MinQuantity != nil {
		if *req.MinQuantity < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.MinQuantity = *req.MinQuantity
	}
	if req.Discounts != nil {
		for _, tier := range *req.Discounts {
			if tier.MinQty < 1 || tier.Percent < 0 || tier.Percent > 100 {
				return domain.Product{}, store.ErrValidation
			}
		}
		updated.Discounts = *req.Discounts
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteProduct(ctx, id, time.Now().UTC())
}

// ---- clients ----

func (s *Service) ListClients(ctx context.Context, filter domain.ClientFilter) ([]domain.Client, error) {
	return s.repo.ListClients(ctx, filter)
}

func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	client, err := s.repo.GetClientByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Client{}, store.ErrValidation
	}

	created, err := s.repo.CreateClient(ctx, domain.Client{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Note:  strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.Client{}, err
	}
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id string, req domain.ClientUpdateRequest) (domain.Client, error) {
	existing, err := s.repo.GetClientByID(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Client{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Note != nil {
		updated.Note = strings.TrimSpace(*req.Note)
	}

	saved, err := s.repo.UpdateClientInfo(ctx, updated)
	if err != nil {
		return domain.Client{}, err
	}
	return *saved, nil
}

// DeleteClient refuses while the client still owes money: the debts have to
// be settled or deleted first.
func (s *Service) DeleteClient(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	client, err := s.repo.GetClientByID(ctx, id)
	if err != nil {
		return err
	}
	if client.DebtCents != 0 {
		return fmt.Errorf("client has outstanding debt: %w", store.ErrValidation)
	}
	open, err := s.repo.CountOpenDebtors(ctx, id)
	if err != nil {
		return err
	}
	if open > 0 {
		return fmt.Errorf("client has open debts: %w", store.ErrValidation)
	}

	return s.repo.SoftDeleteClient(ctx, id, time.Now().UTC())
}

// ---- debtors ----

// presentDebtor overlays the computed overdue status: an unpaid debt whose
// next payment date has passed shows as overdue without being rewritten in
// storage.
func presentDebtor(d domain.Debtor, now time.Time) domain.Debtor {
	if d.CurrentDebtCents > 0 && d.NextPayment != nil && d.NextPayment.DueDate.Before(now) {
		d.Status = domain.DebtorStatusOverdue
	}
	return d
}

func (s *Service) ListDebtors(ctx context.Context, filter domain.DebtorFilter) ([]domain.Debtor, error) {
	// Overdue is computed, so it is filtered here rather than in storage.
	storeFilter := filter
	if filter.Status == domain.DebtorStatusOverdue {
		storeFilter.Status = ""
		storeFilter.Limit = 0
		storeFilter.Offset = 0
	}

	debtors, err := s.repo.ListDebtors(ctx, storeFilter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]domain.Debtor, 0, len(debtors))
	for _, d := range debtors {
		d = presentDebtor(d, now)
		if filter.Status == domain.DebtorStatusOverdue && d.Status != domain.DebtorStatusOverdue {
			continue
		}
		out = append(out, d)
	}
	if filter.Status == domain.DebtorStatusOverdue {
		if filter.Offset > 0 {
			if filter.Offset >= len(out) {
				return []domain.Debtor{}, nil
			}
			out = out[filter.Offset:]
		}
		if filter.Limit > 0 && len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
	}
	return out, nil
}

func (s *Service) GetDebtor(ctx context.Context, id string) (domain.Debtor, error) {
	debtor, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.Debtor{}, err
	}
	return presentDebtor(*debtor, time.Now().UTC()), nil
}

func (s *Service) CreateDebt(ctx context.Context, req domain.DebtorCreateRequest) (domain.Debtor, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" || req.CurrentDebtCents < 0 {
		return domain.Debtor{}, store.ErrValidation
	}
	initial := req.CurrentDebtCents
	if req.InitialDebtCents != nil {
		if *req.InitialDebtCents < 0 {
			return domain.Debtor{}, store.ErrValidation
		}
		initial = *req.InitialDebtCents
	}

	created, err := s.repo.CreateDebt(ctx, domain.Debtor{
		ClientID:         req.ClientID,
		CurrentDebtCents: req.CurrentDebtCents,
		InitialDebtCents: initial,
		NextPayment:      req.NextPayment,
		Status:           domain.DebtorStatusPending,
		Description:      strings.TrimSpace(req.Description),
	}, domain.LedgerEntry{
		PaymentType: domain.PaymentTypeDebt,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actorUsername(ctx),
	})
	if err != nil {
		return domain.Debtor{}, err
	}
	return *created, nil
}

func (s *Service) PayDebt(ctx context.Context, debtorID string, req domain.DebtPaymentRequest) (domain.Debtor, error) {
	if req.PaymentCents <= 0 {
		return domain.Debtor{}, store.ErrValidation
	}
	paymentType := strings.TrimSpace(req.PaymentType)
	if paymentType == "" {
		paymentType = domain.PaymentTypeCash
	}
	// A repayment settles debt, so it cannot itself be on credit.
	if paymentType != domain.PaymentTypeCash && paymentType != domain.PaymentTypeCard {
		return domain.Debtor{}, store.ErrValidation
	}
	paid, err := s.repo.PayDebt(ctx, debtorID, req.PaymentCents, paymentType, req.NextPayment, time.Now().UTC(), actorUsername(ctx))
	if err != nil {
		return domain.Debtor{}, err
	}
	return presentDebtor(*paid, time.Now().UTC()), nil
}

func (s *Service) UpdateDebtor(ctx context.Context, id string, req domain.DebtorUpdateRequest) (domain.Debtor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Debtor{}, err
	}

	existing, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.Debtor{}, err
	}

	updated := *existing
	if req.CurrentDebtCents != nil {
		if *req.CurrentDebtCents < 0 {
			return domain.Debtor{}, store.ErrValidation
		}
		updated.CurrentDebtCents = *req.CurrentDebtCents
	}
	if req.InitialDebtCents != nil {
		if *req.InitialDebtCents < 0 {
			return domain.Debtor{}, store.ErrValidation
		}
		updated.InitialDebtCents = *req.InitialDebtCents
	}
	if req.NextPayment != nil {
		updated.NextPayment = req.NextPayment
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		if !domain.IsValidDebtorStatus(*req.Status) {
			return domain.Debtor{}, store.ErrValidation
		}
		updated.Status = *req.Status
	} else if req.CurrentDebtCents != nil {
		if updated.CurrentDebtCents == 0 {
			updated.Status = domain.DebtorStatusPaid
		} else if updated.TotalPaidCents > 0 {
			updated.Status = domain.DebtorStatusPartial
		}
	}

	saved, err := s.repo.UpdateDebtor(ctx, updated)
	if err != nil {
		return domain.Debtor{}, err
	}
	return presentDebtor(*saved, time.Now().UTC()), nil
}

func (s *Service) DeleteDebtor(ctx context.Context, id string) (domain.Debtor, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Debtor{}, err
	}
	deleted, err := s.repo.SoftDeleteDebtor(ctx, id, time.Now().UTC())
	if err != nil {
		return domain.Debtor{}, err
	}
	return *deleted, nil
}

// ---- transactions ----

func (s *Service) ListTransactions(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, filter)
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.LedgerEntry, error) {
	entry, err := s.repo.GetLedgerEntryByID(ctx, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return *entry, nil
}

func (s *Service) CashIn(ctx context.Context, req domain.CashMovementRequest) (domain.LedgerEntry, error) {
	return s.appendCashMovement(ctx, domain.EntryTypeCashIn, req)
}

func (s *Service) CashOut(ctx context.Context, req domain.CashMovementRequest) (domain.LedgerEntry, error) {
	return s.appendCashMovement(ctx, domain.EntryTypeCashOut, req)
}

// appendCashMovement records a manual cash entry. Zero amounts are allowed
// (placeholder entries), negative ones are not.
func (s *Service) appendCashMovement(ctx context.Context, entryType string, req domain.CashMovementRequest) (domain.LedgerEntry, error) {
	if req.AmountCents < 0 {
		return domain.LedgerEntry{}, store.ErrValidation
	}
	paymentType := strings.TrimSpace(req.PaymentType)
	if paymentType == "" {
		paymentType = domain.PaymentTypeCash
	}
	if !domain.IsValidPaymentType(paymentType) {
		return domain.LedgerEntry{}, store.ErrValidation
	}

	created, err := s.repo.AppendCashMovement(ctx, domain.LedgerEntry{
		Type:        entryType,
		AmountCents: req.AmountCents,
		PaymentType: paymentType,
		ClientID:    strings.TrimSpace(req.ClientID),
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   actorUsername(ctx),
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return *created, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req domain.LedgerEntryUpdateRequest) (domain.LedgerEntry, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.LedgerEntry{}, err
	}

	existing, err := s.repo.GetLedgerEntryByID(ctx, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	updated := *existing
	if req.AmountCents != nil {
		if *req.AmountCents < 0 {
			return domain.LedgerEntry{}, store.ErrValidation
		}
		updated.AmountCents = *req.AmountCents
	}
	if req.PaymentType != nil {
		if !domain.IsValidPaymentType(*req.PaymentType) {
			return domain.LedgerEntry{}, store.ErrValidation
		}
		updated.PaymentType = *req.PaymentType
	}
	if req.ClientID != nil {
		updated.ClientID = strings.TrimSpace(*req.ClientID)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}

	saved, err := s.repo.UpdateCashMovement(ctx, updated)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.SoftDeleteLedgerEntry(ctx, id, time.Now().UTC())
}

// ---- orders ----

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// discountedPriceCents applies the best matching discount tier for the
// ordered quantity to the sale price.
func discountedPriceCents(product domain.Product, qty int) int64 {
	price := product.SalePriceCents
	bestMinQty := 0
	for _, tier := range product.Discounts {
		if qty >= tier.MinQty && tier.MinQty > bestMinQty {
			bestMinQty = tier.MinQty
			discounted := float64(product.SalePriceCents) * (1 - tier.Percent/100)
			if discounted < 0 {
				discounted = 0
			}
			price = int64(discounted)
		}
	}
	return price
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	if len(req.Lines) == 0 {
		return domain.Order{}, store.ErrValidation
	}
	paymentType := strings.TrimSpace(req.PaymentType)
	if paymentType == "" {
		paymentType = domain.PaymentTypeCash
	}
	if !domain.IsValidPaymentType(paymentType) {
		return domain.Order{}, store.ErrValidation
	}
	if req.PaidAmountCents < 0 || req.DebtAmountCents < 0 {
		return domain.Order{}, store.ErrValidation
	}

	var totalCents, profitCents int64
	lines := make([]domain.OrderLine, 0, len(req.Lines))
	for _, lineReq := range req.Lines {
		if lineReq.Qty < 1 {
			return domain.Order{}, store.ErrValidation
		}
		product, err := s.repo.GetProductByID(ctx, lineReq.ProductID)
		if err != nil {
			return domain.Order{}, err
		}

		priceCents := discountedPriceCents(*product, lineReq.Qty)
		if lineReq.PriceCents != nil {
			if *lineReq.PriceCents < 0 {
				return domain.Order{}, store.ErrValidation
			}
			priceCents = *lineReq.PriceCents
		}

		line := domain.OrderLine{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            lineReq.Qty,
			PriceCents:     priceCents,
			CostPriceCents: product.CostPriceCents,
			ProfitCents:    (priceCents - product.CostPriceCents) * int64(lineReq.Qty),
		}
		totalCents += priceCents * int64(lineReq.Qty)
		profitCents += line.ProfitCents
		lines = append(lines, line)
	}

	if req.PaidAmountCents+req.DebtAmountCents != totalCents {
		return domain.Order{}, fmt.Errorf("paid and debt amounts must add up to the order total: %w", store.ErrValidation)
	}
	if req.DebtAmountCents > 0 && strings.TrimSpace(req.ClientID) == "" {
		return domain.Order{}, fmt.Errorf("debt portion requires a client: %w", store.ErrValidation)
	}

	created, err := s.repo.CreateOrder(ctx, domain.Order{
		ClientID:         strings.TrimSpace(req.ClientID),
		Lines:            lines,
		TotalAmountCents: totalCents,
		PaidAmountCents:  req.PaidAmountCents,
		DebtAmountCents:  req.DebtAmountCents,
		ProfitCents:      profitCents,
		PaymentType:      paymentType,
		Status:           domain.OrderStatusCompleted,
		CreatedBy:        actorUsername(ctx),
	}, domain.LedgerEntry{
		PaymentType: paymentType,
		CreatedBy:   actorUsername(ctx),
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastOrder(domain.OrderEventCreated, *created)
	}
	return *created, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusRequest) (domain.Order, error) {
	if req.Status != domain.OrderStatusCancelled {
		return domain.Order{}, fmt.Errorf("only cancellation is supported: %w", store.ErrValidation)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, id, req.Status, time.Now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastOrder(domain.OrderEventUpdated, *updated)
	}
	return *updated, nil
}

// ---- reports ----

// DashboardSummary serves the cached summary when one is fresh enough; cache
// failures degrade to a direct read.
func (s *Service) DashboardSummary(ctx context.Context, fromStr string, toStr string) (domain.DashboardSummary, error) {
	now := time.Now().UTC()

	// Default range is the current calendar month.
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return domain.DashboardSummary{}, store.ErrValidation
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return domain.DashboardSummary{}, store.ErrValidation
		}
		from = parsed
	}
	if !from.Before(to) {
		return domain.DashboardSummary{}, store.ErrValidation
	}

	key := fmt.Sprintf("report:dashboard:%s:%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.GetDashboardSummary(ctx, from, to, now)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	if err := s.reports.Set(ctx, key, &summary, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
	}
	return summary, nil
}

// MonthlyStatistics returns twelve buckets even for years with no activity.
func (s *Service) MonthlyStatistics(ctx context.Context, year int) (domain.MonthlyStatistics, error) {
	if year == 0 {
		year = time.Now().UTC().Year()
	}
	if year < 2000 || year > 2200 {
		return domain.MonthlyStatistics{}, store.ErrValidation
	}
	return s.repo.GetMonthlyStatistics(ctx, year)
}
