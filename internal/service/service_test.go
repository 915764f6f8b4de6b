package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tokoku/backend/internal/cache"
	"tokoku/backend/internal/domain"
	"tokoku/backend/internal/notify"
	"tokoku/backend/internal/store"
	"tokoku/backend/internal/store/memory"
)

func newTestService() (*Service, *notify.Hub) {
	repo := memory.NewSeeded()
	hub := notify.NewHub()
	return New(repo, cache.NoopReportCache{}, hub, 30*time.Second), hub
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})
}

func mustCreateClient(t *testing.T, svc *Service, name string) domain.Client {
	t.Helper()
	client, err := svc.CreateClient(staffCtx(), domain.ClientCreateRequest{Name: name})
	if err != nil {
		t.Fatalf("create client %s: %v", name, err)
	}
	return client
}

func mustCreateDebt(t *testing.T, svc *Service, clientID string, amountCents int64) domain.Debtor {
	t.Helper()
	debtor, err := svc.CreateDebt(staffCtx(), domain.DebtorCreateRequest{
		ClientID:         clientID,
		CurrentDebtCents: amountCents,
	})
	if err != nil {
		t.Fatalf("create debt of %d: %v", amountCents, err)
	}
	return debtor
}

func TestCreateDebtUpdatesClientBalanceAndLedger(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	debtor := mustCreateDebt(t, svc, client.ID, 100000)
	if debtor.Status != domain.DebtorStatusPending {
		t.Fatalf("expected pending status, got %s", debtor.Status)
	}
	if debtor.InitialDebtCents != 100000 || debtor.CurrentDebtCents != 100000 {
		t.Fatalf("unexpected debtor amounts: %+v", debtor)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 100000 {
		t.Fatalf("expected client debt 100000, got %d", refreshed.DebtCents)
	}

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{ClientID: client.ID})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Type != domain.EntryTypeDebtCreated || entry.AmountCents != 100000 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.RelatedModel != domain.RelatedModelDebtor || entry.RelatedID != debtor.ID {
		t.Fatalf("entry not linked to debtor: %+v", entry)
	}
}

func TestCreateDebtAcceptsZeroAmount(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	debtor := mustCreateDebt(t, svc, client.ID, 0)
	if debtor.CurrentDebtCents != 0 || debtor.InitialDebtCents != 0 {
		t.Fatalf("unexpected debtor amounts: %+v", debtor)
	}
	if debtor.Status != domain.DebtorStatusPending {
		t.Fatalf("expected pending status, got %s", debtor.Status)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 0 {
		t.Fatalf("expected client debt 0, got %d", refreshed.DebtCents)
	}
}

func TestPayDebtPartialThenFull(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 100000)

	paid, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{PaymentCents: 40000})
	if err != nil {
		t.Fatalf("pay debt: %v", err)
	}
	if paid.CurrentDebtCents != 60000 || paid.TotalPaidCents != 40000 {
		t.Fatalf("unexpected amounts after partial payment: %+v", paid)
	}
	if paid.Status != domain.DebtorStatusPartial {
		t.Fatalf("expected partial status, got %s", paid.Status)
	}
	if paid.LastPayment == nil || paid.LastPayment.AmountCents != 40000 {
		t.Fatalf("last payment not recorded: %+v", paid.LastPayment)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 60000 {
		t.Fatalf("expected client debt 60000, got %d", refreshed.DebtCents)
	}

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{
		ClientID: client.ID,
		Type:     domain.EntryTypeDebtPayment,
	})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 || entries[0].AmountCents != 40000 {
		t.Fatalf("expected one payment entry of 40000, got %+v", entries)
	}

	settled, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{PaymentCents: 60000})
	if err != nil {
		t.Fatalf("settle debt: %v", err)
	}
	if settled.Status != domain.DebtorStatusPaid || settled.CurrentDebtCents != 0 {
		t.Fatalf("expected settled debtor, got %+v", settled)
	}

	refreshed, err = svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 0 {
		t.Fatalf("expected client debt 0, got %d", refreshed.DebtCents)
	}
}

func TestPayDebtRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 50000)

	_, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{PaymentCents: 999999})
	if !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	// Nothing may change on a rejected payment.
	unchanged, err := svc.GetDebtor(staffCtx(), debtor.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if unchanged.CurrentDebtCents != 50000 || unchanged.TotalPaidCents != 0 {
		t.Fatalf("debtor changed after rejected payment: %+v", unchanged)
	}
	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 50000 {
		t.Fatalf("client balance changed after rejected payment: %d", refreshed.DebtCents)
	}
}

func TestPayDebtRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 50000)

	for _, amount := range []int64{0, -500} {
		_, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{PaymentCents: amount})
		if !errors.Is(err, store.ErrValidation) {
			t.Fatalf("payment of %d: expected ErrValidation, got %v", amount, err)
		}
	}
}

func TestPayDebtRecordsPaymentType(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 50000)

	if _, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{
		PaymentCents: 20000,
		PaymentType:  domain.PaymentTypeCard,
	}); err != nil {
		t.Fatalf("pay debt by card: %v", err)
	}

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{
		ClientID: client.ID,
		Type:     domain.EntryTypeDebtPayment,
	})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 1 || entries[0].PaymentType != domain.PaymentTypeCard {
		t.Fatalf("expected one card payment entry, got %+v", entries)
	}

	// Settling debt on credit makes no sense.
	if _, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{
		PaymentCents: 1000,
		PaymentType:  domain.PaymentTypeDebt,
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for debt payment type, got %v", err)
	}
}

func TestUpdateDebtorReconcilesClientBalance(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	first := mustCreateDebt(t, svc, client.ID, 30000)
	mustCreateDebt(t, svc, client.ID, 20000)

	newAmount := int64(5000)
	_, err := svc.UpdateDebtor(adminCtx(), first.ID, domain.DebtorUpdateRequest{
		CurrentDebtCents: &newAmount,
	})
	if err != nil {
		t.Fatalf("update debtor: %v", err)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 25000 {
		t.Fatalf("expected reconciled balance 25000, got %d", refreshed.DebtCents)
	}
}

func TestDeleteDebtorSubtractsOnlyItsShare(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	first := mustCreateDebt(t, svc, client.ID, 10000)
	second := mustCreateDebt(t, svc, client.ID, 25000)

	if _, err := svc.DeleteDebtor(adminCtx(), first.ID); err != nil {
		t.Fatalf("delete debtor: %v", err)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 25000 {
		t.Fatalf("expected remaining balance 25000, got %d", refreshed.DebtCents)
	}

	remaining, err := svc.GetDebtor(staffCtx(), second.ID)
	if err != nil {
		t.Fatalf("get surviving debtor: %v", err)
	}
	if remaining.CurrentDebtCents != 25000 {
		t.Fatalf("surviving debtor changed: %+v", remaining)
	}

	if _, err := svc.GetDebtor(staffCtx(), first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted debtor to be gone, got %v", err)
	}
}

func TestOverdueStatusIsComputed(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	pastDue := time.Now().UTC().Add(-24 * time.Hour)
	debtor, err := svc.CreateDebt(staffCtx(), domain.DebtorCreateRequest{
		ClientID:         client.ID,
		CurrentDebtCents: 10000,
		NextPayment:      &domain.PaymentPlan{AmountCents: 10000, DueDate: pastDue},
	})
	if err != nil {
		t.Fatalf("create debt: %v", err)
	}

	got, err := svc.GetDebtor(staffCtx(), debtor.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if got.Status != domain.DebtorStatusOverdue {
		t.Fatalf("expected computed overdue status, got %s", got.Status)
	}

	overdue, err := svc.ListDebtors(staffCtx(), domain.DebtorFilter{Status: domain.DebtorStatusOverdue})
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != debtor.ID {
		t.Fatalf("expected overdue list with one debtor, got %+v", overdue)
	}
}

func TestCashMovementValidation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CashIn(staffCtx(), domain.CashMovementRequest{AmountCents: -5})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative amount, got %v", err)
	}

	entry, err := svc.CashIn(staffCtx(), domain.CashMovementRequest{AmountCents: 0, Description: "opening float"})
	if err != nil {
		t.Fatalf("zero amount cash-in should be accepted: %v", err)
	}
	if entry.AmountCents != 0 || entry.Type != domain.EntryTypeCashIn {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestCashMovementAgainstClientMovesBalance(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	mustCreateDebt(t, svc, client.ID, 30000)

	// Money received from the client counts against what they owe.
	entry, err := svc.CashIn(staffCtx(), domain.CashMovementRequest{
		AmountCents: 10000,
		ClientID:    client.ID,
	})
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}

	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 20000 {
		t.Fatalf("expected balance 20000 after cash-in, got %d", refreshed.DebtCents)
	}

	// Editing the amount re-applies the effect with the new value.
	newAmount := int64(4000)
	if _, err := svc.UpdateTransaction(adminCtx(), entry.ID, domain.LedgerEntryUpdateRequest{
		AmountCents: &newAmount,
	}); err != nil {
		t.Fatalf("update transaction: %v", err)
	}
	refreshed, err = svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 26000 {
		t.Fatalf("expected balance 26000 after edit, got %d", refreshed.DebtCents)
	}

	// Deleting the entry reverses it entirely.
	if err := svc.DeleteTransaction(adminCtx(), entry.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	refreshed, err = svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != 30000 {
		t.Fatalf("expected balance restored to 30000, got %d", refreshed.DebtCents)
	}
}

func TestEditCashMovementToMissingClientChangesNothing(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	entry, err := svc.CashIn(staffCtx(), domain.CashMovementRequest{
		AmountCents: 10000,
		ClientID:    client.ID,
	})
	if err != nil {
		t.Fatalf("cash in: %v", err)
	}

	missing := "client-does-not-exist"
	if _, err := svc.UpdateTransaction(adminCtx(), entry.ID, domain.LedgerEntryUpdateRequest{
		ClientID: &missing,
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing client, got %v", err)
	}

	// The rejected edit must not leave a half-applied state behind.
	refreshed, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshed.DebtCents != -10000 {
		t.Fatalf("client balance changed after rejected edit: %d", refreshed.DebtCents)
	}
	unchanged, err := svc.GetTransaction(staffCtx(), entry.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if unchanged.ClientID != client.ID || unchanged.AmountCents != 10000 {
		t.Fatalf("entry changed after rejected edit: %+v", unchanged)
	}
}

func TestManagedLedgerEntriesAreImmutable(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	mustCreateDebt(t, svc, client.ID, 10000)

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{
		ClientID: client.ID,
		Type:     domain.EntryTypeDebtCreated,
	})
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one debt-created entry, got %v (%v)", entries, err)
	}

	amount := int64(999)
	if _, err := svc.UpdateTransaction(adminCtx(), entries[0].ID, domain.LedgerEntryUpdateRequest{
		AmountCents: &amount,
	}); !errors.Is(err, store.ErrEntryManaged) {
		t.Fatalf("expected ErrEntryManaged on edit, got %v", err)
	}
	if err := svc.DeleteTransaction(adminCtx(), entries[0].ID); !errors.Is(err, store.ErrEntryManaged) {
		t.Fatalf("expected ErrEntryManaged on delete, got %v", err)
	}
}

func TestCreateOrderWithDebtPortion(t *testing.T) {
	svc, hub := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Tepung Terigu 1kg",
		Category:       "grocery",
		CostPriceCents: 3000,
		SalePriceCents: 5000,
		Quantity:       10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	events, cancel := hub.Subscribe()
	defer cancel()

	order, err := svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		ClientID:        client.ID,
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 2}},
		PaidAmountCents: 6000,
		DebtAmountCents: 4000,
		PaymentType:     domain.PaymentTypeCash,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.TotalAmountCents != 10000 || order.ProfitCents != 4000 {
		t.Fatalf("unexpected order totals: %+v", order)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed order, got %s", order.Status)
	}

	refreshedProduct, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if refreshedProduct.Quantity != 8 {
		t.Fatalf("expected stock 8 after order, got %d", refreshedProduct.Quantity)
	}

	refreshedClient, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshedClient.DebtCents != 4000 {
		t.Fatalf("expected client debt 4000, got %d", refreshedClient.DebtCents)
	}

	debtors, err := svc.ListDebtors(staffCtx(), domain.DebtorFilter{ClientID: client.ID})
	if err != nil {
		t.Fatalf("list debtors: %v", err)
	}
	if len(debtors) != 1 || debtors[0].OrderID != order.ID || debtors[0].CurrentDebtCents != 4000 {
		t.Fatalf("expected one order-linked debtor of 4000, got %+v", debtors)
	}

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{ClientID: client.ID})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	var orderEntries, debtEntries int
	for _, e := range entries {
		switch e.Type {
		case domain.EntryTypeOrder:
			orderEntries++
			if e.AmountCents != 6000 {
				t.Fatalf("expected order entry of 6000, got %d", e.AmountCents)
			}
		case domain.EntryTypeDebtCreated:
			debtEntries++
			if e.AmountCents != 4000 {
				t.Fatalf("expected debt-created entry of 4000, got %d", e.AmountCents)
			}
		}
	}
	if orderEntries != 1 || debtEntries != 1 {
		t.Fatalf("expected one order and one debt-created entry, got %d/%d", orderEntries, debtEntries)
	}

	select {
	case payload := <-events:
		var event domain.OrderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event.Event != domain.OrderEventCreated || event.Order.ID != order.ID {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatalf("no order.created event received")
	}
}

func TestCancelOrderReversesEverything(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Telur Ayam 1kg",
		Category:       "grocery",
		CostPriceCents: 2200,
		SalePriceCents: 2800,
		Quantity:       20,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	order, err := svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		ClientID:        client.ID,
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 5}},
		PaidAmountCents: 4000,
		DebtAmountCents: 10000,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	cancelled, err := svc.UpdateOrderStatus(staffCtx(), order.ID, domain.OrderStatusRequest{
		Status: domain.OrderStatusCancelled,
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	refreshedProduct, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if refreshedProduct.Quantity != 20 {
		t.Fatalf("expected stock restored to 20, got %d", refreshedProduct.Quantity)
	}

	refreshedClient, err := svc.GetClient(staffCtx(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if refreshedClient.DebtCents != 0 {
		t.Fatalf("expected client debt reversed to 0, got %d", refreshedClient.DebtCents)
	}

	debtors, err := svc.ListDebtors(staffCtx(), domain.DebtorFilter{ClientID: client.ID})
	if err != nil {
		t.Fatalf("list debtors: %v", err)
	}
	if len(debtors) != 0 {
		t.Fatalf("expected order debtor removed, got %+v", debtors)
	}

	entries, err := svc.ListTransactions(staffCtx(), domain.LedgerFilter{ClientID: client.ID})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected order entries tombstoned, got %+v", entries)
	}

	// A cancelled order cannot be cancelled again.
	if _, err := svc.UpdateOrderStatus(staffCtx(), order.ID, domain.OrderStatusRequest{
		Status: domain.OrderStatusCancelled,
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation on double cancel, got %v", err)
	}
}

func TestCancelOrderAfterDebtSettledAndClientDeleted(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Gula Pasir 1kg",
		Category:       "grocery",
		CostPriceCents: 1200,
		SalePriceCents: 1500,
		Quantity:       10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	order, err := svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		ClientID:        client.ID,
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 4}},
		PaidAmountCents: 2000,
		DebtAmountCents: 4000,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	debtors, err := svc.ListDebtors(staffCtx(), domain.DebtorFilter{ClientID: client.ID})
	if err != nil || len(debtors) != 1 {
		t.Fatalf("expected one order debtor, got %v (%v)", debtors, err)
	}
	if _, err := svc.PayDebt(staffCtx(), debtors[0].ID, domain.DebtPaymentRequest{PaymentCents: 4000}); err != nil {
		t.Fatalf("settle order debt: %v", err)
	}
	if err := svc.DeleteClient(adminCtx(), client.ID); err != nil {
		t.Fatalf("delete settled client: %v", err)
	}

	// The settled debtor carries no balance, so cancelling still works with
	// the client gone, and the stock comes back in full.
	if _, err := svc.UpdateOrderStatus(staffCtx(), order.ID, domain.OrderStatusRequest{
		Status: domain.OrderStatusCancelled,
	}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	refreshedProduct, err := svc.GetProduct(staffCtx(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if refreshedProduct.Quantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", refreshedProduct.Quantity)
	}
}

func TestCreateOrderRejectsBadSplitAndStock(t *testing.T) {
	svc, _ := newTestService()

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Garam 500g",
		Category:       "grocery",
		CostPriceCents: 500,
		SalePriceCents: 800,
		Quantity:       3,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 1}},
		PaidAmountCents: 100,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for mismatched split, got %v", err)
	}

	_, err = svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 4}},
		PaidAmountCents: 3200,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestDiscountTierAppliesToOrderLines(t *testing.T) {
	svc, _ := newTestService()

	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           "Kopi Sachet",
		Category:       "beverage",
		CostPriceCents: 800,
		SalePriceCents: 1000,
		Quantity:       50,
		Discounts:      []domain.DiscountTier{{MinQty: 10, Percent: 10}},
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	order, err := svc.CreateOrder(staffCtx(), domain.OrderCreateRequest{
		Lines:           []domain.OrderLineRequest{{ProductID: product.ID, Qty: 10}},
		PaidAmountCents: 9000,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Lines[0].PriceCents != 900 {
		t.Fatalf("expected discounted unit price 900, got %d", order.Lines[0].PriceCents)
	}
	if order.TotalAmountCents != 9000 {
		t.Fatalf("expected total 9000, got %d", order.TotalAmountCents)
	}
}

func TestMonthlyStatisticsZeroYearHasTwelveEmptyBuckets(t *testing.T) {
	svc, _ := newTestService()

	stats, err := svc.MonthlyStatistics(staffCtx(), 2019)
	if err != nil {
		t.Fatalf("monthly statistics: %v", err)
	}
	if stats.Year != 2019 {
		t.Fatalf("expected year 2019, got %d", stats.Year)
	}
	for month := 0; month < 12; month++ {
		if stats.CashInCents[month] != 0 || stats.CashOutCents[month] != 0 {
			t.Fatalf("expected empty month %d, got in=%d out=%d", month+1, stats.CashInCents[month], stats.CashOutCents[month])
		}
	}
}

type countingReportCache struct {
	stored map[string]*domain.DashboardSummary
	gets   int
	sets   int
}

func (c *countingReportCache) Get(_ context.Context, key string) (*domain.DashboardSummary, bool, error) {
	c.gets++
	value, ok := c.stored[key]
	return value, ok, nil
}

func (c *countingReportCache) Set(_ context.Context, key string, value *domain.DashboardSummary, _ time.Duration) error {
	c.sets++
	if c.stored == nil {
		c.stored = make(map[string]*domain.DashboardSummary)
	}
	c.stored[key] = value
	return nil
}

func TestDashboardSummaryUsesReportCache(t *testing.T) {
	reportCache := &countingReportCache{}
	svc := New(memory.NewSeeded(), reportCache, notify.NewHub(), 30*time.Second)

	if _, err := svc.CashIn(staffCtx(), domain.CashMovementRequest{AmountCents: 12000}); err != nil {
		t.Fatalf("cash in: %v", err)
	}
	if _, err := svc.CashOut(staffCtx(), domain.CashMovementRequest{AmountCents: 3000}); err != nil {
		t.Fatalf("cash out: %v", err)
	}

	first, err := svc.DashboardSummary(staffCtx(), "", "")
	if err != nil {
		t.Fatalf("dashboard summary: %v", err)
	}
	if first.CashInCents != 12000 || first.CashInCount != 1 {
		t.Fatalf("unexpected cash-in aggregate: %+v", first)
	}
	if first.CashOutCents != 3000 || first.CashOutCount != 1 {
		t.Fatalf("unexpected cash-out aggregate: %+v", first)
	}
	if len(first.DailyIncome) != 7 {
		t.Fatalf("expected 7 daily income points, got %d", len(first.DailyIncome))
	}
	if first.DailyIncome[6].IncomeCents != 12000 {
		t.Fatalf("expected today's income 12000, got %d", first.DailyIncome[6].IncomeCents)
	}

	second, err := svc.DashboardSummary(staffCtx(), "", "")
	if err != nil {
		t.Fatalf("dashboard summary (cached): %v", err)
	}
	if second.CashInCents != first.CashInCents {
		t.Fatalf("cached summary differs: %+v vs %+v", second, first)
	}
	if reportCache.sets != 1 || reportCache.gets != 2 {
		t.Fatalf("expected 1 set and 2 gets, got %d/%d", reportCache.sets, reportCache.gets)
	}
}

func TestAdminOnlyOperationsRejectStaff(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 10000)

	if _, err := svc.CreateProduct(staffCtx(), domain.ProductCreateRequest{
		Name: "X", Category: "y", SalePriceCents: 100,
	}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for product create, got %v", err)
	}
	amount := int64(5)
	if _, err := svc.UpdateDebtor(staffCtx(), debtor.ID, domain.DebtorUpdateRequest{
		CurrentDebtCents: &amount,
	}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for debtor update, got %v", err)
	}
	if _, err := svc.DeleteDebtor(staffCtx(), debtor.ID); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for debtor delete, got %v", err)
	}
	if err := svc.DeleteClient(staffCtx(), client.ID); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired for client delete, got %v", err)
	}
}

func TestDeleteClientRefusedWhileInDebt(t *testing.T) {
	svc, _ := newTestService()
	client := mustCreateClient(t, svc, "Warung Tes")
	debtor := mustCreateDebt(t, svc, client.ID, 10000)

	if err := svc.DeleteClient(adminCtx(), client.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation while debt open, got %v", err)
	}

	if _, err := svc.PayDebt(staffCtx(), debtor.ID, domain.DebtPaymentRequest{PaymentCents: 10000}); err != nil {
		t.Fatalf("settle debt: %v", err)
	}
	if err := svc.DeleteClient(adminCtx(), client.ID); err != nil {
		t.Fatalf("delete settled client: %v", err)
	}
	if _, err := svc.GetClient(staffCtx(), client.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted client to be gone, got %v", err)
	}
}
