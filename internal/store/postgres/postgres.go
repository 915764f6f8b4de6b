package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoku/backend/internal/domain"
	"tokoku/backend/internal/store"
	"tokoku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---- products ----

const productColumns = `id, name, barcode, category, cost_price_cents, sale_price_cents, quantity, min_quantity, discounts, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	var discounts []byte
	if err := row.Scan(&p.ID, &p.Name, &barcode, &p.Category, &p.CostPriceCents, &p.SalePriceCents, &p.Quantity, &p.MinQuantity, &discounts, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.Barcode = barcode.String
	if len(discounts) > 0 {
		if err := json.Unmarshal(discounts, &p.Discounts); err != nil {
			return domain.Product{}, fmt.Errorf("decode discounts for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_deleted = false
	`
	args := make([]any, 0, 4)
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR barcode ILIKE $%d)", len(args), len(args))
	}
	if filter.LowStock {
		query += " AND quantity <= min_quantity"
	}
	query += " ORDER BY category, name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePriceCents < 1 || product.CostPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	discounts, err := marshalOrNull(product.Discounts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, category, cost_price_cents, sale_price_cents, quantity, min_quantity, discounts, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10,$10)
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), product.Category,
		product.CostPriceCents, product.SalePriceCents, product.Quantity, product.MinQuantity, discounts, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND is_deleted = false
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.SalePriceCents < 1 || product.CostPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	discounts, err := marshalOrNull(product.Discounts)
	if err != nil {
		return nil, err
	}

	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, barcode = $3, category = $4, cost_price_cents = $5, sale_price_cents = $6,
		    quantity = $7, min_quantity = $8, discounts = $9, updated_at = $10
		WHERE id = $1 AND is_deleted = false
	`, product.ID, product.Name, nullIfEmpty(product.Barcode), product.Category,
		product.CostPriceCents, product.SalePriceCents, product.Quantity, product.MinQuantity, discounts, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET is_deleted = true, updated_at = $2
		WHERE id = $1 AND is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- clients ----

const clientColumns = `id, name, phone, note, debt_cents, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (domain.Client, error) {
	var c domain.Client
	var phone, note sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &phone, &note, &c.DebtCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return domain.Client{}, err
	}
	c.Phone = phone.String
	c.Note = note.String
	return c, nil
}

func (s *Store) ListClients(ctx context.Context, filter domain.ClientFilter) ([]domain.Client, error) {
	query := `
		SELECT ` + clientColumns + `
		FROM clients
		WHERE is_deleted = false
	`
	args := make([]any, 0, 3)
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" {
		return nil, store.ErrValidation
	}
	if client.ID == "" {
		client.ID = xid.New("client")
	}
	now := time.Now().UTC()
	client.DebtCents = 0
	client.CreatedAt = now
	client.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, phone, note, debt_cents, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,0,false,$5,$5)
	`, client.ID, client.Name, nullIfEmpty(client.Phone), nullIfEmpty(client.Note), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := client
	return &created, nil
}

func (s *Store) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE id = $1 AND is_deleted = false
	`, id)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &client, nil
}

func (s *Store) UpdateClientInfo(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" {
		return nil, store.ErrValidation
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE clients
		SET name = $2, phone = $3, note = $4, updated_at = now()
		WHERE id = $1 AND is_deleted = false
		RETURNING `+clientColumns+`
	`, client.ID, client.Name, nullIfEmpty(client.Phone), nullIfEmpty(client.Note))
	updated, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SoftDeleteClient(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET is_deleted = true, deleted_at = $2, updated_at = $2
		WHERE id = $1 AND is_deleted = false
	`, id, at)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountOpenDebtors(ctx context.Context, clientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM debtors
		WHERE client_id = $1 AND is_deleted = false AND current_debt_cents > 0
	`, clientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ---- debtors ----

const debtorColumns = `id, client_id, order_id, current_debt_cents, initial_debt_cents, initial_debt_date, total_paid_cents, last_payment, next_payment, status, description, created_at, updated_at`

func scanDebtor(row interface{ Scan(...any) error }) (domain.Debtor, error) {
	var d domain.Debtor
	var lastPayment, nextPayment []byte
	var orderID, description sql.NullString
	if err := row.Scan(&d.ID, &d.ClientID, &orderID, &d.CurrentDebtCents, &d.InitialDebtCents, &d.InitialDebtDate,
		&d.TotalPaidCents, &lastPayment, &nextPayment, &d.Status, &description, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return domain.Debtor{}, err
	}
	d.OrderID = orderID.String
	d.Description = description.String
	if len(lastPayment) > 0 {
		d.LastPayment = &domain.PaymentRecord{}
		if err := json.Unmarshal(lastPayment, d.LastPayment); err != nil {
			return domain.Debtor{}, fmt.Errorf("decode last_payment for %s: %w", d.ID, err)
		}
	}
	if len(nextPayment) > 0 {
		d.NextPayment = &domain.PaymentPlan{}
		if err := json.Unmarshal(nextPayment, d.NextPayment); err != nil {
			return domain.Debtor{}, fmt.Errorf("decode next_payment for %s: %w", d.ID, err)
		}
	}
	return d, nil
}

func (s *Store) ListDebtors(ctx context.Context, filter domain.DebtorFilter) ([]domain.Debtor, error) {
	query := `
		SELECT d.id, d.client_id, d.order_id, d.current_debt_cents, d.initial_debt_cents, d.initial_debt_date,
		       d.total_paid_cents, d.last_payment, d.next_payment, d.status, d.description, d.created_at, d.updated_at,
		       c.name, c.phone, c.debt_cents
		FROM debtors d
		JOIN clients c ON c.id = d.client_id
		WHERE d.is_deleted = false
	`
	args := make([]any, 0, 4)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += fmt.Sprintf(" AND d.client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND d.status = $%d", len(args))
	}
	query += " ORDER BY d.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debtors := make([]domain.Debtor, 0, 64)
	for rows.Next() {
		var d domain.Debtor
		var lastPayment, nextPayment []byte
		var orderID, description, clientPhone sql.NullString
		var clientName string
		var clientDebt int64
		if err := rows.Scan(&d.ID, &d.ClientID, &orderID, &d.CurrentDebtCents, &d.InitialDebtCents, &d.InitialDebtDate,
			&d.TotalPaidCents, &lastPayment, &nextPayment, &d.Status, &description, &d.CreatedAt, &d.UpdatedAt,
			&clientName, &clientPhone, &clientDebt); err != nil {
			return nil, err
		}
		d.OrderID = orderID.String
		d.Description = description.String
		if len(lastPayment) > 0 {
			d.LastPayment = &domain.PaymentRecord{}
			if err := json.Unmarshal(lastPayment, d.LastPayment); err != nil {
				return nil, fmt.Errorf("decode last_payment for %s: %w", d.ID, err)
			}
		}
		if len(nextPayment) > 0 {
			d.NextPayment = &domain.PaymentPlan{}
			if err := json.Unmarshal(nextPayment, d.NextPayment); err != nil {
				return nil, fmt.Errorf("decode next_payment for %s: %w", d.ID, err)
			}
		}
		d.Client = &domain.Client{ID: d.ClientID, Name: clientName, Phone: clientPhone.String, DebtCents: clientDebt}
		debtors = append(debtors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return debtors, nil
}

func (s *Store) GetDebtorByID(ctx context.Context, id string) (*domain.Debtor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+debtorColumns+`
		FROM debtors
		WHERE id = $1 AND is_deleted = false
	`, id)
	debtor, err := scanDebtor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	client, err := s.GetClientByID(ctx, debtor.ClientID)
	if err == nil {
		debtor.Client = client
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &debtor, nil
}

func (s *Store) CreateDebt(ctx context.Context, debtor domain.Debtor, entry domain.LedgerEntry) (*domain.Debtor, error) {
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
	nextPayment, err := marshalOrNullPtr(debtor.NextPayment)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE clients
		SET debt_cents = debt_cents + $2, updated_at = $3
		WHERE id = $1 AND is_deleted = false
	`, debtor.ClientID, debtor.CurrentDebtCents, now)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO debtors (id, client_id, order_id, current_debt_cents, initial_debt_cents, initial_debt_date, total_paid_cents,
		                     last_payment, next_payment, status, description, is_deleted, created_at, updated_at)
		VALUES ($1,$2,null,$3,$4,$5,0,null,$6,$7,$8,false,$9,$9)
	`, debtor.ID, debtor.ClientID, debtor.CurrentDebtCents, debtor.InitialDebtCents, debtor.InitialDebtDate,
		nextPayment, debtor.Status, nullIfEmpty(debtor.Description), now)
	if err != nil {
		return nil, err
	}

	if err := insertLedgerEntryTx(ctx, pgTx, domain.LedgerEntry{
		ID:           entry.ID,
		Type:         domain.EntryTypeDebtCreated,
		AmountCents:  debtor.CurrentDebtCents,
		PaymentType:  entry.PaymentType,
		ClientID:     debtor.ClientID,
		RelatedModel: domain.RelatedModelDebtor,
		RelatedID:    debtor.ID,
		Description:  entry.Description,
		CreatedBy:    entry.CreatedBy,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := debtor
	return &created, nil
}

func (s *Store) PayDebt(ctx context.Context, debtorID string, paymentCents int64, paymentType string, next *domain.PaymentPlan, paidAt time.Time, createdBy string) (*domain.Debtor, error) {
	if paymentCents <= 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+debtorColumns+`
		FROM debtors
		WHERE id = $1 AND is_deleted = false
		FOR UPDATE
	`, debtorID)
	debtor, err := scanDebtor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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

	lastPayment, err := marshalOrNullPtr(debtor.LastPayment)
	if err != nil {
		return nil, err
	}
	nextPayment, err := marshalOrNullPtr(debtor.NextPayment)
	if err != nil {
		return nil, err
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE debtors
		SET current_debt_cents = $2, total_paid_cents = $3, last_payment = $4, next_payment = $5, status = $6, updated_at = $7
		WHERE id = $1
	`, debtor.ID, debtor.CurrentDebtCents, debtor.TotalPaidCents, lastPayment, nextPayment, debtor.Status, paidAt)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE clients
		SET debt_cents = debt_cents - $2, updated_at = $3
		WHERE id = $1
	`, debtor.ClientID, paymentCents, paidAt)
	if err != nil {
		return nil, err
	}

	if err := insertLedgerEntryTx(ctx, pgTx, domain.LedgerEntry{
		Type:         domain.EntryTypeDebtPayment,
		AmountCents:  paymentCents,
		PaymentType:  paymentType,
		ClientID:     debtor.ClientID,
		RelatedModel: domain.RelatedModelDebtor,
		RelatedID:    debtor.ID,
		CreatedBy:    createdBy,
		CreatedAt:    paidAt,
	}); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &debtor, nil
}

func (s *Store) UpdateDebtor(ctx context.Context, debtor domain.Debtor) (*domain.Debtor, error) {
	if debtor.CurrentDebtCents < 0 || debtor.InitialDebtCents < 0 {
		return nil, store.ErrValidation
	}
	if !domain.IsValidDebtorStatus(debtor.Status) {
		return nil, store.ErrValidation
	}
	nextPayment, err := marshalOrNullPtr(debtor.NextPayment)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	row := pgTx.QueryRowContext(ctx, `
		UPDATE debtors
		SET current_debt_cents = $2, initial_debt_cents = $3, next_payment = $4, status = $5, description = $6, updated_at = $7
		WHERE id = $1 AND is_deleted = false
		RETURNING `+debtorColumns+`
	`, debtor.ID, debtor.CurrentDebtCents, debtor.InitialDebtCents, nextPayment, debtor.Status, nullIfEmpty(debtor.Description), now)
	updated, err := scanDebtor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// A manual edit leaves the running balance untrustworthy, so it is
	// rebuilt from the client's open debts instead of patched by a delta.
	res, err := pgTx.ExecContext(ctx, `
		UPDATE clients
		SET debt_cents = (
			SELECT COALESCE(SUM(current_debt_cents), 0)
			FROM debtors
			WHERE client_id = $1 AND is_deleted = false
		), updated_at = $2
		WHERE id = $1 AND is_deleted = false
	`, updated.ClientID, now)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) SoftDeleteDebtor(ctx context.Context, id string, at time.Time) (*domain.Debtor, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		UPDATE debtors
		SET is_deleted = true, deleted_at = $2, updated_at = $2
		WHERE id = $1 AND is_deleted = false
		RETURNING `+debtorColumns+`
	`, id, at)
	debtor, err := scanDebtor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// Only this debtor's remaining share comes off the client balance.
	_, err = pgTx.ExecContext(ctx, `
		UPDATE clients
		SET debt_cents = debt_cents - $2, updated_at = $3
		WHERE id = $1
	`, debtor.ClientID, debtor.CurrentDebtCents, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	debtor.IsDeleted = true
	debtor.DeletedAt = &at
	return &debtor, nil
}

// ---- ledger ----

const ledgerColumns = `id, type, amount_cents, payment_type, client_id, related_model, related_id, description, created_by, created_at`

func scanLedgerEntry(row interface{ Scan(...any) error }) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var clientID, relatedModel, relatedID, description, createdBy sql.NullString
	if err := row.Scan(&e.ID, &e.Type, &e.AmountCents, &e.PaymentType, &clientID, &relatedModel, &relatedID, &description, &createdBy, &e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.ClientID = clientID.String
	e.RelatedModel = relatedModel.String
	e.RelatedID = relatedID.String
	e.Description = description.String
	e.CreatedBy = createdBy.String
	return e, nil
}

func insertLedgerEntryTx(ctx context.Context, pgTx *sql.Tx, entry domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, type, amount_cents, payment_type, client_id, related_model, related_id, description, created_by, is_deleted, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,false,$10)
	`, entry.ID, entry.Type, entry.AmountCents, entry.PaymentType, nullIfEmpty(entry.ClientID),
		nullIfEmpty(entry.RelatedModel), nullIfEmpty(entry.RelatedID), nullIfEmpty(entry.Description),
		nullIfEmpty(entry.CreatedBy), entry.CreatedAt)
	return err
}

func (s *Store) ListLedgerEntries(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE is_deleted = false
	`
	args := make([]any, 0, 6)
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 128)
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetLedgerEntryByID(ctx context.Context, id string) (*domain.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = $1 AND is_deleted = false
	`, id)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

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

func applyClientDeltaTx(ctx context.Context, pgTx *sql.Tx, clientID string, deltaCents int64, at time.Time) error {
	res, err := pgTx.ExecContext(ctx, `
		UPDATE clients
		SET debt_cents = debt_cents + $2, updated_at = $3
		WHERE id = $1 AND is_deleted = false
	`, clientID, deltaCents, at)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AppendCashMovement(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.Type != domain.EntryTypeCashIn && entry.Type != domain.EntryTypeCashOut {
		return nil, store.ErrValidation
	}
	if entry.AmountCents < 0 {
		return nil, store.ErrValidation
	}
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if entry.ClientID != "" {
		if err := applyClientDeltaTx(ctx, pgTx, entry.ClientID, cashEntryClientDelta(entry), entry.CreatedAt); err != nil {
			return nil, err
		}
	}
	if err := insertLedgerEntryTx(ctx, pgTx, entry); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) UpdateCashMovement(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.AmountCents < 0 {
		return nil, store.ErrValidation
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = $1 AND is_deleted = false
		FOR UPDATE
	`, entry.ID)
	old, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if old.Type != domain.EntryTypeCashIn && old.Type != domain.EntryTypeCashOut {
		return nil, store.ErrEntryManaged
	}

	entry.Type = old.Type
	entry.CreatedAt = old.CreatedAt
	entry.CreatedBy = old.CreatedBy
	entry.RelatedModel = old.RelatedModel
	entry.RelatedID = old.RelatedID

	now := time.Now().UTC()
	if old.ClientID != "" {
		if err := applyClientDeltaTx(ctx, pgTx, old.ClientID, -cashEntryClientDelta(old), now); err != nil {
			return nil, err
		}
	}
	if entry.ClientID != "" {
		if err := applyClientDeltaTx(ctx, pgTx, entry.ClientID, cashEntryClientDelta(entry), now); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET amount_cents = $2, payment_type = $3, client_id = $4, description = $5
		WHERE id = $1
	`, entry.ID, entry.AmountCents, entry.PaymentType, nullIfEmpty(entry.ClientID), nullIfEmpty(entry.Description))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	updated := entry
	return &updated, nil
}

func (s *Store) SoftDeleteLedgerEntry(ctx context.Context, id string, at time.Time) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE id = $1 AND is_deleted = false
		FOR UPDATE
	`, id)
	entry, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if entry.Type != domain.EntryTypeCashIn && entry.Type != domain.EntryTypeCashOut {
		return store.ErrEntryManaged
	}

	if entry.ClientID != "" {
		if err := applyClientDeltaTx(ctx, pgTx, entry.ClientID, -cashEntryClientDelta(entry), at); err != nil {
			return err
		}
	}
	_, err = pgTx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET is_deleted = true, deleted_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}

	return pgTx.Commit()
}

// ---- orders ----

const orderColumns = `id, client_id, lines, total_amount_cents, paid_amount_cents, debt_amount_cents, profit_cents, payment_type, status, created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	var clientID, createdBy sql.NullString
	var lines []byte
	if err := row.Scan(&o.ID, &clientID, &lines, &o.TotalAmountCents, &o.PaidAmountCents, &o.DebtAmountCents,
		&o.ProfitCents, &o.PaymentType, &o.Status, &createdBy, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.ClientID = clientID.String
	o.CreatedBy = createdBy.String
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &o.Lines); err != nil {
			return domain.Order{}, fmt.Errorf("decode lines for %s: %w", o.ID, err)
		}
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE is_deleted = false
	`
	args := make([]any, 0, 4)
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND is_deleted = false
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order, entry domain.LedgerEntry) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrValidation
	}
	if order.ID == "" {
		order.ID = xid.New("order")
	}
	lines, err := marshalOrNull(order.Lines)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	now := time.Now().UTC()
	for _, line := range order.Lines {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $2, updated_at = $3
			WHERE id = $1 AND is_deleted = false AND quantity >= $2
		`, line.ProductID, line.Qty, now)
		if err != nil {
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			// Either the product is gone or the stock ran out; look
			// again to report the right error.
			var exists bool
			checkErr := pgTx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND is_deleted = false)
			`, line.ProductID).Scan(&exists)
			if checkErr != nil {
				return nil, checkErr
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
	}

	order.CreatedAt = now
	order.UpdatedAt = now
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO orders (id, client_id, lines, total_amount_cents, paid_amount_cents, debt_amount_cents,
		                    profit_cents, payment_type, status, created_by, is_deleted, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11,$11)
	`, order.ID, nullIfEmpty(order.ClientID), lines, order.TotalAmountCents, order.PaidAmountCents,
		order.DebtAmountCents, order.ProfitCents, order.PaymentType, order.Status, nullIfEmpty(order.CreatedBy), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	if err := insertLedgerEntryTx(ctx, pgTx, domain.LedgerEntry{
		ID:           entry.ID,
		Type:         domain.EntryTypeOrder,
		AmountCents:  order.PaidAmountCents,
		PaymentType:  order.PaymentType,
		ClientID:     order.ClientID,
		RelatedModel: domain.RelatedModelOrder,
		RelatedID:    order.ID,
		Description:  entry.Description,
		CreatedBy:    entry.CreatedBy,
		CreatedAt:    now,
	}); err != nil {
		return nil, err
	}

	// The credit portion of an order is tracked as a regular debtor, so
	// the client balance stays the sum of open debts.
	if order.DebtAmountCents > 0 {
		if order.ClientID == "" {
			return nil, store.ErrValidation
		}
		debtorID := xid.New("debtor")
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO debtors (id, client_id, order_id, current_debt_cents, initial_debt_cents, initial_debt_date, total_paid_cents,
			                     last_payment, next_payment, status, description, is_deleted, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$4,$5,0,null,null,$6,$7,false,$5,$5)
		`, debtorID, order.ClientID, order.ID, order.DebtAmountCents, now, domain.DebtorStatusPending, "order "+order.ID)
		if err != nil {
			return nil, err
		}
		if err := applyClientDeltaTx(ctx, pgTx, order.ClientID, order.DebtAmountCents, now); err != nil {
			return nil, err
		}
		if err := insertLedgerEntryTx(ctx, pgTx, domain.LedgerEntry{
			Type:         domain.EntryTypeDebtCreated,
			AmountCents:  order.DebtAmountCents,
			PaymentType:  domain.PaymentTypeDebt,
			ClientID:     order.ClientID,
			RelatedModel: domain.RelatedModelDebtor,
			RelatedID:    debtorID,
			CreatedBy:    entry.CreatedBy,
			CreatedAt:    now,
		}); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := order
	return &created, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Order, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1 AND is_deleted = false
		FOR UPDATE
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.OrderStatusCancelled || order.Status != domain.OrderStatusCompleted {
		return nil, store.ErrValidation
	}

	for _, line := range order.Lines {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $2, updated_at = $3
			WHERE id = $1
		`, line.ProductID, line.Qty, at)
		if err != nil {
			return nil, err
		}
	}
	relatedIDs := []string{order.ID}
	debtorRows, err := pgTx.QueryContext(ctx, `
		SELECT id, client_id, current_debt_cents
		FROM debtors
		WHERE order_id = $1 AND is_deleted = false
		FOR UPDATE
	`, order.ID)
	if err != nil {
		return nil, err
	}
	type openDebt struct {
		id       string
		clientID string
		current  int64
	}
	openDebts := make([]openDebt, 0, 1)
	for debtorRows.Next() {
		var d openDebt
		if err := debtorRows.Scan(&d.id, &d.clientID, &d.current); err != nil {
			_ = debtorRows.Close()
			return nil, err
		}
		openDebts = append(openDebts, d)
	}
	if err := debtorRows.Err(); err != nil {
		_ = debtorRows.Close()
		return nil, err
	}
	_ = debtorRows.Close()

	for _, d := range openDebts {
		// A fully-paid order debtor carries no balance, so its client may
		// already be gone.
		if d.current != 0 {
			if err := applyClientDeltaTx(ctx, pgTx, d.clientID, -d.current, at); err != nil {
				return nil, err
			}
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE debtors
			SET is_deleted = true, deleted_at = $2, updated_at = $2
			WHERE id = $1
		`, d.id, at)
		if err != nil {
			return nil, err
		}
		relatedIDs = append(relatedIDs, d.id)
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET is_deleted = true, deleted_at = $2
		WHERE related_id = ANY($1) AND is_deleted = false
	`, relatedIDs, at)
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = at
	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, order.ID, order.Status, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// ---- reports ----

func (s *Store) GetDashboardSummary(ctx context.Context, from time.Time, to time.Time, now time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{
		From: from.Format("2006-01-02"),
		To:   to.Format("2006-01-02"),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM ledger_entries
		WHERE is_deleted = false AND created_at >= $1 AND created_at < $2
		GROUP BY type
	`, from, to)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entryType string
		var sum, count int64
		if err := rows.Scan(&entryType, &sum, &count); err != nil {
			return domain.DashboardSummary{}, err
		}
		switch entryType {
		case domain.EntryTypeCashIn:
			summary.CashInCents = sum
			summary.CashInCount = count
		case domain.EntryTypeCashOut:
			summary.CashOutCents = sum
			summary.CashOutCount = count
		case domain.EntryTypeOrder:
			summary.OrdersCents = sum
			summary.OrdersCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(profit_cents), 0)
		FROM orders
		WHERE is_deleted = false AND status = $1 AND created_at >= $2 AND created_at < $3
	`, domain.OrderStatusCompleted, from, to).Scan(&summary.ProfitCents)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(current_debt_cents), 0),
		       COUNT(*) FILTER (
		           WHERE current_debt_cents > 0
		             AND next_payment IS NOT NULL
		             AND (next_payment->>'due_date')::timestamptz < $1
		       )
		FROM debtors
		WHERE is_deleted = false
	`, now).Scan(&summary.ReceivableCents, &summary.OverdueDebtors)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity::bigint * cost_price_cents), 0),
		       COUNT(*) FILTER (WHERE quantity <= min_quantity)
		FROM products
		WHERE is_deleted = false
	`).Scan(&summary.StockCapitalCents, &summary.LowStockCount)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	summary.DailyIncome, err = s.dailyIncome(ctx, now)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}

func (s *Store) dailyIncome(ctx context.Context, now time.Time) ([]domain.DailyIncomePoint, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := dayStart.AddDate(0, 0, -6)

	points := make([]domain.DailyIncomePoint, 7)
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		key := windowStart.AddDate(0, 0, i).Format("2006-01-02")
		points[i] = domain.DailyIncomePoint{Date: key}
		index[key] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE is_deleted = false
		  AND type IN ($1, $2)
		  AND created_at >= $3 AND created_at < $4
		GROUP BY 1
	`, domain.EntryTypeCashIn, domain.EntryTypeOrder, windowStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var day string
		var income int64
		if err := rows.Scan(&day, &income); err != nil {
			return nil, err
		}
		if i, ok := index[day]; ok {
			points[i].IncomeCents = income
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) GetMonthlyStatistics(ctx context.Context, year int) (domain.MonthlyStatistics, error) {
	stats := domain.MonthlyStatistics{Year: year}

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	rows, err := s.db.QueryContext(ctx, `
		SELECT EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int, type, COALESCE(SUM(amount_cents), 0)
		FROM ledger_entries
		WHERE is_deleted = false
		  AND type IN ($1, $2)
		  AND created_at >= $3 AND created_at < $4
		GROUP BY 1, 2
	`, domain.EntryTypeCashIn, domain.EntryTypeCashOut, yearStart, yearStart.AddDate(1, 0, 0))
	if err != nil {
		return domain.MonthlyStatistics{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var month int
		var entryType string
		var sum int64
		if err := rows.Scan(&month, &entryType, &sum); err != nil {
			return domain.MonthlyStatistics{}, err
		}
		if month < 1 || month > 12 {
			continue
		}
		switch entryType {
		case domain.EntryTypeCashIn:
			stats.CashInCents[month-1] = sum
		case domain.EntryTypeCashOut:
			stats.CashOutCents[month-1] = sum
		}
	}
	if err := rows.Err(); err != nil {
		return domain.MonthlyStatistics{}, err
	}
	return stats, nil
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- helpers ----

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if strings.TrimSpace(val) == "" {
		return nil
	}
	return val
}

func marshalOrNull[T any](val []T) (any, error) {
	if len(val) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func marshalOrNullPtr[T any](val *T) (any, error) {
	if val == nil {
		return nil, nil
	}
	payload, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	return payload, nil
}
