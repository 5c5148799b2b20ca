package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/xid"
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type itemRow struct {
	ID         string  `db:"id"`
	Name       string  `db:"name"`
	Price      float64 `db:"price"`
	Category   string  `db:"category"`
	Stock      int     `db:"stock"`
	TrackStock bool    `db:"track_stock"`
	Image      string  `db:"image"`
	Variants   []byte  `db:"variants"`
}

const itemColumns = `id, name, price, category, stock, track_stock, image, variants`

func (r itemRow) toDomain() (domain.InventoryItem, error) {
	item := domain.InventoryItem{
		ID:         r.ID,
		Name:       r.Name,
		Price:      r.Price,
		Category:   r.Category,
		Stock:      r.Stock,
		TrackStock: r.TrackStock,
		Image:      r.Image,
	}
	if len(r.Variants) > 0 {
		if err := json.Unmarshal(r.Variants, &item.Variants); err != nil {
			return domain.InventoryItem{}, errors.Wrapf(err, "decode variants of %s", r.ID)
		}
	}
	if len(item.Variants) == 0 {
		item.Variants = nil
	}
	return item, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows := make([]itemRow, 0, 128)
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+itemColumns+` FROM items ORDER BY category, name`); err != nil {
		return nil, errors.Wrap(err, "list items")
	}
	items := make([]domain.InventoryItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return getItem(ctx, s.db, id, false)
}

func getItem(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.InventoryItem, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var row itemRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get item")
	}
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) AddItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := store.ValidateItem(item); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = xid.New("ITM")
	}
	assignVariantIDs(item.Variants)
	variants, err := marshalVariants(item.Variants)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, price, category, stock, track_stock, image, variants, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, item.ID, item.Name, item.Price, item.Category, item.Stock, item.TrackStock, item.Image, variants)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrap(err, "insert item")
	}
	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.InventoryItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin update item")
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getItem(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	next.ID = current.ID
	next.Name = strings.TrimSpace(next.Name)
	if err := store.ValidateItem(next); err != nil {
		return nil, err
	}
	assignVariantIDs(next.Variants)
	variants, err := marshalVariants(next.Variants)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE items
		SET name = $2, price = $3, category = $4, stock = $5, track_stock = $6, image = $7, variants = $8, updated_at = now()
		WHERE id = $1
	`, next.ID, next.Name, next.Price, next.Category, next.Stock, next.TrackStock, next.Image, variants); err != nil {
		return nil, errors.Wrap(err, "update item")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit update item")
	}
	return &next, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete item")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete item")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DecrementStock floors stock at zero. Rows are locked in id order so two
// concurrent checkouts touching the same items cannot deadlock.
func (s *Store) DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}
	sorted := append([]domain.StockAdjustment(nil), adjustments...)
	slices.SortStableFunc(sorted, func(a, b domain.StockAdjustment) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin decrement stock")
	}
	defer func() { _ = tx.Rollback() }()

	for _, adj := range sorted {
		if adj.Qty <= 0 {
			continue
		}
		if adj.VariantID == "" {
			if _, err := tx.ExecContext(ctx, `
				UPDATE items SET stock = GREATEST(stock - $2, 0), updated_at = now()
				WHERE id = $1 AND track_stock
			`, adj.ItemID, adj.Qty); err != nil {
				return errors.Wrapf(err, "decrement stock of %s", adj.ItemID)
			}
			continue
		}

		item, err := getItem(ctx, tx, adj.ItemID, true)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !item.TrackStock {
			continue
		}
		for i := range item.Variants {
			if item.Variants[i].ID == adj.VariantID {
				item.Variants[i].Stock = max(item.Variants[i].Stock-adj.Qty, 0)
			}
		}
		variants, err := marshalVariants(item.Variants)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE items SET variants = $2, updated_at = now() WHERE id = $1`, item.ID, variants); err != nil {
			return errors.Wrapf(err, "decrement variant stock of %s", adj.ItemID)
		}
	}
	return errors.Wrap(tx.Commit(), "commit decrement stock")
}

type transactionRow struct {
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	Amount      float64        `db:"amount"`
	TotalValue  float64        `db:"total_value"`
	Items       []byte         `db:"items"`
	Date        time.Time      `db:"date"`
	Description string         `db:"description"`
	Customer    []byte         `db:"customer"`
	Delivery    []byte         `db:"delivery"`
	Payment     []byte         `db:"payment"`
	Status      string         `db:"status"`
	OrderID     sql.NullString `db:"order_id"`
	Category    sql.NullString `db:"category"`
}

const transactionColumns = `id, type, amount, total_value, items, date, description, customer, delivery, payment, status, order_id, category`

func (r transactionRow) toDomain() (domain.Transaction, error) {
	txType, err := domain.ParseTransactionType(r.Type)
	if err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "transaction %s", r.ID)
	}
	tx := domain.Transaction{
		ID:          r.ID,
		Type:        txType,
		Amount:      r.Amount,
		TotalValue:  r.TotalValue,
		Date:        r.Date.UTC(),
		Description: r.Description,
		Status:      domain.OrderStatus(r.Status),
		OrderID:     r.OrderID.String,
		Category:    r.Category.String,
	}
	if err := json.Unmarshal(r.Items, &tx.Items); err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "decode items of %s", r.ID)
	}
	if err := json.Unmarshal(r.Payment, &tx.Payment); err != nil {
		return domain.Transaction{}, errors.Wrapf(err, "decode payment of %s", r.ID)
	}
	if len(r.Customer) > 0 {
		if err := json.Unmarshal(r.Customer, &tx.Customer); err != nil {
			return domain.Transaction{}, errors.Wrapf(err, "decode customer of %s", r.ID)
		}
	}
	if len(r.Delivery) > 0 {
		if err := json.Unmarshal(r.Delivery, &tx.Delivery); err != nil {
			return domain.Transaction{}, errors.Wrapf(err, "decode delivery of %s", r.ID)
		}
	}
	return tx, nil
}

func (s *Store) AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}
	prefix, err := store.IDPrefix(tx.Type)
	if err != nil {
		return nil, err
	}
	if tx.ID == "" {
		tx.ID = xid.New(prefix)
	}
	if tx.Items == nil {
		tx.Items = []domain.CartLine{}
	}

	items, err := json.Marshal(tx.Items)
	if err != nil {
		return nil, err
	}
	payment, err := json.Marshal(tx.Payment)
	if err != nil {
		return nil, err
	}
	customer, err := nullableJSON(tx.Customer)
	if err != nil {
		return nil, err
	}
	delivery, err := nullableJSON(tx.Delivery)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, tx.ID, string(tx.Type), tx.Amount, tx.TotalValue, items, tx.Date.UTC(), tx.Description,
		customer, delivery, payment, string(tx.Status), nullIfEmpty(tx.OrderID), nullIfEmpty(tx.Category))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, errors.Wrap(err, "insert transaction")
	}
	created := tx
	return &created, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var row transactionRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "get transaction")
	}
	tx, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	var status, amount any
	if patch.Status != nil {
		status = string(*patch.Status)
	}
	if patch.Amount != nil {
		amount = *patch.Amount
	}
	payment, err := nullableJSON(patch.Payment)
	if err != nil {
		return nil, err
	}

	var row transactionRow
	err = s.db.GetContext(ctx, &row, `
		UPDATE transactions
		SET status = COALESCE($2, status),
		    payment = COALESCE($3::jsonb, payment),
		    amount = COALESCE($4, amount)
		WHERE id = $1
		RETURNING `+transactionColumns, id, status, payment, amount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "update transaction")
	}
	tx, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ($1::timestamptz IS NULL OR date >= $1) AND ($2::timestamptz IS NULL OR date < $2) ORDER BY date DESC, id DESC`
	rows := make([]transactionRow, 0, 256)
	if err := s.db.SelectContext(ctx, &rows, query, nullTime(from), nullTime(to)); err != nil {
		return nil, errors.Wrap(err, "list transactions")
	}
	result := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, profile domain.CustomerProfile) error {
	if strings.TrimSpace(profile.Phone) == "" {
		return store.ErrInvalidInput
	}
	if profile.Orders <= 0 {
		profile.Orders = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (phone, name, note, orders, last_order_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (phone) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			note = COALESCE(NULLIF(EXCLUDED.note, ''), customers.note),
			orders = customers.orders + EXCLUDED.orders,
			last_order_at = GREATEST(customers.last_order_at, EXCLUDED.last_order_at)
	`, profile.Phone, profile.Name, profile.Note, profile.Orders, profile.LastOrderAt.UTC())
	return errors.Wrap(err, "upsert customer")
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.CustomerProfile, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		Phone       string    `db:"phone"`
		Name        string    `db:"name"`
		Note        string    `db:"note"`
		Orders      int       `db:"orders"`
		LastOrderAt time.Time `db:"last_order_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT phone, name, note, orders, last_order_at
		FROM customers
		ORDER BY last_order_at DESC, phone
		LIMIT $1
	`, limit); err != nil {
		return nil, errors.Wrap(err, "list customers")
	}
	result := make([]domain.CustomerProfile, 0, len(rows))
	for _, r := range rows {
		result = append(result, domain.CustomerProfile{Phone: r.Phone, Name: r.Name, Note: r.Note, Orders: r.Orders, LastOrderAt: r.LastOrderAt.UTC()})
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("AUD")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return errors.Wrap(err, "insert audit log")
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []struct {
		ID            string    `db:"id"`
		ActorUsername string    `db:"actor_username"`
		ActorRole     string    `db:"actor_role"`
		Action        string    `db:"action"`
		EntityType    string    `db:"entity_type"`
		EntityID      string    `db:"entity_id"`
		Detail        string    `db:"detail"`
		CreatedAt     time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1) AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, nullTime(from), nullTime(to), limit); err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	result := make([]domain.AuditLog, 0, len(rows))
	for _, r := range rows {
		result = append(result, domain.AuditLog{
			ID:            r.ID,
			ActorUsername: r.ActorUsername,
			ActorRole:     r.ActorRole,
			Action:        r.Action,
			EntityType:    r.EntityType,
			EntityID:      r.EntityID,
			Detail:        r.Detail,
			CreatedAt:     r.CreatedAt.UTC(),
		})
	}
	return result, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []struct {
		Username  string    `db:"username"`
		Password  string    `db:"password_hash"`
		Role      string    `db:"role"`
		Active    bool      `db:"active"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT username, password_hash, role, active, created_at FROM users ORDER BY username`); err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, r := range rows {
		users = append(users, domain.UserAccount{Username: r.Username, Password: r.Password, Role: r.Role, Active: r.Active, CreatedAt: r.CreatedAt.UTC()})
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, password)
	if err != nil {
		return errors.Wrap(err, "update user password")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update user password")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// nullableJSON encodes v, mapping a nil pointer to SQL NULL.
func nullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func marshalVariants(variants []domain.Variant) ([]byte, error) {
	if variants == nil {
		variants = []domain.Variant{}
	}
	return json.Marshal(variants)
}

func assignVariantIDs(variants []domain.Variant) {
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = xid.New("VAR")
		}
	}
}
