package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	itemsByID        map[string]domain.InventoryItem
	transactionsByID map[string]*domain.Transaction
	customersByPhone map[string]domain.CustomerProfile
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
	now              func() time.Time
}

func New() *Store {
	return &Store{
		itemsByID:        make(map[string]domain.InventoryItem),
		transactionsByID: make(map[string]*domain.Transaction),
		customersByPhone: make(map[string]domain.CustomerProfile),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  make(map[string]domain.UserAccount),
		now:              time.Now,
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
// If unset, dev defaults are used with a warning. These accounts never reach
// production, which runs on PostgreSQL.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.WithField("component", "memory-store").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.WithError(err).Fatalf("failed to hash seed password for %s", u.username)
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

// NewSeeded returns a store with a small bakery catalog and the dev accounts.
func NewSeeded() *Store {
	s := New()
	items := []domain.InventoryItem{
		{ID: "ITM-CROISSANT", Name: "Butter Croissant", Price: 60, Category: "Pastry", Stock: 40, TrackStock: true},
		{ID: "ITM-SOURDOUGH", Name: "Sourdough Loaf", Price: 220, Category: "Bread", Stock: 12, TrackStock: true},
		{ID: "ITM-BAGUETTE", Name: "Baguette", Price: 90, Category: "Bread", Stock: 20, TrackStock: true},
		{ID: "ITM-MUFFIN", Name: "Blueberry Muffin", Price: 75, Category: "Pastry", Stock: 24, TrackStock: true},
		{ID: "ITM-COFFEE", Name: "Filter Coffee", Price: 80, Category: "Beverage"},
		{
			ID: "ITM-CHOCO-CAKE", Name: "Chocolate Truffle Cake", Price: 650, Category: "Cakes", TrackStock: true,
			Variants: []domain.Variant{
				{ID: "VAR-CHOCO-1LB", Name: "1 Pound", Price: 650, Stock: 6},
				{ID: "VAR-CHOCO-500G", Name: "500 Gram", Price: 716, Stock: 4},
			},
		},
		{
			ID: "ITM-MILK", Name: "Fresh Milk", Price: 30, Category: "Dairy", TrackStock: true,
			Variants: []domain.Variant{
				{ID: "VAR-MILK-500ML", Name: "500 ml", Price: 30, Stock: 30},
				{ID: "VAR-MILK-1L", Name: "1 Liter", Price: 60, Stock: 20},
			},
		},
	}
	for _, item := range items {
		s.itemsByID[item.ID] = item
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListItems(_ context.Context) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		items = append(items, cloneItem(item))
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return items, nil
}

func (s *Store) GetItem(_ context.Context, id string) (*domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := cloneItem(item)
	return &dup, nil
}

func (s *Store) AddItem(_ context.Context, item domain.InventoryItem) (*domain.InventoryItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := store.ValidateItem(item); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = xid.New("ITM")
	}
	if _, exists := s.itemsByID[item.ID]; exists {
		return nil, store.ErrConflict
	}
	for i := range item.Variants {
		if item.Variants[i].ID == "" {
			item.Variants[i].ID = xid.New("VAR")
		}
	}
	s.itemsByID[item.ID] = cloneItem(item)
	dup := cloneItem(item)
	return &dup, nil
}

func (s *Store) UpdateItem(_ context.Context, id string, patch domain.ItemPatch) (*domain.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.itemsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := patch.Apply(cloneItem(current))
	next.ID = current.ID
	next.Name = strings.TrimSpace(next.Name)
	if err := store.ValidateItem(next); err != nil {
		return nil, err
	}
	for i := range next.Variants {
		if next.Variants[i].ID == "" {
			next.Variants[i].ID = xid.New("VAR")
		}
	}
	s.itemsByID[id] = next
	dup := cloneItem(next)
	return &dup, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.itemsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.itemsByID, id)
	return nil
}

// DecrementStock floors stock at zero. Items deleted since the sale and items
// no longer tracked are skipped.
func (s *Store) DecrementStock(_ context.Context, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, adj := range adjustments {
		item, ok := s.itemsByID[adj.ItemID]
		if !ok || !item.TrackStock || adj.Qty <= 0 {
			continue
		}
		item = cloneItem(item)
		if adj.VariantID != "" {
			for i := range item.Variants {
				if item.Variants[i].ID == adj.VariantID {
					item.Variants[i].Stock = max(item.Variants[i].Stock-adj.Qty, 0)
				}
			}
		} else {
			item.Stock = max(item.Stock-adj.Qty, 0)
		}
		s.itemsByID[item.ID] = item
	}
	return nil
}

func (s *Store) AddTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if err := store.ValidateTransaction(tx); err != nil {
		return nil, err
	}
	prefix, err := store.IDPrefix(tx.Type)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = xid.New(prefix)
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrConflict
	}
	s.transactionsByID[tx.ID] = cloneTransaction(&tx)
	return cloneTransaction(&tx), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next := cloneTransaction(tx)
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Payment != nil {
		next.Payment = *patch.Payment
	}
	if patch.Amount != nil {
		next.Amount = *patch.Amount
	}
	s.transactionsByID[id] = next
	return cloneTransaction(next), nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if !store.InRange(tx.Date, from, to) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.Date.Equal(b.Date) {
			return cmpString(b.ID, a.ID)
		}
		return b.Date.Compare(a.Date)
	})
	return result, nil
}

func (s *Store) UpsertCustomer(_ context.Context, profile domain.CustomerProfile) error {
	if strings.TrimSpace(profile.Phone) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.Orders <= 0 {
		profile.Orders = 1
	}
	current, exists := s.customersByPhone[profile.Phone]
	if !exists {
		s.customersByPhone[profile.Phone] = profile
		return nil
	}
	current.Orders += profile.Orders
	if profile.Name != "" {
		current.Name = profile.Name
	}
	if profile.Note != "" {
		current.Note = profile.Note
	}
	if profile.LastOrderAt.After(current.LastOrderAt) {
		current.LastOrderAt = profile.LastOrderAt
	}
	s.customersByPhone[profile.Phone] = current
	return nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.CustomerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CustomerProfile, 0, len(s.customersByPhone))
	for _, c := range s.customersByPhone {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.CustomerProfile) int {
		if a.LastOrderAt.Equal(b.LastOrderAt) {
			return cmpString(a.Phone, b.Phone)
		}
		return b.LastOrderAt.Compare(a.LastOrderAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("AUD")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if !store.InRange(entry.CreatedAt, from, to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneItem(src domain.InventoryItem) domain.InventoryItem {
	if src.Variants != nil {
		src.Variants = append([]domain.Variant(nil), src.Variants...)
	}
	return src
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = append([]domain.CartLine(nil), src.Items...)
	if src.Customer != nil {
		c := *src.Customer
		dup.Customer = &c
	}
	if src.Delivery != nil {
		d := *src.Delivery
		dup.Delivery = &d
	}
	return &dup
}
