package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bakerypos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

type Repository interface {
	ListItems(ctx context.Context) ([]domain.InventoryItem, error)
	GetItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	AddItem(ctx context.Context, item domain.InventoryItem) (*domain.InventoryItem, error)
	UpdateItem(ctx context.Context, id string, patch domain.ItemPatch) (*domain.InventoryItem, error)
	DeleteItem(ctx context.Context, id string) error
	DecrementStock(ctx context.Context, adjustments []domain.StockAdjustment) error

	AddTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error)

	UpsertCustomer(ctx context.Context, profile domain.CustomerProfile) error
	ListCustomers(ctx context.Context, limit int) ([]domain.CustomerProfile, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// IDPrefix is the human-facing prefix of a transaction id.
func IDPrefix(t domain.TransactionType) (string, error) {
	switch t {
	case domain.TxTypeSale:
		return "SALE", nil
	case domain.TxTypeOrder:
		return "ORD", nil
	case domain.TxTypeExpense:
		return "EXP", nil
	case domain.TxTypeSettlement:
		return "SET", nil
	default:
		return "", domain.ErrUnknownTransactionType
	}
}

// ValidateTransaction checks what every backend requires before insert.
func ValidateTransaction(tx domain.Transaction) error {
	if _, err := domain.ParseTransactionType(string(tx.Type)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch tx.Type {
	case domain.TxTypeSale, domain.TxTypeOrder:
		if len(tx.Items) == 0 {
			return fmt.Errorf("%w: %s has no items", ErrInvalidInput, tx.Type)
		}
	case domain.TxTypeExpense:
		if tx.Amount <= 0 || strings.TrimSpace(tx.Description) == "" {
			return fmt.Errorf("%w: expense needs amount and description", ErrInvalidInput)
		}
	case domain.TxTypeSettlement:
		if tx.Amount <= 0 || tx.OrderID == "" {
			return fmt.Errorf("%w: settlement needs amount and order", ErrInvalidInput)
		}
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidInput)
	}
	return nil
}

// ValidateItem checks a catalog item before insert or after a patch.
func ValidateItem(item domain.InventoryItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if item.Price < 0 || item.Stock < 0 {
		return fmt.Errorf("%w: price and stock must not be negative", ErrInvalidInput)
	}
	for _, v := range item.Variants {
		if strings.TrimSpace(v.Name) == "" || v.Price < 0 || v.Stock < 0 {
			return fmt.Errorf("%w: invalid variant %q", ErrInvalidInput, v.Name)
		}
	}
	return nil
}

// InRange reports whether t falls in [from, to). Zero bounds are open.
func InRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
