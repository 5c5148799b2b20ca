package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/catalog"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/lock"
	"bakerypos/backend/internal/orders"
	"bakerypos/backend/internal/store"
)

func (s *Service) ListOrders(ctx context.Context, q orders.Query) ([]domain.Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, zeroTime, zeroTime)
	if err != nil {
		return nil, err
	}
	if q.Location == nil {
		q.Location = s.loc
	}
	return orders.Filter(txs, q), nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

// UpdateOrderStatus moves an order through pending, ready and completed. A
// completed order stays completed.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus) (domain.Transaction, error) {
	order, err := s.orderByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusReady, domain.OrderStatusCompleted:
	default:
		return domain.Transaction{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidInput, status)
	}
	if order.Status == domain.OrderStatusCompleted && status != domain.OrderStatusCompleted {
		return domain.Transaction{}, fmt.Errorf("%w: order %s is already completed", ErrInvalidTransition, order.ID)
	}
	if order.Status == status {
		return order, nil
	}

	updated, err := s.repo.UpdateTransaction(ctx, order.ID, domain.TransactionPatch{Status: &status})
	if err != nil {
		return domain.Transaction{}, err
	}
	s.logAudit(ctx, "order_status", "transaction", updated.ID, fmt.Sprintf("from=%s,to=%s", order.Status, status))
	return *updated, nil
}

const settleLockTTL = 30 * time.Second

// SettleOrder collects an order's outstanding balance as a settlement
// transaction and marks the order fully paid and completed. The balance is
// read under the order's settle lock so it is collected once.
func (s *Service) SettleOrder(ctx context.Context, id string, paymentType domain.PaymentType) (domain.SettlementResponse, error) {
	id = strings.TrimPrefix(strings.TrimSpace(id), "#")
	lease, err := s.locker.Obtain(ctx, "lock:settle:"+id, settleLockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return domain.SettlementResponse{}, fmt.Errorf("%w: order %s is already being settled", store.ErrConflict, id)
	}
	if err != nil {
		return domain.SettlementResponse{}, fmt.Errorf("obtain settle lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger.WithError(err).WithField("order_id", id).Warn("release settle lock")
		}
	}()

	order, err := s.orderByID(ctx, id)
	if err != nil {
		return domain.SettlementResponse{}, err
	}
	balance := decimal.NewFromFloat(order.Payment.Balance).Round(2)
	if !balance.IsPositive() {
		return domain.SettlementResponse{}, fmt.Errorf("%w: order %s has no balance due", ErrInvalidTransition, order.ID)
	}
	if paymentType == "" {
		paymentType = domain.PaymentCash
	}

	amount := balance.InexactFloat64()
	settlement := domain.Transaction{
		Type:        domain.TxTypeSettlement,
		Amount:      amount,
		TotalValue:  amount,
		Items:       []domain.CartLine{},
		Date:        s.now(),
		Description: fmt.Sprintf("Balance settlement for %s", order.ID),
		Customer:    order.Customer,
		Payment: domain.Payment{
			Type:    paymentType,
			Advance: amount,
			Balance: 0,
			Status:  domain.PaymentPaid,
		},
		Status:  domain.OrderStatusCompleted,
		OrderID: order.ID,
	}
	saved, err := s.repo.AddTransaction(ctx, settlement)
	if err != nil {
		return domain.SettlementResponse{}, err
	}

	completed := domain.OrderStatusCompleted
	paid := order.Payment
	paid.Advance = order.TotalValue
	paid.Balance = 0
	paid.Status = domain.PaymentPaid
	updated, err := s.repo.UpdateTransaction(ctx, order.ID, domain.TransactionPatch{Status: &completed, Payment: &paid})
	if err != nil {
		return domain.SettlementResponse{}, fmt.Errorf("mark order %s paid after settlement %s: %w", order.ID, saved.ID, err)
	}

	s.logAudit(ctx, "order_settle", "transaction", order.ID, fmt.Sprintf("settlement=%s,amount=%.2f,payment=%s", saved.ID, amount, paymentType))
	s.invalidateReport(ctx, saved.Date)
	s.invalidateReport(ctx, order.Date)

	return domain.SettlementResponse{Order: *updated, Settlement: *saved}, nil
}

func (s *Service) RecordExpense(ctx context.Context, req domain.ExpenseRequest) (domain.Transaction, error) {
	amount := decimal.NewFromFloat(req.Amount).Round(2)
	description := strings.TrimSpace(req.Description)
	if !amount.IsPositive() || description == "" {
		return domain.Transaction{}, fmt.Errorf("%w: expense needs a positive amount and a description", store.ErrInvalidInput)
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = catalog.DefaultCategory
	}
	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = domain.PaymentCash
	}

	value := amount.InexactFloat64()
	saved, err := s.repo.AddTransaction(ctx, domain.Transaction{
		Type:        domain.TxTypeExpense,
		Amount:      value,
		TotalValue:  value,
		Items:       []domain.CartLine{},
		Date:        s.now(),
		Description: description,
		Payment:     domain.Payment{Type: paymentType, Advance: value, Status: domain.PaymentPaid},
		Status:      domain.OrderStatusCompleted,
		Category:    category,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "expense_create", "transaction", saved.ID, fmt.Sprintf("amount=%.2f,category=%s", value, category))
	s.invalidateReport(ctx, saved.Date)
	return *saved, nil
}

func (s *Service) orderByID(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Type != domain.TxTypeOrder {
		return domain.Transaction{}, fmt.Errorf("%w: %s is a %s, not an order", store.ErrInvalidInput, tx.ID, tx.Type)
	}
	return tx, nil
}
