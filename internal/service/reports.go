package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/store"
)

var zeroTime time.Time

// DailyReport summarises one business day on a cash basis: what sales, order
// advances and settlements collected, what expenses paid out, and what the
// day's orders still owe.
func (s *Service) DailyReport(ctx context.Context, date string) (domain.DailyReport, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := s.now().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	} else {
		parsed, err := s.parseDay(date)
		if err != nil {
			return domain.DailyReport{}, err
		}
		day = parsed
	}
	key := cache.DailyReportKey(day.Format("2006-01-02"))

	if cached, ok, err := s.reports.Get(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache read failed")
	} else if ok {
		return *cached, nil
	}

	txs, err := s.repo.ListTransactions(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return domain.DailyReport{}, err
	}
	report := s.summarise(day, txs)

	if err := s.reports.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache write failed")
	}
	return report, nil
}

func (s *Service) summarise(day time.Time, txs []domain.Transaction) domain.DailyReport {
	var (
		sales, advances, settlements, expenses, outstanding decimal.Decimal
		report                                              domain.DailyReport
	)
	byPayment := map[domain.PaymentType]*paymentTotal{}
	collect := func(tx domain.Transaction) {
		total, ok := byPayment[tx.Payment.Type]
		if !ok {
			total = &paymentTotal{}
			byPayment[tx.Payment.Type] = total
		}
		total.transactions++
		total.amount = total.amount.Add(decimal.NewFromFloat(tx.Amount))
	}

	for _, tx := range txs {
		amount := decimal.NewFromFloat(tx.Amount)
		switch tx.Type {
		case domain.TxTypeSale:
			report.Sales++
			sales = sales.Add(amount)
			collect(tx)
		case domain.TxTypeOrder:
			report.Orders++
			advances = advances.Add(amount)
			outstanding = outstanding.Add(decimal.NewFromFloat(tx.Payment.Balance))
			collect(tx)
		case domain.TxTypeSettlement:
			report.Settlements++
			settlements = settlements.Add(amount)
			collect(tx)
		case domain.TxTypeExpense:
			expenses = expenses.Add(amount)
		default:
			s.logger.WithField("transaction_id", tx.ID).Warn("report skipped transaction of unknown type")
		}
	}

	collected := sales.Add(advances).Add(settlements)
	report.Date = day.Format("2006-01-02")
	report.SalesTotal = money(sales)
	report.AdvanceCollected = money(advances)
	report.SettlementTotal = money(settlements)
	report.CashCollected = money(collected)
	report.Expenses = money(expenses)
	report.Net = money(collected.Sub(expenses))
	report.OutstandingBalance = money(outstanding)

	report.ByPayment = make([]domain.DailyReportPayment, 0, len(byPayment))
	for paymentType, total := range byPayment {
		report.ByPayment = append(report.ByPayment, domain.DailyReportPayment{
			PaymentType:  paymentType,
			Transactions: total.transactions,
			Total:        money(total.amount),
		})
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return strings.Compare(string(a.PaymentType), string(b.PaymentType))
	})
	return report
}

type paymentTotal struct {
	transactions int64
	amount       decimal.Decimal
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func (s *Service) invalidateReport(ctx context.Context, at time.Time) {
	key := cache.DailyReportKey(at.In(s.loc).Format("2006-01-02"))
	if err := s.reports.Invalidate(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("report cache invalidate failed")
	}
}

// BuildReceipt renders a stored transaction for a thermal printer.
func (s *Service) BuildReceipt(ctx context.Context, transactionID string) (domain.ReceiptResponse, error) {
	transactionID = strings.TrimPrefix(strings.TrimSpace(transactionID), "#")
	if transactionID == "" {
		return domain.ReceiptResponse{}, store.ErrInvalidInput
	}
	tx, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	lines := s.receiptLines(*tx)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		TransactionID: tx.ID,
		EscposBase64:  base64.StdEncoding.EncodeToString(escpos),
		PreviewText:   strings.Join(lines, "\n"),
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.ID),
	}, nil
}

func (s *Service) receiptLines(tx domain.Transaction) []string {
	lines := []string{
		"Bakery POS",
		"========================",
		"TX: " + tx.ID,
		"Date: " + tx.Date.In(s.loc).Format("2006-01-02 15:04"),
	}
	if tx.Customer != nil {
		lines = append(lines, "Customer: "+strings.TrimSpace(tx.Customer.Name+" "+tx.Customer.Phone))
	}
	if tx.Delivery != nil {
		lines = append(lines, "Pickup: "+strings.TrimSpace(tx.Delivery.Date+" "+tx.Delivery.Time))
	}
	lines = append(lines, "------------------------")

	switch tx.Type {
	case domain.TxTypeSale, domain.TxTypeOrder:
		for _, item := range tx.Items {
			lines = append(lines, fmt.Sprintf("%s x%d", item.Name, item.Qty))
			lines = append(lines, fmt.Sprintf("  %.2f", money(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Qty))))))
			if item.Note != "" {
				lines = append(lines, "  * "+item.Note)
			}
		}
		lines = append(lines,
			"------------------------",
			fmt.Sprintf("Total    : %.2f", tx.TotalValue),
		)
		if tx.Type == domain.TxTypeOrder {
			lines = append(lines,
				fmt.Sprintf("Advance  : %.2f", tx.Payment.Advance),
				fmt.Sprintf("Balance  : %.2f", tx.Payment.Balance),
			)
		}
	case domain.TxTypeSettlement, domain.TxTypeExpense:
		lines = append(lines,
			tx.Description,
			fmt.Sprintf("Amount   : %.2f", tx.Amount),
		)
	}
	lines = append(lines,
		fmt.Sprintf("Paid by  : %s", tx.Payment.Type),
		"========================",
		"Thank you",
		"",
	)
	return lines
}
