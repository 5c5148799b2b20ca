package domain

import (
	"errors"
	"time"
)

var ErrUnknownTransactionType = errors.New("unknown transaction type")

type TransactionType string

const (
	TxTypeSale       TransactionType = "sale"
	TxTypeOrder      TransactionType = "order"
	TxTypeExpense    TransactionType = "expense"
	TxTypeSettlement TransactionType = "settlement"
)

// ParseTransactionType rejects anything outside the four persisted kinds.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch t := TransactionType(raw); t {
	case TxTypeSale, TxTypeOrder, TxTypeExpense, TxTypeSettlement:
		return t, nil
	default:
		return "", ErrUnknownTransactionType
	}
}

type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReady     OrderStatus = "ready"
)

type PaymentType string

const (
	PaymentCash PaymentType = "cash"
	PaymentUPI  PaymentType = "upi"
)

type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
)

type Mode string

const (
	ModeQuick Mode = "quick"
	ModeOrder Mode = "order"
)

type HandoverMode string

const (
	HandoverNow   HandoverMode = "now"
	HandoverLater HandoverMode = "later"
)

type CartLine struct {
	ID         string  `json:"id"`
	ItemID     string  `json:"item_id"`
	VariantID  string  `json:"variant_id,omitempty"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Qty        int     `json:"qty"`
	Category   string  `json:"category"`
	Stock      int     `json:"stock"`
	TrackStock bool    `json:"track_stock"`
	Note       string  `json:"note,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

type Delivery struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type Payment struct {
	Type    PaymentType   `json:"type"`
	Advance float64       `json:"advance"`
	Balance float64       `json:"balance"`
	Status  PaymentStatus `json:"status"`
}

type Transaction struct {
	ID          string          `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      float64         `json:"amount"`
	TotalValue  float64         `json:"total_value"`
	Items       []CartLine      `json:"items"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Customer    *Customer       `json:"customer"`
	Delivery    *Delivery       `json:"delivery"`
	Payment     Payment         `json:"payment"`
	Status      OrderStatus     `json:"status"`
	OrderID     string          `json:"order_id,omitempty"`
	Category    string          `json:"category,omitempty"`
}

// TransactionPatch carries the mutable parts of a persisted transaction.
type TransactionPatch struct {
	Status  *OrderStatus `json:"status,omitempty"`
	Payment *Payment     `json:"payment,omitempty"`
	Amount  *float64     `json:"amount,omitempty"`
}

type Variant struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

type InventoryItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Category   string    `json:"category"`
	Stock      int       `json:"stock"`
	TrackStock bool      `json:"track_stock"`
	Image      string    `json:"image,omitempty"`
	Variants   []Variant `json:"variants,omitempty"`
}

type ItemPatch struct {
	Name       *string    `json:"name,omitempty"`
	Price      *float64   `json:"price,omitempty"`
	Category   *string    `json:"category,omitempty"`
	Stock      *int       `json:"stock,omitempty"`
	TrackStock *bool      `json:"track_stock,omitempty"`
	Image      *string    `json:"image,omitempty"`
	Variants   *[]Variant `json:"variants,omitempty"`
}

// Apply returns a copy of item with every non-nil patch field written over it.
func (p ItemPatch) Apply(item InventoryItem) InventoryItem {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Stock != nil {
		item.Stock = *p.Stock
	}
	if p.TrackStock != nil {
		item.TrackStock = *p.TrackStock
	}
	if p.Image != nil {
		item.Image = *p.Image
	}
	if p.Variants != nil {
		item.Variants = append([]Variant(nil), (*p.Variants)...)
	}
	return item
}

// StockAdjustment removes Qty from an item, or from one of its variants when
// VariantID is set.
type StockAdjustment struct {
	ItemID    string
	VariantID string
	Qty       int
}

type CustomerProfile struct {
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	Note        string    `json:"note"`
	Orders      int       `json:"orders"`
	LastOrderAt time.Time `json:"last_order_at"`
}

// Draft is the in-progress sale of one terminal session.
type Draft struct {
	Cart     []CartLine    `json:"cart"`
	Customer CustomerDraft `json:"customer"`
	Payment  PaymentDraft  `json:"payment"`
	Delivery DeliveryDraft `json:"delivery"`
	Mode     Mode          `json:"mode"`
	Handover HandoverMode  `json:"handover"`
}

type CustomerDraft struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

// PaymentDraft keeps the advance as typed so a half-entered value survives a reload.
type PaymentDraft struct {
	Type    PaymentType `json:"type"`
	Advance string      `json:"advance"`
}

type DeliveryDraft struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ItemCreateRequest struct {
	Name       string    `json:"name" validate:"required"`
	Price      float64   `json:"price" validate:"gte=0"`
	Category   string    `json:"category"`
	Stock      int       `json:"stock" validate:"gte=0"`
	TrackStock bool      `json:"track_stock"`
	Image      string    `json:"image"`
	Variants   []Variant `json:"variants" validate:"dive"`
}

type VariantCreateRequest struct {
	Value string   `json:"value" validate:"required"`
	Unit  string   `json:"unit" validate:"required"`
	Price *float64 `json:"price,omitempty" validate:"omitempty,gt=0"`
	Stock int      `json:"stock" validate:"gte=0"`
}

type VariantSuggestion struct {
	ItemID    string  `json:"item_id"`
	BaseLabel string  `json:"base_label"`
	Target    string  `json:"target"`
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
}

type ImportSummary struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

type CartAddRequest struct {
	ItemID    string `json:"item_id" validate:"required"`
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty" validate:"gte=0"`
}

type CartLineUpdateRequest struct {
	Delta int     `json:"delta"`
	Note  *string `json:"note,omitempty"`
}

type DraftDetailsRequest struct {
	Mode     *Mode          `json:"mode,omitempty" validate:"omitempty,oneof=quick order"`
	Handover *HandoverMode  `json:"handover,omitempty" validate:"omitempty,oneof=now later"`
	Customer *CustomerDraft `json:"customer,omitempty"`
	Payment  *PaymentDraft  `json:"payment,omitempty"`
	Delivery *DeliveryDraft `json:"delivery,omitempty"`
}

type CheckoutResponse struct {
	Transaction Transaction `json:"transaction"`
	Receipt     string      `json:"receipt_preview"`
}

type OrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending ready completed"`
}

type SettlementRequest struct {
	PaymentType PaymentType `json:"payment_type" validate:"omitempty,oneof=cash upi"`
}

type SettlementResponse struct {
	Order      Transaction `json:"order"`
	Settlement Transaction `json:"settlement"`
}

type ExpenseRequest struct {
	Amount      float64     `json:"amount" validate:"gt=0"`
	Description string      `json:"description" validate:"required"`
	Category    string      `json:"category"`
	PaymentType PaymentType `json:"payment_type" validate:"omitempty,oneof=cash upi"`
}

type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

type DailyReportPayment struct {
	PaymentType  PaymentType `json:"payment_type"`
	Transactions int64       `json:"transactions"`
	Total        float64     `json:"total"`
}

type DailyReport struct {
	Date               string               `json:"date"`
	Sales              int64                `json:"sales"`
	Orders             int64                `json:"orders"`
	Settlements        int64                `json:"settlements"`
	SalesTotal         float64              `json:"sales_total"`
	AdvanceCollected   float64              `json:"advance_collected"`
	SettlementTotal    float64              `json:"settlement_total"`
	CashCollected      float64              `json:"cash_collected"`
	Expenses           float64              `json:"expenses"`
	Net                float64              `json:"net"`
	OutstandingBalance float64              `json:"outstanding_balance"`
	ByPayment          []DailyReportPayment `json:"by_payment"`
}

// ItemPair says how often TargetID shows up in a sale that already has ItemID.
type ItemPair struct {
	ItemID   string  `json:"item_id"`
	TargetID string  `json:"target_id"`
	Affinity float64 `json:"affinity"`
}

type Suggestion struct {
	ItemID     string  `json:"item_id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	ReasonCode string  `json:"reason_code"`
	Confidence float64 `json:"confidence"`
}

type SuggestionPolicy struct {
	Show            bool `json:"show"`
	CooldownSeconds int  `json:"cooldown_seconds"`
}

type SuggestionResponse struct {
	Suggestion *Suggestion      `json:"suggestion,omitempty"`
	Policy     SuggestionPolicy `json:"policy"`
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

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
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

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
