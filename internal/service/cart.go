package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/recommendation"
)

const (
	pairWindow     = 30 * 24 * time.Hour
	pairMinSupport = 2
)

func (s *Service) GetDraft(ctx context.Context, session string) (domain.Draft, error) {
	return s.drafts.Load(ctx, session)
}

func (s *Service) AddToCart(ctx context.Context, session string, req domain.CartAddRequest) (domain.Draft, error) {
	item, err := s.repo.GetItem(ctx, strings.TrimSpace(req.ItemID))
	if err != nil {
		return domain.Draft{}, err
	}
	return s.checkout.Edit(ctx, session, func(draft domain.Draft) (*domain.Draft, error) {
		cart, err := checkout.AddLine(draft.Cart, *item, strings.TrimSpace(req.VariantID), req.Qty)
		if err != nil {
			return nil, err
		}
		draft.Cart = cart
		return &draft, nil
	})
}

// UpdateCartLine applies the note before the quantity change so a line removed
// by the delta does not fail on the note.
func (s *Service) UpdateCartLine(ctx context.Context, session string, lineID string, req domain.CartLineUpdateRequest) (domain.Draft, error) {
	return s.checkout.Edit(ctx, session, func(draft domain.Draft) (*domain.Draft, error) {
		var err error
		cart := draft.Cart
		if req.Note != nil {
			if cart, err = checkout.SetNote(cart, lineID, *req.Note); err != nil {
				return nil, err
			}
		}
		if req.Delta != 0 {
			if cart, err = checkout.AdjustQty(cart, lineID, req.Delta); err != nil {
				return nil, err
			}
		}
		draft.Cart = cart
		return &draft, nil
	})
}

func (s *Service) ClearCart(ctx context.Context, session string) (domain.Draft, error) {
	return s.checkout.Edit(ctx, session, func(draft domain.Draft) (*domain.Draft, error) {
		draft.Cart = []domain.CartLine{}
		return &draft, nil
	})
}

// DiscardDraft forgets everything the session typed.
func (s *Service) DiscardDraft(ctx context.Context, session string) error {
	_, err := s.checkout.Edit(ctx, session, func(domain.Draft) (*domain.Draft, error) {
		return nil, nil
	})
	return err
}

// UpdateDraftDetails overwrites only the sections present in req. The advance
// is kept as typed; it is parsed when the order is derived.
func (s *Service) UpdateDraftDetails(ctx context.Context, session string, req domain.DraftDetailsRequest) (domain.Draft, error) {
	return s.checkout.Edit(ctx, session, func(draft domain.Draft) (*domain.Draft, error) {
		if req.Mode != nil {
			draft.Mode = *req.Mode
		}
		if req.Handover != nil {
			draft.Handover = *req.Handover
		}
		if req.Customer != nil {
			draft.Customer = *req.Customer
		}
		if req.Payment != nil {
			draft.Payment = *req.Payment
		}
		if req.Delivery != nil {
			draft.Delivery = *req.Delivery
		}
		return &draft, nil
	})
}

// Checkout submits the session's draft and returns the stored transaction with
// its receipt preview.
func (s *Service) Checkout(ctx context.Context, session string) (domain.CheckoutResponse, error) {
	tx, err := s.checkout.Submit(ctx, session)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	s.logAudit(ctx, "checkout", "transaction", tx.ID, fmt.Sprintf("type=%s,amount=%.2f,total=%.2f,payment=%s", tx.Type, tx.Amount, tx.TotalValue, tx.Payment.Type))
	s.invalidateReport(ctx, tx.Date)

	return domain.CheckoutResponse{
		Transaction: *tx,
		Receipt:     strings.Join(s.receiptLines(*tx), "\n"),
	}, nil
}

// CheckoutState reports where the session's submit machine is.
func (s *Service) CheckoutState(session string) string {
	return s.checkout.State(session).String()
}

// SuggestForCart offers one item that recent customers bought with what is in
// the cart. prompts is how many suggestions the terminal already showed.
func (s *Service) SuggestForCart(ctx context.Context, session string, prompts int) (domain.SuggestionResponse, error) {
	draft, err := s.drafts.Load(ctx, session)
	if err != nil {
		return domain.SuggestionResponse{}, err
	}
	now := s.now().In(s.loc)
	req := recommendation.Request{Cart: draft.Cart, PromptCount: prompts, At: now}
	return s.suggest.Suggest(ctx, req, func(ctx context.Context) (map[string]domain.InventoryItem, []domain.ItemPair, error) {
		items, err := s.repo.ListItems(ctx)
		if err != nil {
			return nil, nil, err
		}
		txs, err := s.repo.ListTransactions(ctx, now.Add(-pairWindow), zeroTime)
		if err != nil {
			return nil, nil, err
		}
		byID := make(map[string]domain.InventoryItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}
		return byID, recommendation.Pairs(txs, pairMinSupport), nil
	})
}
