package services

import (
	"context"
	"fmt"

	"budgetsmart/internal/core"
	"budgetsmart/internal/log"
	"budgetsmart/internal/ports"
)

type TransactionService struct {
	transactions ports.TransactionRepository
	categories   ports.CategoryReader
	logger       *log.Logger
}

func NewTransactionService(transactions ports.TransactionRepository, categories ports.CategoryReader, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		logger:       logger.WithComponent(log.ComponentTxn),
	}
}

// Create records a transaction against an existing category of the user.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	if err := s.check(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	id, err := s.transactions.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t.ID = id
	s.logger.InfoContext(ctx, "Transaction created",
		log.FieldOperation, log.OpCreate,
		log.FieldUserID, t.UserID,
		log.FieldTransactionID, t.ID,
		log.FieldAmountCents, t.Amount.Cents)
	return t, nil
}

// Update fully replaces a transaction owned by t.UserID.
func (s *TransactionService) Update(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if _, err := s.Get(ctx, t.UserID, t.ID); err != nil {
		return core.Transaction{}, err
	}
	if err := s.check(ctx, t); err != nil {
		return core.Transaction{}, err
	}
	if err := s.transactions.UpdateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.transactions.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldUserID, userID,
		log.FieldTransactionID, id)
	return nil
}

// Get returns a transaction of userID; other users' transactions are not found.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := s.transactions.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *TransactionService) check(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return ownedCategory(ctx, s.categories, t.UserID, t.CategoryID)
}
