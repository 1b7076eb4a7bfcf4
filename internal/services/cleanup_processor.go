package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budgetsmart/internal/amqp"
	"budgetsmart/internal/log"
)

// Consumer delivers category deletion events until its context ends.
type Consumer interface {
	ConsumeCategoryDeleted(ctx context.Context, handler amqp.CategoryDeletedHandler) error
}

// CleanupProcessor removes the budgets of deleted categories as deletion
// events arrive.
type CleanupProcessor struct {
	consumer Consumer
	budgets  *BudgetService
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	err     error
}

func NewCleanupProcessor(consumer Consumer, budgets *BudgetService, logger *log.Logger) *CleanupProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &CleanupProcessor{
		consumer: consumer,
		budgets:  budgets,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// Start begins consuming. Returns an error if already running.
func (p *CleanupProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("cleanup processor is already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.running = true
	p.cancel = cancel
	p.doneCh = done
	p.err = nil
	p.mu.Unlock()

	go p.run(runCtx, done)

	p.logger.InfoContext(ctx, "Cleanup processor started")
	return nil
}

// Stop cancels consumption and waits for the in-flight message to settle.
func (p *CleanupProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.doneCh
	p.mu.Unlock()

	cancel()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Cleanup processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Cleanup processor stop timed out")
		return ctx.Err()
	}
}

// Done is closed when the current run ends, either through Stop or because
// the consumer gave up. It is nil before the first Start.
func (p *CleanupProcessor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

// Err returns why the last run ended on its own, or nil if it was stopped.
func (p *CleanupProcessor) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *CleanupProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *CleanupProcessor) run(ctx context.Context, done chan struct{}) {
	err := p.consumer.ConsumeCategoryDeleted(ctx, p.Handle)
	if ctx.Err() != nil {
		err = nil
	} else if err == nil {
		err = errors.New("category deleted consumer stopped unexpectedly")
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "Category deleted consumer exited", log.FieldError, err.Error())
	}

	p.mu.Lock()
	p.running = false
	p.err = err
	p.cancel()
	p.mu.Unlock()
	close(done)
}

// Handle processes one deletion event. Returning an error requeues it.
func (p *CleanupProcessor) Handle(ctx context.Context, msg *amqp.CategoryDeletedMessage) error {
	n, err := p.budgets.DeleteForCategory(ctx, msg.UserID, msg.CategoryID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to remove budgets of deleted category",
			log.FieldOperation, log.OpCleanup,
			log.FieldUserID, msg.UserID,
			log.FieldCategoryID, msg.CategoryID,
			log.FieldError, err.Error())
		return err
	}
	p.logger.InfoContext(ctx, "Removed budgets of deleted category",
		log.FieldOperation, log.OpCleanup,
		log.FieldUserID, msg.UserID,
		log.FieldCategoryID, msg.CategoryID,
		log.FieldCount, n)
	return nil
}
