package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-shopflow/internal/apperr"
	"github.com/imrishuroy/go-shopflow/internal/logging"
	"github.com/imrishuroy/go-shopflow/internal/orders"
)

// Repairer is the part of the order service the worker drives.
type Repairer interface {
	ApplyFold(ctx context.Context, orderID string) error
	Reconcile(ctx context.Context, shopID string) (*orders.ReconcileResult, error)
}

// Processor consumes aggregate repair messages from SQS.
type Processor struct {
	repairs Repairer
	log     *slog.Logger
}

func NewProcessor(repairs Repairer, log *slog.Logger) *Processor {
	return &Processor{repairs: repairs, log: log}
}

// Handle processes a batch and reports only the retryable failures, so SQS
// redelivers those messages and drops the rest.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		log := p.log.With("message_id", rec.MessageId)
		err := p.processMessage(logging.WithCtx(ctx, log), rec)
		switch {
		case err == nil:
		case retryable(err):
			log.Warn("repair_failed_will_retry", "err", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		default:
			log.Error("repair_dropped", "err", err)
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg orders.RepairMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return apperr.InvalidArgument("worker.processMessage", "invalid message body: %v", err)
	}
	log := logging.FromCtx(ctx).With("kind", msg.Kind, "shop_id", msg.ShopID, "order_id", msg.OrderID)
	log.Info("repair_received", "reason", msg.Reason)

	switch msg.Kind {
	case orders.RepairFold:
		if err := p.repairs.ApplyFold(ctx, msg.OrderID); err != nil {
			return fmt.Errorf("apply fold: %w", err)
		}
	case orders.RepairReconcile:
		res, err := p.repairs.Reconcile(ctx, msg.ShopID)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		log.Info("repair_reconciled", "before", res.Before.String(), "after", res.After.String(), "orders", res.Orders)
	default:
		return apperr.InvalidArgument("worker.processMessage", "unknown repair kind %q", msg.Kind)
	}
	return nil
}

// retryable reports whether redelivery could succeed. Malformed messages and
// missing orders never will.
func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument, apperr.KindNotFound:
		return false
	}
	return true
}
