package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"billing-orders/internal/broker"
	"billing-orders/internal/models"
	"billing-orders/internal/service"
	"billing-orders/internal/store"
	"billing-orders/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// JobWorker consumes the jobs topic and runs each job inside its own unit of
// work. Jobs owned by other services pass through with a log line.
type JobWorker struct {
	consumer *broker.Consumer
	store    *store.Store
	orders   *service.OrderService
	settler  *service.BalanceSettler
}

// NewJobWorker creates a new job worker
func NewJobWorker(
	consumer *broker.Consumer,
	st *store.Store,
	orders *service.OrderService,
	settler *service.BalanceSettler,
) *JobWorker {
	return &JobWorker{
		consumer: consumer,
		store:    st,
		orders:   orders,
		settler:  settler,
	}
}

// Start starts the worker
func (w *JobWorker) Start(ctx context.Context) error {
	log.Println("Starting job worker...")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var job models.Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			log.Printf("Failed to unmarshal job: %v", err)
			return err
		}

		err := w.handleJob(ctx, job)
		status := "ok"
		if err != nil {
			status = "error"
		}
		util.JobsProcessedTotal.WithLabelValues(job.Name, status).Inc()
		return err
	})
}

// Stop stops the worker
func (w *JobWorker) Stop() error {
	log.Println("Stopping job worker...")
	return w.consumer.Close()
}

func (w *JobWorker) handleJob(ctx context.Context, job models.Job) error {
	switch job.Name {
	case models.JobOrderInvoice:
		return w.handleInvoiceJob(ctx, job)
	case models.JobOrderBalance:
		return w.handleBalanceJob(ctx, job)
	case models.JobProductGrantsUpdate:
		return w.handleProductGrantsJob(ctx, job)
	default:
		// Discord and benefit jobs are consumed by their own services.
		log.Printf("Skipping job not handled here: %s", job.Name)
		return nil
	}
}

func (w *JobWorker) handleInvoiceJob(ctx context.Context, job models.Job) error {
	orderID, err := uuid.Parse(job.Args["order_id"])
	if err != nil {
		return fmt.Errorf("invalid order_id in %s job: %w", job.Name, err)
	}

	uow, err := w.store.BeginUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := w.orders.GenerateInvoice(ctx, uow, orderID); err != nil {
		return err
	}
	return uow.Commit()
}

func (w *JobWorker) handleProductGrantsJob(ctx context.Context, job models.Job) error {
	productID, err := uuid.Parse(job.Args["product_id"])
	if err != nil {
		return fmt.Errorf("invalid product_id in %s job: %w", job.Name, err)
	}

	uow, err := w.store.BeginUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := w.orders.UpdateProductBenefitsGrants(ctx, uow, productID); err != nil {
		return err
	}
	return uow.Commit()
}

func (w *JobWorker) handleBalanceJob(ctx context.Context, job models.Job) error {
	orderID, err := uuid.Parse(job.Args["order_id"])
	if err != nil {
		return fmt.Errorf("invalid order_id in %s job: %w", job.Name, err)
	}
	chargeID := job.Args["charge_id"]
	if chargeID == "" {
		return fmt.Errorf("missing charge_id in %s job", job.Name)
	}

	uow, err := w.store.BeginUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	order, err := uow.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%s job references missing order %s", job.Name, orderID)
	}

	if err := w.settler.CreateOrderBalance(ctx, uow, order, chargeID); err != nil {
		// A redelivered job finds the settlement already written. Terminal.
		var alreadyBalanced *service.AlreadyBalancedError
		if errors.As(err, &alreadyBalanced) {
			log.Printf("Order %s already balanced, skipping", orderID)
			return nil
		}
		return err
	}
	return uow.Commit()
}
