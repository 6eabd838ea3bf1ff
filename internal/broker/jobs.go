package broker

import (
	"context"

	"billing-orders/internal/models"
	"billing-orders/internal/util"
)

// JobQueue enqueues named background jobs onto the jobs topic. Enqueueing is
// fire and forget; retry and failure handling belong to the consumer.
type JobQueue struct {
	producer *Producer
}

// NewJobQueue creates a new job queue
func NewJobQueue(producer *Producer) *JobQueue {
	return &JobQueue{producer: producer}
}

// Enqueue publishes a job, keyed by name so jobs of one kind stay ordered
func (jq *JobQueue) Enqueue(ctx context.Context, name string, args map[string]string) error {
	job := models.Job{
		BaseEvent: models.NewBaseEvent(name),
		Name:      name,
		Args:      args,
	}
	if err := jq.producer.PublishEvent(ctx, name, job); err != nil {
		return err
	}
	util.JobsEnqueuedTotal.WithLabelValues(name).Inc()
	return nil
}
