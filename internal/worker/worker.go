package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/convene-hq/backend/internal/chat"
	"github.com/convene-hq/backend/internal/models"
	"github.com/convene-hq/backend/pkg/queue"
)

// The worker consumes narrow interfaces so a replay can be driven end to end
// without a live database or broker behind it.
type intentApplier interface {
	Apply(ctx context.Context, intent chat.Intent) (*chat.ApplyResult, error)
}

type entityFinder interface {
	GetBySlug(ctx context.Context, tenantID uuid.UUID, entityType models.EntityType, slug string) (*models.Entity, error)
}

type memberWriter interface {
	Upsert(ctx context.Context, tenantID, entityID, userID uuid.UUID, role models.RoomRole) error
	Delete(ctx context.Context, entityID, userID uuid.UUID) error
}

type jobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
	Drop(ctx context.Context, job *queue.Job, reason string) error
}

// SyncProcessor replays membership intents that failed with a transient
// chat-network error. A replay runs the same Apply pipeline as the original
// request; the network's idempotency makes duplicate invites and kicks
// harmless.
type SyncProcessor struct {
	sync     intentApplier
	entities entityFinder
	members  memberWriter
	queue    jobQueue
	logger   *zap.Logger
}

// NewSyncProcessor creates a membership sync retry processor.
func NewSyncProcessor(sync intentApplier, entityRepo entityFinder, memberRepo memberWriter, q jobQueue, logger *zap.Logger) *SyncProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncProcessor{sync: sync, entities: entityRepo, members: memberRepo, queue: q, logger: logger}
}

// Process executes one membership sync job.
func (p *SyncProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeMembershipSync {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.MembershipSyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	intent := payload.Intent

	if _, err := p.sync.Apply(ctx, intent); err != nil {
		return err
	}

	// Mirror the outcome locally, same as the request path does on
	// first-try success.
	entity, err := p.entities.GetBySlug(ctx, intent.TenantID, intent.EntityType, intent.EntitySlug)
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}
	if entity == nil {
		return nil // entity deleted while the job waited; nothing to record
	}
	if intent.Remove() {
		if err := p.members.Delete(ctx, entity.ID, intent.TargetUserID); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
	} else {
		if err := p.members.Upsert(ctx, intent.TenantID, entity.ID, intent.TargetUserID, intent.DesiredRole); err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
	}

	p.logger.Info("membership sync replayed",
		zap.String("job_id", job.ID),
		zap.String("entity", string(intent.EntityType)+"/"+intent.EntitySlug),
	)
	return nil
}

// dispose routes a failed job to the DLQ or back onto the queue and reports
// whether it was requeued.
func (p *SyncProcessor) dispose(ctx context.Context, job *queue.Job, err error) bool {
	switch chat.KindOf(err) {
	case chat.KindNotFound, chat.KindForbidden:
		// Retrying cannot change the answer.
		if dropErr := p.queue.Drop(ctx, job, string(chat.KindOf(err))); dropErr != nil {
			p.logger.Error("dlq push failed", zap.Error(dropErr))
		}
		return false
	default:
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		return true
	}
}

// Run starts the worker loop: dequeue, process, classify failures into
// retry or DLQ.
func (p *SyncProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("membership sync worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if p.dispose(ctx, job, err) {
				time.Sleep(queue.RetryBackoff)
			}
		}
	}
}
