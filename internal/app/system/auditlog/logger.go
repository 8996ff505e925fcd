// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/taskhub/internal/app/store/audit"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
// Mode values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap
// only), "off" (disabled).
type Config struct {
	Mode string
}

// Logger records one immutable event per accepted state transition,
// to MongoDB (via audit.Store) and structured logs (via zap).
// Emission is fire-and-forget from the caller's point of view: a store
// failure is logged and never fails the triggering request.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("event_type", event.EventType),
		zap.String("entity_type", event.EntityType),
		zap.Bool("success", event.Success),
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.EntityID != nil {
		fields = append(fields, zap.String("entity_id", event.EntityID.Hex()))
	}
	if event.BeforeStatus != "" {
		fields = append(fields, zap.String("before_status", event.BeforeStatus))
	}
	if event.AfterStatus != "" {
		fields = append(fields, zap.String("after_status", event.AfterStatus))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}
	mode := l.config.Mode
	if mode == "off" {
		return
	}
	if mode == "all" || mode == "log" || mode == "" {
		l.logToZap(event)
	}
	if mode == "all" || mode == "db" || mode == "" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// --- Transition events ---

// TaskCreated logs task creation.
func (l *Logger) TaskCreated(ctx context.Context, actorID primitive.ObjectID, task models.Task) {
	l.Log(ctx, audit.Event{
		ActorID:     &actorID,
		OrgUnitID:   &task.OrgUnitID,
		EventType:   audit.EventTaskCreated,
		EntityType:  audit.EntityTask,
		EntityID:    &task.ID,
		AfterStatus: string(task.Status),
		Success:     true,
	})
}

// TaskAssigned logs assignment of one or more assignees to a task.
func (l *Logger) TaskAssigned(ctx context.Context, actorID primitive.ObjectID, task models.Task, before models.TaskStatus, assignees int) {
	l.Log(ctx, audit.Event{
		ActorID:      &actorID,
		OrgUnitID:    &task.OrgUnitID,
		EventType:    audit.EventTaskAssigned,
		EntityType:   audit.EntityTask,
		EntityID:     &task.ID,
		BeforeStatus: string(before),
		AfterStatus:  string(task.Status),
		Success:      true,
		Details:      map[string]string{"assignees": strconv.Itoa(assignees)},
	})
}

// TaskStatusChanged logs a task-level status transition.
func (l *Logger) TaskStatusChanged(ctx context.Context, actorID, taskID primitive.ObjectID, before, after models.TaskStatus) {
	l.Log(ctx, audit.Event{
		ActorID:      &actorID,
		EventType:    audit.EventTaskStatusChanged,
		EntityType:   audit.EntityTask,
		EntityID:     &taskID,
		BeforeStatus: string(before),
		AfterStatus:  string(after),
		Success:      true,
	})
}

// SubmissionAccepted logs acceptance of a new submission version.
func (l *Logger) SubmissionAccepted(ctx context.Context, actorID primitive.ObjectID, sub models.Submission) {
	l.Log(ctx, audit.Event{
		ActorID:     &actorID,
		EventType:   audit.EventSubmissionAccepted,
		EntityType:  audit.EntitySubmission,
		EntityID:    &sub.ID,
		AfterStatus: string(sub.Status),
		Success:     true,
		Details: map[string]string{
			"version": strconv.Itoa(sub.Version),
			"type":    string(sub.Type),
		},
	})
}

// ApprovalDecided logs completion of an approval step.
func (l *Logger) ApprovalDecided(ctx context.Context, actorID primitive.ObjectID, step models.ApprovalStep) {
	l.Log(ctx, audit.Event{
		ActorID:      &actorID,
		EventType:    audit.EventApprovalDecided,
		EntityType:   audit.EntityApproval,
		EntityID:     &step.ID,
		BeforeStatus: string(models.StepPending),
		AfterStatus:  string(step.Status),
		Success:      true,
		Details: map[string]string{
			"action": string(step.Action),
			"level":  strconv.Itoa(step.Level),
		},
	})
}

// ApprovalForwarded logs reassignment of the current approval level.
func (l *Logger) ApprovalForwarded(ctx context.Context, actorID primitive.ObjectID, step models.ApprovalStep, delegate primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		ActorID:    &actorID,
		EventType:  audit.EventApprovalForwarded,
		EntityType: audit.EntityApproval,
		EntityID:   &step.ID,
		Success:    true,
		Details: map[string]string{
			"level":        strconv.Itoa(step.Level),
			"delegated_to": delegate.Hex(),
		},
	})
}
