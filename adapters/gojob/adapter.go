package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-quickbooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDRefresh      = "quickbooks.refresh"
	JobIDRefreshSweep = "quickbooks.refresh.sweep"

	ParamOwnerID    = "owner_id"
	ParamLeadWindow = "lead_window"
	ParamLimit      = "limit"

	dedupPolicyDrop = "drop"
)

// RefreshService is the part of core.Service the refresh jobs drive.
type RefreshService interface {
	ForceRefresh(ctx context.Context, ownerID string) (core.ConnectionRecord, error)
	RefreshExpiring(ctx context.Context, req core.RefreshSweepRequest) (core.RefreshSweepResult, error)
}

// AttemptPruner is the optional part of the service a sweep job uses to purge
// authorization attempts that never got a callback.
type AttemptPruner interface {
	PruneExpiredAttempts(ctx context.Context) (int, error)
}

// RetryPolicy bounds redelivery of failed refresh jobs.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
	Backoff         core.ExponentialBackoffScheduler
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// NewRefreshMessage builds a single-owner refresh job. Pending duplicates for
// the same owner are dropped.
func NewRefreshMessage(ownerID string) (*job.ExecutionMessage, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("gojob: owner id is required")
	}
	return &job.ExecutionMessage{
		JobID:          JobIDRefresh,
		ScriptPath:     JobIDRefresh,
		Parameters:     map[string]any{ParamOwnerID: ownerID},
		IdempotencyKey: JobIDRefresh + ":" + ownerID,
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}, nil
}

func NewSweepMessage(req core.RefreshSweepRequest) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDRefreshSweep,
		ScriptPath: JobIDRefreshSweep,
		Parameters: map[string]any{
			ParamLeadWindow: req.LeadWindow.String(),
			ParamLimit:      req.Limit,
		},
		IdempotencyKey: JobIDRefreshSweep,
		DedupPolicy:    job.DeduplicationPolicy(dedupPolicyDrop),
	}
}

type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) *Scheduler {
	return &Scheduler{enqueuer: enqueuer}
}

func (s *Scheduler) EnqueueRefresh(ctx context.Context, ownerID string) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewRefreshMessage(ownerID)
	if err != nil {
		return err
	}
	return s.enqueuer.Enqueue(ctx, msg)
}

func (s *Scheduler) EnqueueSweep(ctx context.Context, req core.RefreshSweepRequest) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return s.enqueuer.Enqueue(ctx, NewSweepMessage(req))
}

// RefreshHandler runs refresh jobs from a queue delivery. Transport and
// internal failures are nacked for redelivery with backoff; anything that
// needs the user to reconnect is acked so it is not retried.
type RefreshHandler struct {
	service RefreshService
	policy  RetryPolicy
	logger  glog.Logger
}

func NewRefreshHandler(service RefreshService, policy RetryPolicy, logger glog.Logger) *RefreshHandler {
	return &RefreshHandler{
		service: service,
		policy:  policy,
		logger:  glog.Ensure(logger),
	}
}

func (h *RefreshHandler) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if h == nil || h.service == nil {
		return fmt.Errorf("gojob: refresh service is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, h.policy.NormalizeAttempt(queue.NackOptions{
			DeadLetter: true,
			Reason:     "missing execution message",
		}, attempt))
	}

	err := h.run(ctx, msg)
	if err == nil {
		return delivery.Ack(ctx)
	}
	if !core.IsRetryableRefreshError(err) {
		h.logger.Warn("quickbooks refresh job dropped",
			"job_id", msg.JobID,
			"attempt", attempt,
			"text_code", textCode(err),
		)
		return delivery.Ack(ctx)
	}
	h.logger.Warn("quickbooks refresh job will retry",
		"job_id", msg.JobID,
		"attempt", attempt,
		"text_code", textCode(err),
	)
	return delivery.Nack(ctx, h.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   h.policy.Backoff.NextDelay(attempt),
		Requeue: true,
		Reason:  textCode(err),
	}, attempt))
}

func (h *RefreshHandler) run(ctx context.Context, msg *job.ExecutionMessage) error {
	switch strings.TrimSpace(msg.JobID) {
	case JobIDRefresh:
		ownerID := strings.TrimSpace(fmt.Sprint(msg.Parameters[ParamOwnerID]))
		if ownerID == "" || msg.Parameters[ParamOwnerID] == nil {
			return core.NewInvalidCallbackError("refresh job has no owner id")
		}
		_, err := h.service.ForceRefresh(ctx, ownerID)
		return err
	case JobIDRefreshSweep:
		req, err := sweepRequest(msg.Parameters)
		if err != nil {
			return err
		}
		result, err := h.service.RefreshExpiring(ctx, req)
		if err != nil {
			return err
		}
		h.logger.Info("quickbooks refresh sweep finished",
			"attempted", result.Attempted,
			"refreshed", result.Refreshed,
		)
		h.pruneAttempts(ctx)
		return nil
	default:
		return fmt.Errorf("gojob: unsupported job id %q", msg.JobID)
	}
}

// pruneAttempts never fails the sweep; a stuck prune is retried next run.
func (h *RefreshHandler) pruneAttempts(ctx context.Context) {
	pruner, ok := h.service.(AttemptPruner)
	if !ok {
		return
	}
	pruned, err := pruner.PruneExpiredAttempts(ctx)
	if err != nil {
		h.logger.Warn("quickbooks attempt prune failed", "text_code", textCode(err))
		return
	}
	if pruned > 0 {
		h.logger.Info("quickbooks expired attempts pruned", "pruned", pruned)
	}
}

// RunSweeps hands a sweep job to the handler every interval until ctx is done.
// Deliveries are in-process, so a nacked sweep simply waits for the next tick.
func (h *RefreshHandler) RunSweeps(ctx context.Context, every time.Duration, req core.RefreshSweepRequest) {
	if h == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempt++
			delivery := &localDelivery{msg: NewSweepMessage(req)}
			if err := h.Handle(ctx, delivery, attempt); err != nil {
				h.logger.Error("quickbooks refresh sweep not handled", "error", err)
			}
			if delivery.acked {
				attempt = 0
			}
		}
	}
}

type localDelivery struct {
	msg   *job.ExecutionMessage
	acked bool
}

func (d *localDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *localDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *localDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

func sweepRequest(params map[string]any) (core.RefreshSweepRequest, error) {
	var req core.RefreshSweepRequest
	switch value := params[ParamLeadWindow].(type) {
	case nil:
	case time.Duration:
		req.LeadWindow = value
	case string:
		if strings.TrimSpace(value) != "" {
			parsed, err := time.ParseDuration(strings.TrimSpace(value))
			if err != nil {
				return req, fmt.Errorf("gojob: invalid lead window %q: %w", value, err)
			}
			req.LeadWindow = parsed
		}
	default:
		return req, fmt.Errorf("gojob: invalid lead window type %T", value)
	}
	switch value := params[ParamLimit].(type) {
	case nil:
	case int:
		req.Limit = value
	case float64:
		req.Limit = int(value)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return req, fmt.Errorf("gojob: invalid limit %q: %w", value, err)
		}
		req.Limit = parsed
	default:
		return req, fmt.Errorf("gojob: invalid limit type %T", value)
	}
	return req, nil
}

func textCode(err error) string {
	for _, code := range []string{
		core.ErrorTransport,
		core.ErrorReauthorizationRequired,
		core.ErrorNotConnected,
		core.ErrorCodec,
		core.ErrorRefreshFailed,
		core.ErrorInternal,
	} {
		if core.IsKind(err, code) {
			return code
		}
	}
	return "unclassified"
}

// LoggingHook reports worker lifecycle events through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("quickbooks job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("quickbooks job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("quickbooks job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("quickbooks job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := []any{
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID)
		if owner, ok := message.Parameters[ParamOwnerID]; ok {
			fields = append(fields, "owner_id", owner)
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "text_code", textCode(event.Err))
	}
	return fields
}

var (
	_ worker.Hook    = (*LoggingHook)(nil)
	_ RefreshService = (*core.Service)(nil)
	_ AttemptPruner  = (*core.Service)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
)
