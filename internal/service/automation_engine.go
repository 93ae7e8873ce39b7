package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/observability"
	"github.com/kursadbilgin/shiptrack/internal/provider"
	"github.com/kursadbilgin/shiptrack/internal/ratelimit"
	"github.com/kursadbilgin/shiptrack/internal/render"
	"github.com/kursadbilgin/shiptrack/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize    = 50
	defaultBatchBudget  = 50 * time.Second
	defaultScanPageSize = 200
	defaultSendTimeout  = 30 * time.Second

	automationNote = "automation"
)

// RunLocker guards against overlapping batches across processes. It is an optimisation only.
type RunLocker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

type EngineConfig struct {
	BatchSize       int
	BatchBudget     time.Duration
	// SendTimeout bounds the rate limiter wait and the provider call of one channel.
	SendTimeout     time.Duration
	ScanPageSize    int
	Location        *time.Location
	TrackingBaseURL string
}

// AutomationEngine advances shipments along the automation policy and notifies recipients.
type AutomationEngine struct {
	shipments  repository.ShipmentRepository
	dispatches repository.AutomationRepository
	messages   repository.MessageHistoryRepository
	settings   repository.SettingsRepository
	senders    provider.Registry
	limiter    ratelimit.RateLimiter
	lock       RunLocker
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        EngineConfig
	now        func() time.Time
	newID      func() string
}

func NewAutomationEngine(
	shipments repository.ShipmentRepository,
	dispatches repository.AutomationRepository,
	messages repository.MessageHistoryRepository,
	settings repository.SettingsRepository,
	senders provider.Registry,
	limiter ratelimit.RateLimiter,
	cfg EngineConfig,
	logger *zap.Logger,
) (*AutomationEngine, error) {
	if shipments == nil || dispatches == nil || messages == nil || settings == nil {
		return nil, fmt.Errorf("automation engine requires shipment, dispatch, message and settings repositories")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchBudget <= 0 {
		cfg.BatchBudget = defaultBatchBudget
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.ScanPageSize < 1 {
		cfg.ScanPageSize = defaultScanPageSize
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if senders == nil {
		senders = provider.Registry{}
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AutomationEngine{
		shipments:  shipments,
		dispatches: dispatches,
		messages:   messages,
		settings:   settings,
		senders:    senders,
		limiter:    limiter,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (e *AutomationEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

func (e *AutomationEngine) SetRunLock(lock RunLocker) {
	if e == nil {
		return
	}
	e.lock = lock
}

// RunBatch executes one bounded automation batch.
//
// Item-level failures never abort the batch; they are reported in the summary. A non-nil
// error means the batch could not run at all (policy unreadable, shipment scan failed or ctx ended).
func (e *AutomationEngine) RunBatch(ctx context.Context) (summary RunSummary, err error) {
	start := e.now()
	runID, ok := observability.RunIDFromContext(ctx)
	if !ok {
		runID = e.newID()
		ctx = observability.WithRunID(ctx, runID)
	}
	logger := observability.WithContextLogger(e.logger, ctx)

	summary = RunSummary{RunID: runID, StartedAt: start}
	defer func() {
		summary.FinishedAt = e.now()
		e.metrics.ObserveAutomationRun(summary.Result(), summary.FinishedAt.Sub(start), summary.Remaining)
	}()

	if e.lock != nil {
		release, acquired, err := e.lock.TryAcquire(ctx)
		switch {
		case err != nil:
			logger.Warn("run lock unavailable, continuing without it", zap.Error(err))
		case !acquired:
			logger.Info("another automation run holds the lock, skipping")
			summary.Locked = true
			return summary, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	policy, err := e.settings.GetPolicy(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		summary.ConfigError = "automation policy is not configured"
		logger.Warn("automation skipped", zap.String("reason", summary.ConfigError))
		return summary, nil
	}
	if err != nil {
		summary.Error = err.Error()
		return summary, fmt.Errorf("load automation policy: %w", err)
	}

	if !policy.Enabled {
		summary.Disabled = true
		logger.Info("automation disabled, nothing to do")
		return summary, nil
	}

	if err := policy.Validate(); err != nil {
		summary.ConfigError = err.Error()
		logger.Error("automation policy is invalid, nothing is due", zap.Error(err))
		e.recordRun(ctx, logger, &summary)
		return summary, nil
	}

	templates, err := e.settings.ListTemplates(ctx)
	if err != nil {
		logger.Warn("failed to load message templates, using fallbacks", zap.Error(err))
		templates = nil
	}
	renderer := render.New(templates, render.Options{
		TrackingBaseURL: e.cfg.TrackingBaseURL,
		Location:        e.cfg.Location,
	})

	scanErr := e.scan(ctx, logger, policy, renderer, start, &summary)
	if scanErr != nil {
		summary.Error = scanErr.Error()
	}
	e.recordRun(ctx, logger, &summary)

	logger.Info("automation batch finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("due", summary.Due),
		zap.Int("advanced", summary.Advanced),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("remaining", summary.Remaining),
	)

	return summary, scanErr
}

// scan walks active shipments page by page and processes the due ones until the batch
// size or the wall-clock budget is exhausted. Due shipments past that point are only counted.
func (e *AutomationEngine) scan(
	ctx context.Context,
	logger *zap.Logger,
	policy *domain.AutomationPolicy,
	renderer *render.Renderer,
	now time.Time,
	summary *RunSummary,
) error {
	deadline := now.Add(e.cfg.BatchBudget)
	stopped := false
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			summary.MoreRemaining = true
			return err
		}

		page, err := e.shipments.ListActive(ctx, cursor, e.cfg.ScanPageSize, policy.FinalStatus)
		if err != nil {
			return fmt.Errorf("list active shipments: %w", err)
		}

		claimed, err := e.claimedSteps(ctx, page)
		if err != nil {
			return fmt.Errorf("list claimed steps: %w", err)
		}

		outOfTime := false
		for i := range page {
			shipment := page[i]
			summary.Scanned++

			step, _, due := policy.NextDueStep(&shipment, now, e.cfg.Location, claimed[shipment.ID].has)
			if !due {
				continue
			}
			summary.Due++

			if !e.now().Before(deadline) || ctx.Err() != nil {
				stopped, outOfTime = true, true
			} else if !stopped && summary.attempted() >= e.cfg.BatchSize {
				stopped = true
			}
			if stopped {
				summary.Remaining++
				continue
			}

			item := e.advance(ctx, logger, policy, renderer, shipment, step)
			summary.add(item)
		}

		// Remaining is a lower bound once the budget is spent.
		if outOfTime {
			summary.MoreRemaining = true
			return nil
		}
		if len(page) < e.cfg.ScanPageSize {
			break
		}
		cursor = page[len(page)-1].ID
	}

	summary.MoreRemaining = summary.Remaining > 0
	return nil
}

type statusSet map[string]struct{}

func (s statusSet) has(status string) bool {
	_, ok := s[domain.NormalizeStatus(status)]
	return ok
}

// claimedSteps maps each shipment in page to the statuses it already has a dispatch for.
func (e *AutomationEngine) claimedSteps(ctx context.Context, page []domain.Shipment) (map[string]statusSet, error) {
	if len(page) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(page))
	for i := range page {
		ids = append(ids, page[i].ID)
	}
	byShipment, err := e.dispatches.ClaimedStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]statusSet, len(byShipment))
	for id, statuses := range byShipment {
		set := make(statusSet, len(statuses))
		for _, status := range statuses {
			set[domain.NormalizeStatus(status)] = struct{}{}
		}
		out[id] = set
	}
	return out, nil
}

// advance claims one due step and, when the claim succeeds, notifies every enabled channel.
// The claim commits the status change and its history entry together, so a failure before it
// leaves the step eligible for the next run and a failure after it never rolls the status back.
func (e *AutomationEngine) advance(
	ctx context.Context,
	logger *zap.Logger,
	policy *domain.AutomationPolicy,
	renderer *render.Renderer,
	shipment domain.Shipment,
	step domain.AutomationStep,
) ItemResult {
	item := ItemResult{
		ShipmentID:   shipment.ID,
		TrackingCode: shipment.TrackingCode,
		FromStatus:   shipment.Status,
		ToStatus:     step.Status,
	}
	logger = logger.With(
		zap.String("shipmentId", shipment.ID),
		zap.String("trackingCode", shipment.TrackingCode),
		zap.String("targetStatus", step.Status),
	)

	scheduledAt, err := step.DueAt(shipment.ShipDate, e.cfg.Location)
	if err != nil {
		item.Outcome = ItemFailed
		item.Error = err.Error()
		return item
	}

	claimedAt := e.now().UTC()
	note := automationNote
	dispatch := &domain.ScheduledDispatch{
		ID:           e.newID(),
		ShipmentID:   shipment.ID,
		TargetStatus: step.Status,
		ScheduledAt:  scheduledAt.UTC(),
		CreatedAt:    claimedAt,
	}
	entry := &domain.StatusHistoryEntry{
		ID:         e.newID(),
		ShipmentID: shipment.ID,
		Status:     step.Status,
		Note:       &note,
		CreatedAt:  claimedAt,
	}

	err = e.dispatches.ClaimStep(ctx, dispatch, shipment.Status, entry)
	switch {
	case errors.Is(err, domain.ErrAlreadyClaimed):
		item.Outcome = ItemSkipped
		item.Reason = "step already claimed by another run"
		logger.Debug("step already claimed, skipping")
		return item
	case errors.Is(err, domain.ErrConflict):
		item.Outcome = ItemSkipped
		item.Reason = "shipment status changed during the run"
		logger.Info("shipment status changed concurrently, skipping")
		return item
	case err != nil:
		item.Outcome = ItemFailed
		item.Error = fmt.Sprintf("claim step: %v", err)
		logger.Error("failed to claim step, it stays eligible", zap.Error(err))
		return item
	}

	item.Outcome = ItemAdvanced
	item.DispatchID = dispatch.ID
	e.metrics.IncShipmentAdvanced(step.Status)

	// The status is committed; finish the step even if the caller goes away.
	stepCtx := context.WithoutCancel(ctx)

	shipment.Status = step.Status
	shipment.UpdatedAt = claimedAt
	item.Channels = e.deliverAll(stepCtx, logger, renderer, shipment, stepChannels(policy, step))

	errMsg := joinChannelErrors(item.Channels)
	if err := e.dispatches.CompleteDispatch(stepCtx, dispatch.ID, e.now().UTC(), errMsg); err != nil {
		item.Error = fmt.Sprintf("complete dispatch: %v", err)
		logger.Error("failed to complete dispatch record", zap.Error(err))
	}

	return item
}

// Notify re-sends the notification for the shipment's current status. It never touches
// dispatch records, so it is the manual path after a failed automatic dispatch.
// With no channels given it uses the channels of the policy step matching the current
// status, or every channel when the status is not part of the policy.
func (e *AutomationEngine) Notify(ctx context.Context, shipmentID string, channels []domain.Channel) ([]ChannelResult, error) {
	for _, channel := range channels {
		if !channel.IsValid() {
			return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
		}
	}

	shipment, err := e.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	if len(channels) == 0 {
		channels = domain.Channels
		policy, err := e.settings.GetPolicy(ctx)
		switch {
		case err == nil:
			if idx := policy.StepIndex(shipment.Status); idx >= 0 {
				channels = uniqueChannels(policy.Steps[idx].Channels)
			}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load automation policy: %w", err)
		}
	} else {
		channels = uniqueChannels(channels)
	}

	templates, err := e.settings.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load message templates: %w", err)
	}
	renderer := render.New(templates, render.Options{
		TrackingBaseURL: e.cfg.TrackingBaseURL,
		Location:        e.cfg.Location,
	})

	logger := observability.WithContextLogger(e.logger, ctx).With(
		zap.String("shipmentId", shipment.ID),
		zap.String("status", shipment.Status),
	)
	return e.deliverAll(ctx, logger, renderer, *shipment, channels), nil
}

// deliverAll sends to every channel concurrently. Channel failures are isolated: each
// result carries its own outcome and no error aborts the siblings.
func (e *AutomationEngine) deliverAll(
	ctx context.Context,
	logger *zap.Logger,
	renderer *render.Renderer,
	shipment domain.Shipment,
	channels []domain.Channel,
) []ChannelResult {
	results := make([]ChannelResult, len(channels))

	var g errgroup.Group
	for i, channel := range channels {
		i, channel := i, channel
		g.Go(func() error {
			results[i] = e.deliver(ctx, logger, renderer, shipment, channel)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *AutomationEngine) deliver(
	ctx context.Context,
	logger *zap.Logger,
	renderer *render.Renderer,
	shipment domain.Shipment,
	channel domain.Channel,
) ChannelResult {
	channelName := strings.ToLower(channel.String())
	result := ChannelResult{Channel: channel, Recipient: shipment.Contact(channel)}
	msg := renderer.Render(channel, shipment.Status, shipment)

	switch sender, ok := e.senders.Sender(channel); {
	case result.Recipient == "":
		result.Outcome = domain.OutcomeSkipped
		result.Error = "recipient has no contact for channel"
	case !ok:
		result.Outcome = domain.OutcomeSkipped
		result.Error = "channel is not configured"
	default:
		result.Outcome, result.MessageID, result.Error = e.send(ctx, sender, channel, provider.Message{
			Channel:   channel,
			Recipient: result.Recipient,
			Subject:   msg.Subject,
			Body:      msg.Body,
		})
	}

	switch result.Outcome {
	case domain.OutcomeSent:
		e.metrics.IncNotificationSent(channelName)
	case domain.OutcomeSkipped:
		e.metrics.IncNotificationFailed(channelName, "skipped")
		logger.Info("notification skipped", zap.String("channel", channelName), zap.String("reason", result.Error))
	default:
		logger.Warn("notification failed", zap.String("channel", channelName), zap.String("error", result.Error))
	}

	entry := &domain.MessageHistoryEntry{
		ID:         e.newID(),
		ShipmentID: &shipment.ID,
		Status:     shipment.Status,
		Recipient:  result.Recipient,
		Channel:    channel,
		Message:    msg.Body,
		Outcome:    result.Outcome,
		CreatedAt:  e.now().UTC(),
	}
	if result.MessageID != "" {
		entry.ExternalMessageID = &result.MessageID
	}
	if result.Error != "" {
		entry.Error = &result.Error
	}
	if err := e.messages.Create(ctx, entry); err != nil {
		result.AuditError = err.Error()
		logger.Error("failed to record message history", zap.String("channel", channelName), zap.Error(err))
	}

	return result
}

func (e *AutomationEngine) send(
	ctx context.Context,
	sender provider.Sender,
	channel domain.Channel,
	msg provider.Message,
) (domain.DispatchOutcome, string, string) {
	channelName := strings.ToLower(channel.String())

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	defer cancel()

	if err := e.limiter.Wait(ctx, channel); err != nil {
		e.metrics.IncNotificationFailed(channelName, "rate_limited")
		return domain.OutcomeFailed, "", fmt.Sprintf("rate limiter: %v", err)
	}

	sendStart := e.now()
	delivery, err := sender.Send(ctx, msg)
	e.metrics.ObserveNotificationSendDuration(channelName, e.now().Sub(sendStart))

	if err != nil {
		e.metrics.IncNotificationFailed(channelName, provider.FailureReason(err))
		return domain.OutcomeFailed, "", err.Error()
	}

	messageID := ""
	if delivery != nil {
		messageID = delivery.MessageID
	}
	return domain.OutcomeSent, messageID, ""
}

func (e *AutomationEngine) recordRun(ctx context.Context, logger *zap.Logger, summary *RunSummary) {
	err := e.settings.RecordRun(context.WithoutCancel(ctx), e.now().UTC(), summary.Succeeded(), summary.Advanced)
	if err != nil {
		summary.AuditError = err.Error()
		logger.Error("failed to record automation run", zap.Error(err))
	}
}

// stepChannels returns the step's channels in order without duplicates, or none when
// notifications are globally disabled.
func stepChannels(policy *domain.AutomationPolicy, step domain.AutomationStep) []domain.Channel {
	if !policy.NotificationsEnabled {
		return nil
	}
	return uniqueChannels(step.Channels)
}

func uniqueChannels(channels []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]bool, len(channels))
	out := make([]domain.Channel, 0, len(channels))
	for _, c := range channels {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// joinChannelErrors folds failed channel results into the dispatch error column. Skipped
// channels are not errors.
func joinChannelErrors(results []ChannelResult) *string {
	var parts []string
	for _, r := range results {
		if r.Outcome == domain.OutcomeFailed {
			parts = append(parts, fmt.Sprintf("%s: %s", r.Channel, r.Error))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "; ")
	return &joined
}
