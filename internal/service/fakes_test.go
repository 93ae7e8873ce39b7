package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/provider"
	"github.com/kursadbilgin/shiptrack/internal/queue"
	"github.com/kursadbilgin/shiptrack/internal/repository"
)

// memDB is an in-memory stand-in for the relational store. The dispatch claim enforces the
// same unique (shipment, target status) rule as the database index.
type memDB struct {
	mu         sync.Mutex
	shipments  map[string]domain.Shipment
	history    []domain.StatusHistoryEntry
	dispatches map[string]domain.ScheduledDispatch
	messages   []domain.MessageHistoryEntry
	policy     *domain.AutomationPolicy
	templates  []domain.MessageTemplate
	runs       []recordedRun
}

type recordedRun struct {
	at      time.Time
	success bool
	updated int
}

func newMemDB() *memDB {
	return &memDB{
		shipments:  make(map[string]domain.Shipment),
		dispatches: make(map[string]domain.ScheduledDispatch),
	}
}

func dispatchKey(shipmentID, status string) string {
	return shipmentID + "|" + strings.ToLower(strings.TrimSpace(status))
}

func (db *memDB) put(s domain.Shipment) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.shipments[s.ID] = s
}

func (db *memDB) shipment(id string) domain.Shipment {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.shipments[id]
}

func (db *memDB) historyFor(shipmentID string) []domain.StatusHistoryEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.StatusHistoryEntry
	for _, h := range db.history {
		if h.ShipmentID == shipmentID {
			out = append(out, h)
		}
	}
	return out
}

func (db *memDB) messagesFor(channel domain.Channel) []domain.MessageHistoryEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.MessageHistoryEntry
	for _, m := range db.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (db *memDB) dispatchCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.dispatches)
}

func (db *memDB) dispatch(shipmentID, status string) (domain.ScheduledDispatch, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.dispatches[dispatchKey(shipmentID, status)]
	return d, ok
}

type memShipmentRepo struct {
	db        *memDB
	listErr   error
	listCalls atomic.Int32
	// onList runs after every ListActive call.
	onList func()
	// createFn overrides Create when set.
	createFn func(ctx context.Context, s *domain.Shipment, initial *domain.StatusHistoryEntry) error
}

var _ repository.ShipmentRepository = (*memShipmentRepo)(nil)

func (r *memShipmentRepo) Create(ctx context.Context, s *domain.Shipment, initial *domain.StatusHistoryEntry) error {
	if r.createFn != nil {
		return r.createFn(ctx, s, initial)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.shipments {
		if existing.TrackingCode == s.TrackingCode {
			return domain.ErrConflict
		}
		if s.ExternalOrderID != nil && existing.ExternalOrderID != nil && *existing.ExternalOrderID == *s.ExternalOrderID {
			return domain.ErrConflict
		}
	}
	r.db.shipments[s.ID] = *s
	if initial != nil {
		r.db.history = append(r.db.history, *initial)
	}
	return nil
}

func (r *memShipmentRepo) GetByID(ctx context.Context, id string) (*domain.Shipment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (r *memShipmentRepo) GetByTrackingCode(ctx context.Context, code string) (*domain.Shipment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.shipments {
		if s.TrackingCode == code {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memShipmentRepo) GetByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Shipment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.shipments {
		if s.ExternalOrderID != nil && *s.ExternalOrderID == externalOrderID {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memShipmentRepo) List(ctx context.Context, params repository.ShipmentListParams) ([]domain.Shipment, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Shipment
	for _, s := range r.db.shipments {
		if params.Status != nil && !domain.SameStatus(s.Status, *params.Status) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memShipmentRepo) ListActive(ctx context.Context, afterID string, limit int, finalStatus string) ([]domain.Shipment, error) {
	r.listCalls.Add(1)
	if r.onList != nil {
		defer r.onList()
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Shipment
	for _, s := range r.db.shipments {
		if s.ID > afterID && !domain.SameStatus(s.Status, finalStatus) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memShipmentRepo) UpdateStatus(ctx context.Context, id, status string, entry *domain.StatusHistoryEntry) (*domain.Shipment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.shipments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.Status = status
	if entry != nil {
		s.UpdatedAt = entry.CreatedAt
		r.db.history = append(r.db.history, *entry)
	}
	r.db.shipments[id] = s
	return &s, nil
}

func (r *memShipmentRepo) UpdateDetails(ctx context.Context, s *domain.Shipment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	existing, ok := r.db.shipments[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = existing.Status
	s.TrackingCode = existing.TrackingCode
	s.ExternalOrderID = existing.ExternalOrderID
	s.CreatedAt = existing.CreatedAt
	r.db.shipments[s.ID] = *s
	return nil
}

func (r *memShipmentRepo) Delete(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.shipments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.db.shipments, id)
	for key, d := range r.db.dispatches {
		if d.ShipmentID == id {
			delete(r.db.dispatches, key)
		}
	}
	return nil
}

func (r *memShipmentRepo) History(ctx context.Context, shipmentID string) ([]domain.StatusHistoryEntry, error) {
	return r.db.historyFor(shipmentID), nil
}

func (r *memShipmentRepo) Purge(ctx context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := int64(len(r.db.shipments))
	r.db.shipments = make(map[string]domain.Shipment)
	r.db.history = nil
	r.db.dispatches = make(map[string]domain.ScheduledDispatch)
	r.db.messages = nil
	return n, nil
}

type memAutomationRepo struct {
	db          *memDB
	claimErr    error
	completeErr error
	claims      atomic.Int32
	// claimFn overrides ClaimStep when set.
	claimFn func(ctx context.Context, d *domain.ScheduledDispatch, fromStatus string, entry *domain.StatusHistoryEntry) error
}

var _ repository.AutomationRepository = (*memAutomationRepo)(nil)

func (r *memAutomationRepo) ClaimStep(ctx context.Context, d *domain.ScheduledDispatch, fromStatus string, entry *domain.StatusHistoryEntry) error {
	r.claims.Add(1)
	if r.claimFn != nil {
		return r.claimFn(ctx, d, fromStatus, entry)
	}
	if r.claimErr != nil {
		return r.claimErr
	}
	return r.claim(d, fromStatus, entry)
}

func (r *memAutomationRepo) claim(d *domain.ScheduledDispatch, fromStatus string, entry *domain.StatusHistoryEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	key := dispatchKey(d.ShipmentID, d.TargetStatus)
	if _, exists := r.db.dispatches[key]; exists {
		return domain.ErrAlreadyClaimed
	}
	s, ok := r.db.shipments[d.ShipmentID]
	if !ok || s.Status != fromStatus {
		return domain.ErrConflict
	}

	r.db.dispatches[key] = *d
	s.Status = d.TargetStatus
	s.UpdatedAt = d.CreatedAt
	r.db.shipments[s.ID] = s
	if entry != nil {
		r.db.history = append(r.db.history, *entry)
	}
	return nil
}

func (r *memAutomationRepo) CompleteDispatch(ctx context.Context, id string, sentAt time.Time, errMsg *string) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for key, d := range r.db.dispatches {
		if d.ID != id {
			continue
		}
		if d.Sent {
			return nil
		}
		d.Sent = true
		d.SentAt = &sentAt
		d.Error = errMsg
		r.db.dispatches[key] = d
		return nil
	}
	return domain.ErrNotFound
}

func (r *memAutomationRepo) ListDispatches(ctx context.Context, shipmentID string) ([]domain.ScheduledDispatch, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.ScheduledDispatch
	for _, d := range r.db.dispatches {
		if d.ShipmentID == shipmentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memAutomationRepo) ClaimedStatuses(ctx context.Context, shipmentIDs []string) (map[string][]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[string][]string)
	for _, id := range shipmentIDs {
		for _, d := range r.db.dispatches {
			if d.ShipmentID == id {
				out[id] = append(out[id], d.TargetStatus)
			}
		}
	}
	return out, nil
}

// seedDispatch records a claimed dispatch without moving the shipment.
func (db *memDB) seedDispatch(d domain.ScheduledDispatch) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.dispatches[dispatchKey(d.ShipmentID, d.TargetStatus)] = d
}

type memMessageRepo struct {
	db        *memDB
	createErr error
}

var _ repository.MessageHistoryRepository = (*memMessageRepo)(nil)

func (r *memMessageRepo) Create(ctx context.Context, entry *domain.MessageHistoryEntry) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.messages = append(r.db.messages, *entry)
	return nil
}

func (r *memMessageRepo) List(ctx context.Context, params repository.MessageListParams) ([]domain.MessageHistoryEntry, int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.MessageHistoryEntry
	for _, m := range r.db.messages {
		if params.ShipmentID != nil && (m.ShipmentID == nil || *m.ShipmentID != *params.ShipmentID) {
			continue
		}
		if params.Channel != nil && m.Channel != *params.Channel {
			continue
		}
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

type memSettingsRepo struct {
	db           *memDB
	getErr       error
	listErr      error
	recordRunErr error
}

var _ repository.SettingsRepository = (*memSettingsRepo)(nil)

func (r *memSettingsRepo) GetPolicy(ctx context.Context) (*domain.AutomationPolicy, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.policy == nil {
		return nil, domain.ErrNotFound
	}
	p := *r.db.policy
	p.Steps = append([]domain.AutomationStep(nil), r.db.policy.Steps...)
	return &p, nil
}

func (r *memSettingsRepo) SavePolicy(ctx context.Context, p *domain.AutomationPolicy) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	version := 1
	if r.db.policy != nil {
		version = r.db.policy.Version + 1
	}
	saved := *p
	saved.Version = version
	r.db.policy = &saved
	*p = saved
	return nil
}

func (r *memSettingsRepo) RecordRun(ctx context.Context, at time.Time, success bool, updated int) error {
	if r.recordRunErr != nil {
		return r.recordRunErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.runs = append(r.db.runs, recordedRun{at: at, success: success, updated: updated})
	if r.db.policy != nil {
		r.db.policy.LastRunAt = &at
		r.db.policy.LastRunSuccess = &success
		r.db.policy.LastRunUpdated = updated
	}
	return nil
}

func (r *memSettingsRepo) ListTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]domain.MessageTemplate(nil), r.db.templates...), nil
}

func (r *memSettingsRepo) SaveTemplate(ctx context.Context, t *domain.MessageTemplate) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.templates {
		if r.db.templates[i].Name() == t.Name() {
			t.Version = r.db.templates[i].Version + 1
			r.db.templates[i] = *t
			return nil
		}
	}
	t.Version = 1
	r.db.templates = append(r.db.templates, *t)
	return nil
}

type fakeSender struct {
	calls  atomic.Int32
	sendFn func(ctx context.Context, msg provider.Message) (*provider.Delivery, error)
}

func (f *fakeSender) Send(ctx context.Context, msg provider.Message) (*provider.Delivery, error) {
	f.calls.Add(1)
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.Delivery{StatusCode: 200, MessageID: "msg-" + strings.ToLower(msg.Channel.String())}, nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeRunLock struct {
	acquired bool
	err      error
	released atomic.Bool
}

func (f *fakeRunLock) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if f.err != nil || !f.acquired {
		return nil, false, f.err
	}
	return func(context.Context) error {
		f.released.Store(true)
		return nil
	}, true, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.RunRequest
	publishFn func(ctx context.Context, queueName string, msg queue.RunRequest) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.RunRequest) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) requests() []queue.RunRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.RunRequest(nil), f.published...)
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

// sequentialIDs returns deterministic ids that sort in creation order.
func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%06d", prefix, n.Add(1))
	}
}
