package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/shiptrack/internal/domain"
	"github.com/kursadbilgin/shiptrack/internal/repository"
)

var serviceNow = time.Date(2026, 1, 9, 15, 0, 0, 0, time.UTC)

func newTestShipmentService(t *testing.T, db *memDB, repo *memShipmentRepo) *ShipmentService {
	t.Helper()

	if repo == nil {
		repo = &memShipmentRepo{db: db}
	}
	svc, err := NewShipmentService(repo, &memAutomationRepo{db: db}, &memMessageRepo{db: db}, &memSettingsRepo{db: db}, nil)
	if err != nil {
		t.Fatalf("NewShipmentService() error = %v", err)
	}
	svc.now = func() time.Time { return serviceNow }
	svc.newID = sequentialIDs("sh")
	return svc
}

func TestShipmentServiceCreate(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.policy = &domain.AutomationPolicy{InitialStatus: "Aguardando postagem"}
	svc := newTestShipmentService(t, db, nil)
	svc.randIntn = func(n int) int { return 7 }

	created, err := svc.Create(context.Background(), &domain.Shipment{RecipientName: "Ana"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.TrackingCode != "LOG-20260109-0007" {
		t.Fatalf("TrackingCode = %q", created.TrackingCode)
	}
	if created.Status != "Aguardando postagem" {
		t.Fatalf("Status = %q, want the policy's initial status", created.Status)
	}
	if !created.ShipDate.Equal(serviceNow) {
		t.Fatalf("ShipDate = %v, want now", created.ShipDate)
	}

	history := db.historyFor(created.ID)
	if len(history) != 1 || history[0].Status != "Aguardando postagem" {
		t.Fatalf("history = %+v, want one intake entry", history)
	}
}

func TestShipmentServiceCreateDefaultsStatusWithoutPolicy(t *testing.T) {
	t.Parallel()

	svc := newTestShipmentService(t, newMemDB(), nil)
	created, err := svc.Create(context.Background(), &domain.Shipment{RecipientName: "Ana"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.Status != domain.DefaultInitialStatus {
		t.Fatalf("Status = %q, want %q", created.Status, domain.DefaultInitialStatus)
	}
}

func TestShipmentServiceCreateRegeneratesCollidingCode(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(domain.Shipment{ID: "existing", TrackingCode: "LOG-20260109-0001", RecipientName: "Bia"})
	svc := newTestShipmentService(t, db, nil)

	codes := []int{1, 1, 2}
	svc.randIntn = func(n int) int {
		next := codes[0]
		codes = codes[1:]
		return next
	}

	created, err := svc.Create(context.Background(), &domain.Shipment{RecipientName: "Ana"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.TrackingCode != "LOG-20260109-0002" {
		t.Fatalf("TrackingCode = %q, want the third generated code", created.TrackingCode)
	}
}

func TestShipmentServiceCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	calls := 0
	repo := &memShipmentRepo{
		db: db,
		createFn: func(ctx context.Context, s *domain.Shipment, initial *domain.StatusHistoryEntry) error {
			calls++
			return domain.ErrConflict
		},
	}
	svc := newTestShipmentService(t, db, repo)
	svc.randIntn = func(n int) int { return 1 }

	_, err := svc.Create(context.Background(), &domain.Shipment{RecipientName: "Ana"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict", err)
	}
	if calls != maxTrackingCodeAttempts {
		t.Fatalf("create attempts = %d, want %d", calls, maxTrackingCodeAttempts)
	}
}

func TestShipmentServiceCreateExplicitCode(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(domain.Shipment{ID: "existing", TrackingCode: "LOG-20260109-0001", RecipientName: "Bia"})
	svc := newTestShipmentService(t, db, nil)

	_, err := svc.Create(context.Background(), &domain.Shipment{TrackingCode: " log-20260109-0001 ", RecipientName: "Ana"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Create() error = %v, want ErrConflict for a taken explicit code", err)
	}

	_, err = svc.Create(context.Background(), &domain.Shipment{TrackingCode: "ABC", RecipientName: "Ana"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Create() error = %v, want ErrValidation", err)
	}
}

func TestShipmentServiceTrack(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	svc := newTestShipmentService(t, db, nil)
	svc.randIntn = func(n int) int { return 42 }

	created, err := svc.Create(context.Background(), &domain.Shipment{
		RecipientName:  "Ana",
		RecipientEmail: "ana@example.com",
		ProductName:    "Livro",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.OverrideStatus(context.Background(), created.ID, "Postado", ""); err != nil {
		t.Fatalf("OverrideStatus() error = %v", err)
	}

	view, err := svc.Track(context.Background(), " log-20260109-0042")
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if view.Status != "Postado" || view.ProductName != "Livro" {
		t.Fatalf("view = %+v", view)
	}
	if len(view.History) != 2 || view.History[1].Status != "Postado" {
		t.Fatalf("history = %+v, want intake then Postado", view.History)
	}

	if _, err := svc.Track(context.Background(), "LOG-20260109-9999"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Track(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Track(context.Background(), "nope"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Track(malformed) error = %v, want ErrValidation", err)
	}
}

func TestShipmentServiceOverrideStatus(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(testShipment("s-0001"))
	svc := newTestShipmentService(t, db, nil)

	updated, err := svc.OverrideStatus(context.Background(), "s-0001", " Devolvido ", "customer refused")
	if err != nil {
		t.Fatalf("OverrideStatus() error = %v", err)
	}
	if updated.Status != "Devolvido" {
		t.Fatalf("Status = %q", updated.Status)
	}
	history := db.historyFor("s-0001")
	if len(history) != 1 || history[0].Note == nil || *history[0].Note != "customer refused" {
		t.Fatalf("history = %+v", history)
	}

	if _, err := svc.OverrideStatus(context.Background(), "s-0001", " ", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("OverrideStatus(empty) error = %v, want ErrValidation", err)
	}
	if _, err := svc.OverrideStatus(context.Background(), "missing", "Postado", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("OverrideStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestShipmentServiceUpdateKeepsStatusAndCode(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(testShipment("s-0001"))
	svc := newTestShipmentService(t, db, nil)

	updated, err := svc.Update(context.Background(), &domain.Shipment{
		ID:             "s-0001",
		TrackingCode:   "LOG-20990101-0000",
		Status:         "Entregue",
		RecipientName:  "Ana Maria",
		RecipientPhone: "+55 11 98888-7777",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Status != domain.DefaultInitialStatus || updated.TrackingCode != "LOG-20260302-0001" {
		t.Fatalf("updated = %+v, status and tracking code must not change", updated)
	}
	if got := db.shipment("s-0001").RecipientName; got != "Ana Maria" {
		t.Fatalf("RecipientName = %q", got)
	}
}

func TestShipmentServiceDispatchesAndDelete(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(testShipment("s-0001"))
	db.dispatches[dispatchKey("s-0001", "Postado")] = domain.ScheduledDispatch{ID: "d-1", ShipmentID: "s-0001", TargetStatus: "Postado"}
	svc := newTestShipmentService(t, db, nil)

	dispatches, err := svc.Dispatches(context.Background(), "s-0001")
	if err != nil || len(dispatches) != 1 {
		t.Fatalf("Dispatches() = %+v, %v", dispatches, err)
	}
	if _, err := svc.Dispatches(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Dispatches(missing) error = %v, want ErrNotFound", err)
	}

	if err := svc.Delete(context.Background(), "s-0001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if db.dispatchCount() != 0 {
		t.Fatal("dispatches must be deleted with the shipment")
	}
	if err := svc.Delete(context.Background(), "s-0001"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestShipmentServiceListAndPurge(t *testing.T) {
	t.Parallel()

	db := newMemDB()
	db.put(testShipment("s-0001"))
	second := testShipment("s-0002")
	second.Status = "Postado"
	db.put(second)
	svc := newTestShipmentService(t, db, nil)

	status := "postado"
	list, total, err := svc.List(context.Background(), repository.ShipmentListParams{Status: &status})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || list[0].ID != "s-0002" {
		t.Fatalf("List() = %+v (%d)", list, total)
	}
	if _, _, err := svc.List(context.Background(), repository.ShipmentListParams{Page: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List(page=-1) error = %v, want ErrValidation", err)
	}

	deleted, err := svc.Purge(context.Background())
	if err != nil || deleted != 2 {
		t.Fatalf("Purge() = %d, %v", deleted, err)
	}
}
