package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 1 || work[0] != "automation.runs" {
		t.Fatalf("WorkQueueNames = %v, want [automation.runs]", work)
	}

	dlq := DLQNames()
	if len(dlq) != 1 || dlq[0] != "dlq.automation.runs" {
		t.Fatalf("DLQNames = %v, want [dlq.automation.runs]", dlq)
	}
}

func TestRunRequestValidate(t *testing.T) {
	requestedAt := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		msg     RunRequest
		wantErr bool
	}{
		{
			name: "valid schedule",
			msg:  RunRequest{RunID: "r1", Reason: ReasonSchedule, RequestedAt: requestedAt},
		},
		{
			name: "valid continuation",
			msg:  RunRequest{RunID: "r1", Reason: ReasonContinuation, RequestedAt: requestedAt},
		},
		{
			name:    "missing run id",
			msg:     RunRequest{Reason: ReasonManual, RequestedAt: requestedAt},
			wantErr: true,
		},
		{
			name:    "unknown reason",
			msg:     RunRequest{RunID: "r1", Reason: "cron", RequestedAt: requestedAt},
			wantErr: true,
		},
		{
			name:    "missing requested at",
			msg:     RunRequest{RunID: "r1", Reason: ReasonSchedule},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunRequestJSONFieldNames(t *testing.T) {
	payload, err := json.Marshal(RunRequest{
		RunID:       "r1",
		Reason:      ReasonManual,
		RequestedAt: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"runId", "reason", "requestedAt"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("payload %s missing %q", payload, key)
		}
	}
}

func TestConsumerProcessSettlement(t *testing.T) {
	t.Parallel()

	valid, err := json.Marshal(RunRequest{RunID: "r1", Reason: ReasonSchedule, RequestedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	invalid, err := json.Marshal(RunRequest{RunID: "r1", Reason: "cron", RequestedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	ok := func(context.Context, RunRequest) error { return nil }
	failing := func(context.Context, RunRequest) error { return errors.New("db down") }

	tests := []struct {
		name        string
		body        []byte
		redelivered bool
		handler     MessageHandler
		want        settlement
	}{
		{name: "handled", body: valid, handler: ok, want: settleAck},
		{name: "first failure requeues", body: valid, handler: failing, want: settleRequeue},
		{name: "second failure dead-letters", body: valid, redelivered: true, handler: failing, want: settleDeadLetter},
		{name: "malformed json", body: []byte("{"), handler: ok, want: settleDeadLetter},
		{name: "invalid request", body: invalid, handler: ok, want: settleDeadLetter},
	}

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 0, nil)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := consumer.process(context.Background(), tt.body, tt.redelivered, tt.handler); got != tt.want {
				t.Fatalf("process() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestToPublishing(t *testing.T) {
	t.Parallel()

	requestedAt := time.Date(2026, 3, 5, 9, 0, 0, 0, time.FixedZone("BRT", -3*60*60))
	publishing, err := toPublishing(RunRequest{RunID: "r1", Reason: ReasonContinuation, RequestedAt: requestedAt})
	if err != nil {
		t.Fatalf("toPublishing() error = %v", err)
	}
	if publishing.MessageId != "r1" || publishing.Type != ReasonContinuation {
		t.Fatalf("publishing = %+v", publishing)
	}
	if publishing.Headers[headerRunReason] != ReasonContinuation {
		t.Fatalf("headers = %v", publishing.Headers)
	}
	if !publishing.Timestamp.Equal(requestedAt) || publishing.Timestamp.Location() != time.UTC {
		t.Fatalf("Timestamp = %v, want UTC %v", publishing.Timestamp, requestedAt)
	}

	if _, err := toPublishing(RunRequest{Reason: ReasonSchedule}); err == nil {
		t.Fatal("expected error for an invalid request")
	}
}

func TestQueueArgsDeadLetterToDLX(t *testing.T) {
	t.Parallel()

	args := queueArgs()
	if args["x-dead-letter-exchange"] != dlxExchangeName || args["x-dead-letter-routing-key"] != automationRunsRoutingKey {
		t.Fatalf("queueArgs() = %v", args)
	}
}
