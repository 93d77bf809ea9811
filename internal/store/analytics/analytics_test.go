package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/user/voiceline/internal/retry"
	"github.com/user/voiceline/internal/types"
)

type fakeAPI struct {
	errs  []error
	calls int
	last  *dynamodb.PutItemInput
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.last = in
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &dynamodb.PutItemOutput{}, nil
}

func fastRetry() *retry.Policy {
	return &retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1.0, MaxDelay: time.Millisecond}
}

func testRecord() *types.SessionRecord {
	end := time.Date(2026, 5, 1, 12, 1, 30, 0, time.UTC)
	duration := 90.0
	return &types.SessionRecord{
		SessionID:       "room-1",
		RoomName:        "room-1",
		AgentID:         "a1",
		CallID:          "c1",
		Language:        "en",
		StartTime:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		EndTime:         &end,
		DurationSeconds: &duration,
		UserTranscripts: []types.TranscriptEntry{
			{Text: "hello", Timestamp: time.Now().UTC(), Source: "user"},
		},
		TotalUserMessages: 1,
	}
}

func TestPut(t *testing.T) {
	api := &fakeAPI{}
	store, err := New(api, "call_analytics")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Put(context.Background(), testRecord()); err != nil {
		t.Fatal(err)
	}

	item := api.last.Item
	if got := item["session_id"].(*ddbtypes.AttributeValueMemberS).Value; got != "room-1" {
		t.Errorf("unexpected session_id: %s", got)
	}
	if got := item["duration_seconds"].(*ddbtypes.AttributeValueMemberN).Value; got != "90" {
		t.Errorf("unexpected duration: %s", got)
	}

	var roundTrip types.SessionRecord
	doc := item["record"].(*ddbtypes.AttributeValueMemberS).Value
	if err := json.Unmarshal([]byte(doc), &roundTrip); err != nil {
		t.Fatalf("record document not valid JSON: %v", err)
	}
	if roundTrip.TotalUserMessages != 1 || len(roundTrip.UserTranscripts) != 1 {
		t.Errorf("record document lost transcript data: %+v", roundTrip)
	}
}

func TestPutOmitsAbsentFields(t *testing.T) {
	api := &fakeAPI{}
	store, _ := New(api, "call_analytics")

	record := testRecord()
	record.AgentID = ""
	record.CallID = ""
	record.EndTime = nil
	record.DurationSeconds = nil

	if err := store.Put(context.Background(), record); err != nil {
		t.Fatal(err)
	}
	for _, attr := range []string{"agent_id", "call_id", "end_time_utc", "duration_seconds"} {
		if _, present := api.last.Item[attr]; present {
			t.Errorf("expected %s to be omitted", attr)
		}
	}
}

func TestPutRetriesTransientFailures(t *testing.T) {
	api := &fakeAPI{errs: []error{errors.New("timeout"), errors.New("connection reset")}}
	store, _ := New(api, "call_analytics")
	store.retry = fastRetry()

	if err := store.Put(context.Background(), testRecord()); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if api.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", api.calls)
	}
}

func TestPutGivesUpEventually(t *testing.T) {
	api := &fakeAPI{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	store, _ := New(api, "call_analytics")
	store.retry = fastRetry()

	if err := store.Put(context.Background(), testRecord()); err == nil {
		t.Error("expected error after exhausting attempts")
	}
}
