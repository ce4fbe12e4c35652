package telemetry

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSample_MarshalJSON(t *testing.T) {
	ts := time.Unix(1700000000, 500_000_000)

	got, err := json.Marshal(Sample{Timestamp: ts, Value: Numeric(21.4)})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(got) != `[1700000000.5,21.4]` {
		t.Errorf("json.Marshal() = %s, want %s", got, `[1700000000.5,21.4]`)
	}

	got, err = json.Marshal(Sample{Timestamp: ts, Value: Text("open")})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(got) != `[1700000000.5,"open"]` {
		t.Errorf("json.Marshal() = %s, want %s", got, `[1700000000.5,"open"]`)
	}
}

func TestBatchEntry_MarshalJSON(t *testing.T) {
	entry := BatchEntry{Topic: "door/1", Payload: "open", Timestamp: time.Unix(10, 0)}

	got, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	want := `{"topic":"door/1","payload":"open","timestamp":10}`
	if string(got) != want {
		t.Errorf("json.Marshal() = %s, want %s", got, want)
	}
}

func TestBatch_Topics(t *testing.T) {
	b := Batch{{Topic: "temp/1"}, {Topic: "door/1"}}

	got := b.Topics()
	if len(got) != 2 || got[0] != "temp/1" || got[1] != "door/1" {
		t.Errorf("Topics() = %v, want [temp/1 door/1]", got)
	}
}
