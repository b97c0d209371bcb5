package ingestion_test

import (
	"FeeMint/internal/ingestion"
	"testing"
	"time"
)

func TestParseLedgerClose(t *testing.T) {
	data := []byte(`{"sequence": 12345, "close_time_us": 1700000000000000, "base_fee": 150}`)

	evt, err := ingestion.ParseLedgerClose(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if evt.Sequence != 12345 {
		t.Errorf("sequence: got %d, want 12345", evt.Sequence)
	}
	if !evt.CloseTime.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("close time: got %v", evt.CloseTime)
	}
	if evt.BaseFee != 150 {
		t.Errorf("base fee: got %d, want 150", evt.BaseFee)
	}
	if evt.IdempotencyKey() != "close:12345" {
		t.Errorf("idempotency key: got %q, want close:12345", evt.IdempotencyKey())
	}
}

func TestParseLedgerClose_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"malformed json", `{"sequence":`},
		{"zero sequence", `{"sequence": 0, "close_time_us": 1700000000000000}`},
		{"missing close time", `{"sequence": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.ParseLedgerClose([]byte(tc.data)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseFeeSample(t *testing.T) {
	data := []byte(`{"timestamp_us": 1700000000000000, "base_fee": 275}`)

	sample, err := ingestion.ParseFeeSample(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sample.ObservedBaseFee != 275 {
		t.Errorf("base fee: got %d, want 275", sample.ObservedBaseFee)
	}
	if !sample.Timestamp.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", sample.Timestamp)
	}
}

func TestParseFeeSample_Invalid(t *testing.T) {
	if _, err := ingestion.ParseFeeSample([]byte(`{"base_fee": 10}`)); err == nil {
		t.Error("missing timestamp should fail")
	}
}
