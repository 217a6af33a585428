package postgres

import (
	"database/sql/driver"
	"testing"

	"playrelay/internal/event"
)

func TestArgs_UnpublishedEventHasNullPosition(t *testing.T) {
	a := args(event.TrackEvent{Key: "t1", Payload: []byte(`{"id":"t1"}`)})
	if len(a) != 5 {
		t.Fatalf("want 5 args, got %d", len(a))
	}
	if a[0] != "t1" || a[1] != `{"id":"t1"}` {
		t.Fatalf("unexpected key/document args: %v", a[:2])
	}
	for i := 2; i < 5; i++ {
		v, ok := a[i].(driver.Valuer)
		if !ok {
			t.Fatalf("arg %d: want driver.Valuer, got %T", i, a[i])
		}
		if got, _ := v.Value(); got != nil {
			t.Fatalf("arg %d should be NULL, got %v", i, got)
		}
	}
}

func TestInsertSQL_QuotesTable(t *testing.T) {
	d := New(nil, "CurrentlyPlayingRecords")
	want := `INSERT INTO "CurrentlyPlayingRecords" (track_id, document, topic, kafka_partition, kafka_offset)
		VALUES ($1, $2, $3, $4, $5)`
	if got := d.insertSQL(); got != want {
		t.Fatalf("unexpected sql:\n%s", got)
	}
}
