package charts

import (
	"testing"
	"time"
)

func TestQueueChart(t *testing.T) {
	points, err := DecodeQueuePoints([]byte(`[
		{"timestamp":"2024-03-05T09:07:00Z","totalQueued":10,"retry":2,"failed":1},
		{"timestamp":"garbage","totalQueued":11,"retry":3,"failed":0},
		{"timestamp":"2024-03-05T09:12:00Z","totalQueued":12,"retry":4,"failed":2}
	]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	c := QueueChart(points, time.UTC, 0)
	if c.Kind != "line" || len(c.Datasets) != 3 {
		t.Fatalf("unexpected chart shape %+v", c)
	}
	if c.Labels[0] != "03-05 09:07" || c.Labels[1] != "Invalid" {
		t.Fatalf("unexpected labels %v", c.Labels)
	}
	if c.Datasets[1].Data[2] != 4 {
		t.Fatalf("unexpected retry series %v", c.Datasets[1].Data)
	}

	trimmed := QueueChart(points, time.UTC, 2)
	if len(trimmed.Labels) != 2 || trimmed.Labels[1] != "03-05 09:12" {
		t.Fatalf("expected newest 2 samples, got %v", trimmed.Labels)
	}
}

func TestMailChart(t *testing.T) {
	points, err := DecodeMailPoints([]byte(`[{"timestamp":"2024-03-05T09:00:00Z","sent":5,"received":7}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := MailChart(points, time.UTC, 0)
	if c.Kind != "bar" || c.Datasets[0].Data[0] != 5 || c.Datasets[1].Data[0] != 7 {
		t.Fatalf("unexpected chart %+v", c)
	}
}
