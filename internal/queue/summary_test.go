package queue

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want Class
	}{
		{"Retry (connection error)", ClassRetry},
		{"RETRY", ClassRetry},
		{"Failed", ClassFailed},
		{"Deferred by remote", ClassFailed},
		{"451 4.4.0 DNS ERROR", ClassFailed},
		{"Ready", ClassOther},
		{"Active", ClassOther},
		{"", ClassOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]string{"Retry (connection error)", "Failed", "Ready", "deferred", "Active", "retry"})
	want := Summary{Total: 6, Retry: 2, Failed: 2, Other: 2}
	if got != want {
		t.Fatalf("Summarize = %+v, want %+v", got, want)
	}
	if got.Retry+got.Failed+got.Other != got.Total {
		t.Fatalf("buckets must add up to total")
	}
}

func TestSummarize_Empty(t *testing.T) {
	if got := Summarize(nil); got != (Summary{}) {
		t.Fatalf("expected zero summary, got %+v", got)
	}
}
