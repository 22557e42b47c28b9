package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	r := New()
	r.File("processed")
	r.File("processed")
	r.File("failed")
	r.StageFailure("Recognized")
	r.RunDuration(1500 * time.Millisecond)

	if got := testutil.ToFloat64(r.files.WithLabelValues("processed")); got != 2 {
		t.Errorf("processed = %v", got)
	}
	if got := testutil.ToFloat64(r.files.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v", got)
	}
	if got := testutil.ToFloat64(r.failures.WithLabelValues("Recognized")); got != 1 {
		t.Errorf("stage failures = %v", got)
	}
	if got := testutil.ToFloat64(r.duration); got != 1.5 {
		t.Errorf("duration = %v", got)
	}
	if n := testutil.CollectAndCount(r.files); n != 2 {
		t.Errorf("series = %d", n)
	}
}

func TestPush(t *testing.T) {
	var (
		path, method string
		body         string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path, method = req.URL.Path, req.Method
		b, _ := io.ReadAll(req.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.File("processed")
	if err := r.Push(context.Background(), srv.URL); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != http.MethodPut || path != "/metrics/job/"+Job {
		t.Fatalf("got %s %s", method, path)
	}
	if !strings.Contains(body, "driveocr_files_total") {
		t.Fatal("pushed body lacks the files counter")
	}
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if err := New().Push(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
}
