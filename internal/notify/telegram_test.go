package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type botServer struct {
	srv    *httptest.Server
	chatID string
	text   string
	fail   bool
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	b := &botServer{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"ocr","username":"ocr_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if b.fail {
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			_ = r.ParseForm()
			b.chatID, b.text = r.FormValue("chat_id"), r.FormValue("text")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botServer) endpoint() string { return b.srv.URL + "/bot%s/%s" }

func TestTelegramNotify(t *testing.T) {
	b := newBotServer(t)
	n, err := NewTelegramWithEndpoint("token", 42, b.endpoint())
	if err != nil {
		t.Fatalf("NewTelegramWithEndpoint: %v", err)
	}
	if err := n.Notify(context.Background(), "run abc: 2 processed, 1 failed"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if b.chatID != "42" || b.text != "run abc: 2 processed, 1 failed" {
		t.Fatalf("sent chat=%q text=%q", b.chatID, b.text)
	}
}

func TestTelegramNotifyError(t *testing.T) {
	b := newBotServer(t)
	n, err := NewTelegramWithEndpoint("token", 42, b.endpoint())
	if err != nil {
		t.Fatal(err)
	}
	b.fail = true
	if err := n.Notify(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTelegramNotifyCancelled(t *testing.T) {
	n, err := NewTelegramWithEndpoint("token", 42, newBotServer(t).endpoint())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Notify(ctx, "x"); err == nil {
		t.Fatal("expected context error")
	}
}
