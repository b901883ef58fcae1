package usage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL:   baseURL,
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())
}

func TestFetchUsageEmptyToken(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	_, err := c.FetchUsage(context.Background(), "")
	if err == nil {
		t.Fatal("空 token 应返回错误")
	}
	if KindOf(err) != KindNotAuthenticated {
		t.Fatalf("kind = %s, want not_authenticated", KindOf(err))
	}
}

func TestFetchUsageSuccess(t *testing.T) {
	resetFive := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("anthropic-beta"); got != defaultBeta {
			t.Errorf("anthropic-beta = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"five_hour": map[string]any{"utilization": 42.5, "resets_at": resetFive},
			"seven_day": map[string]any{"utilization": 13.0, "resets_at": resetFive.Add(72 * time.Hour)},
		})
	}))
	defer srv.Close()

	snap, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !snap.FiveHourPercent.Equal(decimal.NewFromFloat(42.5)) {
		t.Errorf("five hour pct = %s, want 42.5", snap.FiveHourPercent)
	}
	if !snap.WeeklyPercent.Equal(decimal.NewFromFloat(13.0)) {
		t.Errorf("weekly pct = %s, want 13", snap.WeeklyPercent)
	}
	if !snap.FiveHourResetsAt.Equal(resetFive) {
		t.Errorf("five hour reset = %s, want %s", snap.FiveHourResetsAt, resetFive)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("captured_at should be set")
	}
}

func TestFetchUsageTokenRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
		srv.Close()
		if err == nil {
			t.Fatalf("HTTP %d 应返回错误", status)
		}
		if KindOf(err) != KindAuth {
			t.Errorf("HTTP %d kind = %s, want auth", status, KindOf(err))
		}
	}
}

func TestFetchUsageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %s, want network", KindOf(err))
	}
}

func TestFetchUsageConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse everything

	_, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
	if err == nil {
		t.Fatal("拒绝连接应返回错误")
	}
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %s, want network", KindOf(err))
	}
}

func TestFetchUsageUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
	if KindOf(err) != KindMalformed {
		t.Fatalf("kind = %s, want malformed", KindOf(err))
	}
}

func TestFetchUsageOutOfRangeUtilization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"five_hour": map[string]any{"utilization": 120.0},
			"seven_day": map[string]any{"utilization": 10.0},
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchUsage(context.Background(), "tok")
	if KindOf(err) != KindMalformed {
		t.Fatalf("超出范围的 utilization 应判定为 malformed, got %s", KindOf(err))
	}
}

func TestKindOfUntypedError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindNetwork {
		t.Fatalf("untyped error kind = %s, want network", got)
	}
}

func TestSnapshotValidate(t *testing.T) {
	ok := Snapshot{
		FiveHourPercent: decimal.NewFromInt(100),
		WeeklyPercent:   decimal.Zero,
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("boundary values should validate: %v", err)
	}

	bad := Snapshot{
		FiveHourPercent: decimal.NewFromInt(10),
		WeeklyPercent:   decimal.NewFromInt(-1),
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("negative utilization should fail validation")
	}
}
