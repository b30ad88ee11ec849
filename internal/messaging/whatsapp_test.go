package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *WhatsAppClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewWhatsAppClient(WhatsAppConfig{
		BaseURL:       srv.URL,
		PhoneNumberID: "123456",
		AccessToken:   "token",
		Timeout:       2 * time.Second,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestWhatsAppSend_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123456/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req waSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.To != "5491155550000" || req.Text.Body != "hola" {
			t.Errorf("unexpected payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(waSendResponse{Messages: []struct {
			ID string `json:"id"`
		}{{ID: "wamid.abc"}}})
	})

	res, err := c.Send(context.Background(), "+5491155550000", "hola")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.ExternalMessageID != "wamid.abc" {
		t.Fatalf("unexpected id %q", res.ExternalMessageID)
	}
}

func TestWhatsAppSend_MalformedContactIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"(#131026) Receiver is not a valid WhatsApp user","code":131026}}`))
	})

	_, err := c.Send(context.Background(), "+000", "hola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsRetryable(err) {
		t.Fatalf("malformed contact must not be retryable: %v", err)
	}
}

func TestWhatsAppSend_RateLimitIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit hit","code":130429}}`))
	})

	_, err := c.Send(context.Background(), "+5491155550000", "hola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("rate limit must be retryable: %v", err)
	}
}

func TestWhatsAppSend_ServerErrorIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Send(context.Background(), "+5491155550000", "hola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsRetryable(err) {
		t.Fatalf("5xx must be retryable: %v", err)
	}
}

func TestWhatsAppSend_TimeoutIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "+5491155550000", "hola")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !IsRetryable(err) {
		t.Fatalf("timeout must be retryable: %v", err)
	}
}

func TestWhatsAppSend_EmptyContactRejectedLocally(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request must not reach provider")
	})

	_, err := c.Send(context.Background(), "  ", "hola")
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected permanent local rejection, got %v", err)
	}
}

func TestWhatsAppGetStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wamid.abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"wamid.abc","status":"delivered"}`))
	})

	res, err := c.GetStatus(context.Background(), "wamid.abc")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if res.Status != "delivered" {
		t.Fatalf("unexpected status %q", res.Status)
	}
}

func TestIsRetryable_DefaultsToRetryable(t *testing.T) {
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline exceeded must be retryable")
	}
	if !IsRetryable(&TransportError{Code: "weird_new_code"}) {
		t.Fatalf("unknown transport codes default to retryable")
	}
	// A 4xx rejection without a recognized code could be a transient
	// provider-side condition (auth blip, temporary block). Only a
	// malformed contact is terminal on the first attempt.
	for _, status := range []int{400, 403, 404} {
		if !IsRetryable(&TransportError{HTTPStatus: status}) {
			t.Fatalf("uncoded %d must default to retryable", status)
		}
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not an error")
	}
}
