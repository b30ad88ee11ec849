package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace-messaging/internal/audit"
	"marketplace-messaging/internal/contacts"
	"marketplace-messaging/internal/dispatch"
	"marketplace-messaging/internal/eventbus"
	"marketplace-messaging/internal/ingest"
	"marketplace-messaging/internal/intent"
	"marketplace-messaging/internal/interaction"
	"marketplace-messaging/internal/messaging"
	"marketplace-messaging/internal/reporting"

	"github.com/gin-gonic/gin"
)

var t0 = time.Unix(1700000000, 0).UTC()

type stubMessenger struct{}

func (stubMessenger) Send(context.Context, string, string) (messaging.SendResult, error) {
	return messaging.SendResult{ExternalMessageID: "ext-stub"}, nil
}

func (stubMessenger) GetStatus(context.Context, string) (messaging.StatusResult, error) {
	return messaging.StatusResult{}, nil
}

type apiFixture struct {
	router *gin.Engine
	store  *interaction.MemoryStore
}

func newAPIFixture(t *testing.T, webhookSecret string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := interaction.NewMemoryStore()
	anomalies := audit.NewService(audit.NewMemoryRepo(), nil)
	resolver := contacts.NewMemoryResolver()
	resolver.Set("s1", interaction.DirectionToCounterparty, "+54911")

	h := Handlers{
		Delivery:   ingest.NewDeliveryIngestor(store, nil, anomalies, nil),
		Replies:    ingest.NewReplyPipeline(store, intent.NewClassifier(), eventbus.New(nil), nil, anomalies, nil),
		Store:      store,
		Worker:     dispatch.NewWorker(dispatch.Config{}, store, stubMessenger{}, resolver, nil, nil, anomalies, nil),
		Classifier: intent.NewClassifier(),
		Reports:    reporting.NewService(reporting.NewMemoryRepo(store)),
	}

	r := gin.New()
	cb := r.Group("/callbacks", RequireWebhookSignature(webhookSecret))
	cb.POST("/delivery-status", h.DeliveryStatusCallback)
	cb.POST("/inbound-message", h.InboundMessageCallback)
	r.GET("/internal/interactions/:id", h.GetInteraction)
	r.GET("/internal/reports/interactions", h.InteractionReport)
	r.POST("/internal/dispatch/run", h.RunDispatch)
	r.POST("/internal/intent/reload", h.ReloadIntentPacks)

	return &apiFixture{router: r, store: store}
}

func (f *apiFixture) seedSent(t *testing.T, externalID string) interaction.Interaction {
	t.Helper()
	it := interaction.New("s1", interaction.TypeFollowUp, interaction.DirectionToCounterparty,
		"WHATSAPP", "tpl", "hola", t0, t0)
	if err := it.MarkSent(externalID, "+54911", t0); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	stored, err := f.store.Save(context.Background(), it)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return stored
}

func postJSON(r *gin.Engine, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeliveryCallback_TransitionsInteraction(t *testing.T) {
	f := newAPIFixture(t, "")
	seeded := f.seedSent(t, "wamid.1")

	body, _ := json.Marshal(map[string]string{"externalMessageId": "wamid.1", "rawStatus": "delivered"})
	w := postJSON(f.router, "/callbacks/delivery-status", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := f.store.FindByID(context.Background(), seeded.ID)
	if got.Status != interaction.StatusDelivered {
		t.Fatalf("expected delivered, got %s", got.Status)
	}
}

func TestDeliveryCallback_UnknownIDStillAccepted(t *testing.T) {
	f := newAPIFixture(t, "")
	body, _ := json.Marshal(map[string]string{"externalMessageId": "nope", "rawStatus": "delivered"})
	if w := postJSON(f.router, "/callbacks/delivery-status", body, nil); w.Code != http.StatusOK {
		t.Fatalf("unknown id must not make the provider retry, got %d", w.Code)
	}
}

func TestDeliveryCallback_RejectsBadPayload(t *testing.T) {
	f := newAPIFixture(t, "")
	if w := postJSON(f.router, "/callbacks/delivery-status", []byte("{"), nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", w.Code)
	}
	body, _ := json.Marshal(map[string]string{"rawStatus": "delivered"})
	if w := postJSON(f.router, "/callbacks/delivery-status", body, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", w.Code)
	}
}

func TestInboundCallback_RecordsResponse(t *testing.T) {
	f := newAPIFixture(t, "")
	seeded := f.seedSent(t, "wamid.1")

	body, _ := json.Marshal(map[string]string{
		"fromContact":       "+54911",
		"messageText":       "sí, gracias",
		"externalInboundId": "wamid.in.1",
	})
	if w := postJSON(f.router, "/callbacks/inbound-message", body, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	got, _ := f.store.FindByID(context.Background(), seeded.ID)
	if got.Status != interaction.StatusResponded || got.ResponseIntent != intent.IntentConfirmed {
		t.Fatalf("expected responded/CONFIRMED, got %s/%s", got.Status, got.ResponseIntent)
	}
}

func TestWebhookSignature_Enforced(t *testing.T) {
	f := newAPIFixture(t, "hook-secret")
	f.seedSent(t, "wamid.1")
	body, _ := json.Marshal(map[string]string{"externalMessageId": "wamid.1", "rawStatus": "delivered"})

	if w := postJSON(f.router, "/callbacks/delivery-status", body, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned request must be rejected, got %d", w.Code)
	}
	bad := map[string]string{"X-Hub-Signature-256": "sha256=deadbeef"}
	if w := postJSON(f.router, "/callbacks/delivery-status", body, bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature must be rejected, got %d", w.Code)
	}
	good := map[string]string{"X-Hub-Signature-256": SignHex("hook-secret", body)}
	if w := postJSON(f.router, "/callbacks/delivery-status", body, good); w.Code != http.StatusOK {
		t.Fatalf("valid signature must pass, got %d: %s", w.Code, w.Body.String())
	}
}

func TestVerifySubscription_Handshake(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/callbacks", VerifySubscription("verify-me"))

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/callbacks?"+query, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := get("hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345")
	if w.Code != http.StatusOK || w.Body.String() != "12345" {
		t.Fatalf("expected challenge echo, got %d %q", w.Code, w.Body.String())
	}
	if w := get("hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345"); w.Code != http.StatusForbidden {
		t.Fatalf("wrong token must be rejected, got %d", w.Code)
	}
	if w := get("hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345"); w.Code != http.StatusForbidden {
		t.Fatalf("wrong mode must be rejected, got %d", w.Code)
	}
}

func TestGetInteraction(t *testing.T) {
	f := newAPIFixture(t, "")
	seeded := f.seedSent(t, "wamid.1")

	req := httptest.NewRequest(http.MethodGet, "/internal/interactions/"+seeded.ID, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/interactions/missing", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestRunDispatch_SendsPending(t *testing.T) {
	f := newAPIFixture(t, "")
	it := interaction.New("s1", interaction.TypeFollowUp, interaction.DirectionToCounterparty,
		"WHATSAPP", "tpl", "hola", t0, t0)
	stored, _ := f.store.Save(context.Background(), it)

	w := postJSON(f.router, "/internal/dispatch/run", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	got, _ := f.store.FindByID(context.Background(), stored.ID)
	if got.Status != interaction.StatusSent {
		t.Fatalf("expected sent after triggered cycle, got %s", got.Status)
	}
}

func TestInteractionReport(t *testing.T) {
	f := newAPIFixture(t, "")
	f.seedSent(t, "wamid.1")

	from := t0.Add(-time.Hour).Format(time.RFC3339)
	to := t0.Add(time.Hour).Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodGet, "/internal/reports/interactions?from="+from+"&to="+to, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sum reporting.InteractionSummary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Total != 1 || sum.Sent != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/reports/interactions?from=bogus&to="+to, nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamps, got %d", w.Code)
	}
}

func TestReloadIntentPacks_WithoutDirConflicts(t *testing.T) {
	f := newAPIFixture(t, "")
	if w := postJSON(f.router, "/internal/intent/reload", nil, nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 without a pack dir, got %d", w.Code)
	}
}
