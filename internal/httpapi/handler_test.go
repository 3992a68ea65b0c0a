package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"offersync/internal/models"
	"offersync/internal/offers"
	"offersync/internal/state"
)

// stubBackend serves a fixed offer row set and records call counts.
type stubBackend struct {
	mu        sync.Mutex
	rows      []models.OfferRow
	listCalls int
	listErr   error
	limits    models.LimitsRow
	limitsErr error
	respond   []string
}

func (b *stubBackend) OfferList(_ context.Context, _, _ string) ([]models.OfferRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls++
	return b.rows, b.listErr
}

func (b *stubBackend) OfferView(_ context.Context, _, _ string) ([]models.OfferRow, error) {
	return nil, errors.New("network error")
}

func (b *stubBackend) OfferLimits(_ context.Context, _, _, _ string) (models.LimitsRow, error) {
	return b.limits, b.limitsErr
}

func (b *stubBackend) CreateOffer(_ context.Context, _ models.CreateOfferRequest) (models.CreateOfferReply, error) {
	return models.CreateOfferReply{OfferID: "off-1", ExpiresAt: "2030-01-01T00:00:00Z"}, nil
}

func (b *stubBackend) RespondOffer(_ context.Context, offerID string, accept bool, _ string) (models.RespondReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	verb := "reject"
	if accept {
		verb = "accept"
	}
	b.respond = append(b.respond, verb+":"+offerID)
	return models.RespondReply{}, nil
}

func (b *stubBackend) CancelOffer(_ context.Context, _ string) error     { return nil }
func (b *stubBackend) ReserveOffer(_ context.Context, _, _ string) error { return nil }
func (b *stubBackend) DeleteOffer(_ context.Context, _ string) error     { return nil }
func (b *stubBackend) PriceTiers(_ context.Context, _ string, _ int64, _ float64) (models.TierValidation, error) {
	return models.TierValidation{Valid: true}, nil
}

func newTestServer(b *stubBackend) *httptest.Server {
	engine := offers.New(offers.Config{Backend: b, State: state.New()})
	return httptest.NewServer(NewServer(NewHandler(engine)).Router)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestBuyerOffersEndpoint(t *testing.T) {
	b := &stubBackend{rows: []models.OfferRow{
		{ID: "o1", Status: "accepted", ExpiresAt: "2030-01-01T00:00:00Z"},
	}}
	srv := newTestServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/offers/buyer/buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decode[offersResponse](t, resp)
	if len(body.Offers) != 1 || body.Offers[0].Status != models.OfferApproved {
		t.Fatalf("body = %+v", body)
	}

	// A second read is served from cache; force=true bypasses it.
	if _, err := http.Get(srv.URL + "/offers/buyer/buyer-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := http.Get(srv.URL + "/offers/buyer/buyer-1?force=true"); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listCalls != 2 {
		t.Fatalf("backend list calls = %d, want 2", b.listCalls)
	}
}

func TestBuyerOffersFailure(t *testing.T) {
	b := &stubBackend{listErr: errors.New("database error: connection refused")}
	srv := newTestServer(b)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/offers/buyer/buyer-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateOfferEndpoint(t *testing.T) {
	srv := newTestServer(&stubBackend{limits: models.LimitsRow{Allowed: true}})
	defer srv.Close()

	body, _ := json.Marshal(models.CreateOfferRequest{
		BuyerID: "b1", SupplierID: "s1", ProductID: "p1", Price: 100, Quantity: 5,
	})
	resp, err := http.Post(srv.URL+"/offers/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	reply := decode[models.CreateOfferReply](t, resp)
	if reply.OfferID != "off-1" {
		t.Fatalf("reply = %+v", reply)
	}

	// Invalid payloads are rejected before touching the backend.
	resp, err = http.Post(srv.URL+"/offers/", "application/json", bytes.NewReader([]byte(`{"price":0}`)))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateOfferLimitDenied(t *testing.T) {
	srv := newTestServer(&stubBackend{limits: models.LimitsRow{Allowed: false, Reason: "limit reached"}})
	defer srv.Close()

	body, _ := json.Marshal(models.CreateOfferRequest{
		BuyerID: "b1", SupplierID: "s1", ProductID: "p1", Price: 100, Quantity: 5,
	})
	resp, err := http.Post(srv.URL+"/offers/", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestRespondEndpoints(t *testing.T) {
	b := &stubBackend{}
	srv := newTestServer(b)
	defer srv.Close()

	for _, verb := range []string{"accept", "reject"} {
		resp, err := http.Post(srv.URL+"/offers/off-1/"+verb, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", verb, resp.StatusCode)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.respond) != 2 || b.respond[0] != "accept:off-1" || b.respond[1] != "reject:off-1" {
		t.Fatalf("respond calls = %v", b.respond)
	}
}

func TestDeleteOfferEndpoint(t *testing.T) {
	srv := newTestServer(&stubBackend{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/offers/off-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestValidateLimitsFailsOpenOverHTTP(t *testing.T) {
	srv := newTestServer(&stubBackend{limitsErr: errors.New("limits check down")})
	defer srv.Close()

	body := []byte(`{"buyer_id":"b1","supplier_id":"s1","product_id":"p1"}`)
	resp, err := http.Post(srv.URL+"/offers/validate-limits", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	result := decode[models.LimitsResult](t, resp)
	if !result.Allowed || result.Err == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubBackend{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
