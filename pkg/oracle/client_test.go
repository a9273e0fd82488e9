package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chronica-ai/platform/pkg/common/config"
	"github.com/chronica-ai/platform/pkg/common/models"
)

func testClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(&config.Config{
		OracleBaseURL:   baseURL,
		OracleModelName: "reviewer-test",
		OracleTimeout:   timeout,
	})
}

func TestClientReview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/review" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var request models.OracleRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if request.Model != "reviewer-test" {
			t.Errorf("model = %s, want default from client", request.Model)
		}
		w.Write([]byte(validBody))
	}))
	defer server.Close()

	response, err := testClient(server.URL, 2*time.Second).Review(context.Background(), models.OracleRequest{
		InconsistencyID: "inc-1",
		Kind:            "duplicate",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.RecommendedAction != ActionMarkDuplicate {
		t.Fatalf("action = %s", response.RecommendedAction)
	}
}

func TestClientReviewTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(validBody))
	}))
	defer server.Close()

	_, err := testClient(server.URL, 50*time.Millisecond).Review(context.Background(), models.OracleRequest{})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClientReviewMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rationale": "missing everything else"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, 2*time.Second).Review(context.Background(), models.OracleRequest{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestClientReviewServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL, 2*time.Second).Review(context.Background(), models.OracleRequest{})
	if err == nil {
		t.Fatal("expected error for 503")
	}
}
