package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/chronica-ai/platform/pkg/common/config"
	"github.com/chronica-ai/platform/pkg/common/httpclient"
	"github.com/chronica-ai/platform/pkg/common/models"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrTimeout marks an oracle call that exceeded its deadline. Retryable
	// up to the orchestrator's bound, then the inconsistency escalates.
	ErrTimeout = errors.New("oracle call timed out")

	// ErrMalformed marks a response missing required fields or failing to
	// parse. Counts as a failed attempt, never a crash.
	ErrMalformed = errors.New("oracle response malformed")
)

// Client queries the extraction oracle's review endpoint. Authentication uses
// OAuth2 client credentials when a token URL is configured; otherwise requests
// go out unauthenticated for local deployments.
type Client struct {
	baseURL string
	model   string
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg *config.Config) *Client {
	var httpClient *http.Client
	if cfg.OracleTokenURL != "" && cfg.OracleClientID != "" {
		credentials := clientcredentials.Config{
			ClientID:     cfg.OracleClientID,
			ClientSecret: cfg.OracleClientSecret,
			TokenURL:     cfg.OracleTokenURL,
		}
		httpClient = credentials.Client(context.Background())
		httpClient.Timeout = cfg.OracleTimeout
	} else {
		httpClient = httpclient.New(cfg.OracleTimeout)
	}

	return &Client{
		baseURL: cfg.OracleBaseURL,
		model:   cfg.OracleModelName,
		timeout: cfg.OracleTimeout,
		http:    httpClient,
	}
}

// Review submits one clarification request and returns the structured
// adjudication answer.
func (c *Client) Review(ctx context.Context, request models.OracleRequest) (*models.OracleResponse, error) {
	if request.Model == "" {
		request.Model = c.model
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling oracle request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/api/v1/review", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, string(respBody))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("reading oracle response: %w", err)
	}

	return ParseResponse(raw)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
