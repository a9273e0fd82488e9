package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chronica-ai/platform/pkg/common/httpclient"
	"github.com/chronica-ai/platform/pkg/common/logger"
	"github.com/chronica-ai/platform/pkg/common/models"
)

// ErrEvidenceUnavailable means no document collaborator could be reached.
// The orchestrator proceeds with structured context only; this never fails a
// resolution attempt on its own.
var ErrEvidenceUnavailable = errors.New("document collaborator unavailable")

// Client talks to one document index collaborator (binary-file index or note
// index). The collaborator is a black box that may return zero candidates,
// candidates without dates, and the same logical document in several formats.
type Client struct {
	baseURL string
	source  string
	http    *http.Client
}

func NewClient(baseURL, source string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		source:  source,
		http:    httpclient.New(timeout),
	}
}

func (c *Client) Source() string { return c.source }

// FindDocuments returns candidate records whose classification overlaps the
// date window.
func (c *Client) FindDocuments(ctx context.Context, patientID string, from, to time.Time, typeFilter string) ([]models.DocumentRef, error) {
	query := url.Values{}
	query.Set("patient_id", patientID)
	query.Set("from", from.UTC().Format("2006-01-02"))
	query.Set("to", to.UTC().Format("2006-01-02"))
	if typeFilter != "" {
		query.Set("type", typeFilter)
	}

	endpoint := fmt.Sprintf("%s/api/v1/documents?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating document query: %w", err)
	}

	var refs []models.DocumentRef
	err = httpclient.Retry(ctx, 2, 200*time.Millisecond, func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			refs = nil
			return nil
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("document index returned %d", resp.StatusCode)
		}

		var body struct {
			Documents []models.DocumentRef `json:"documents"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decoding document list: %w", err)
		}
		refs = body.Documents
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("source", c.source).Warn("document collaborator unreachable")
		return nil, fmt.Errorf("%w: %s: %v", ErrEvidenceUnavailable, c.source, err)
	}

	return refs, nil
}
