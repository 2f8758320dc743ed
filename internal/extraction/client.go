package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Yicong-Lin-213/AilyCart/internal/receipt"
)

const (
	processReceiptPath = "/api/v1/process-receipt"

	// maxResponseSize bounds how much of a response body is read
	maxResponseSize = 4 << 20
)

// ErrStatus is returned when the extraction service answers with a non-success status
var ErrStatus = errors.New("extraction service error")

// Client calls the remote receipt extraction endpoint
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client. A zero timeout disables the client-side deadline.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("extraction service URL is required")
	}

	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// processRequest is the request body for the process-receipt endpoint
type processRequest struct {
	ImageURL string `json:"image_url"`
}

// Analyze asks the service to extract a receipt from a publicly reachable image.
// Shape errors wrap receipt.ErrInvalidShape; transport and status errors do not.
func (c *Client) Analyze(ctx context.Context, imageURL string) (*receipt.Receipt, error) {
	jsonData, err := json.Marshal(processRequest{ImageURL: imageURL})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processReceiptPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := receipt.ErrorDetail(body)
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return nil, fmt.Errorf("%w (status %d): %s", ErrStatus, resp.StatusCode, detail)
	}

	data, err := receipt.ParseEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("parsing receipt data: %w", err)
	}

	return data, nil
}
