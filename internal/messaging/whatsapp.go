package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// WhatsAppConfig configures the WhatsApp Cloud API adapter.
type WhatsAppConfig struct {
	BaseURL       string
	PhoneNumberID string
	AccessToken   string

	// Timeout bounds each HTTP call when the caller context has no deadline.
	Timeout time.Duration
}

// WhatsAppClient sends text messages through the WhatsApp Cloud API.
// It implements Messenger.
type WhatsAppClient struct {
	cfg  WhatsAppConfig
	http *http.Client
}

func NewWhatsAppClient(cfg WhatsAppConfig) (*WhatsAppClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("messaging: whatsapp base url is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, errors.New("messaging: whatsapp phone number id is required")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("messaging: whatsapp access token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type waSendRequest struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Text             waTextBody `json:"text"`
}

type waTextBody struct {
	Body string `json:"body"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type waStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type waErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Subcode int    `json:"error_subcode"`
	} `json:"error"`
}

func (c *WhatsAppClient) Send(ctx context.Context, contact, text string) (SendResult, error) {
	if strings.TrimSpace(contact) == "" {
		return SendResult{}, &TransportError{Code: CodeMalformedContact, Message: "empty contact"}
	}

	body, err := json.Marshal(waSendRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(contact, "+"),
		Type:             "text",
		Text:             waTextBody{Body: text},
	})
	if err != nil {
		return SendResult{}, err
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.PhoneNumberID)
	raw, status, err := c.do(ctx, http.MethodPost, url, body)
	if err != nil {
		return SendResult{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return SendResult{}, providerError(raw, status)
	}

	var resp waSendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SendResult{}, &TransportError{Code: CodeProvider, HTTPStatus: status, Message: "unreadable send response", Err: err}
	}
	if len(resp.Messages) == 0 || resp.Messages[0].ID == "" {
		return SendResult{}, &TransportError{Code: CodeProvider, HTTPStatus: status, Message: "send response without message id"}
	}
	return SendResult{ExternalMessageID: resp.Messages[0].ID}, nil
}

func (c *WhatsAppClient) GetStatus(ctx context.Context, externalID string) (StatusResult, error) {
	if externalID == "" {
		return StatusResult{}, errors.New("messaging: external message id is required")
	}

	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), externalID)
	raw, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusResult{}, err
	}
	if status != http.StatusOK {
		return StatusResult{}, providerError(raw, status)
	}

	var resp waStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return StatusResult{}, &TransportError{Code: CodeProvider, HTTPStatus: status, Message: "unreadable status response", Err: err}
	}
	return StatusResult{Status: resp.Status}, nil
}

func (c *WhatsAppClient) do(ctx context.Context, method, url string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classifyDialError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, &TransportError{Code: CodeNetwork, Message: "read response body", Err: err}
	}
	return raw, resp.StatusCode, nil
}

func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Code: CodeTimeout, Message: "request deadline exceeded", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TransportError{Code: CodeTimeout, Message: "request timed out", Err: err}
	}
	return &TransportError{Code: CodeNetwork, Message: "request failed", Err: err}
}

// providerError maps the Cloud API error envelope to a TransportError.
// Graph error code 100 (invalid parameter) and the 131xxx recipient codes mean
// the destination itself is unusable; retrying cannot help.
func providerError(raw []byte, status int) error {
	var env waErrorEnvelope
	_ = json.Unmarshal(raw, &env)

	code := CodeProvider
	switch env.Error.Code {
	case 100, 131026, 131030:
		code = CodeMalformedContact
	case 4, 80007, 130429:
		code = CodeRateLimited
	}
	if status == http.StatusTooManyRequests {
		code = CodeRateLimited
	}

	msg := env.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("provider returned %d", status)
	}
	return &TransportError{Code: code, HTTPStatus: status, Message: msg}
}
