package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway/domain"
	"go.uber.org/zap"
)

// HTTPClient talks to the mobile-money gateway merchant API. Requests are
// HMAC-signed over "<unix>.<body>" with the merchant API secret and carry a
// ULID idempotency key so gateway-side retries stay safe.
type HTTPClient struct {
	baseURL    string
	merchantID string
	apiSecret  string
	httpClient *http.Client
	log        *zap.Logger
	entropy    io.Reader
	now        func() time.Time
}

func NewHTTPClient(cfg config.Config, log *zap.Logger) domain.Client {
	timeout := time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.Gateway.BaseURL,
		merchantID: cfg.Gateway.MerchantID,
		apiSecret:  cfg.Gateway.APISecret,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.Named("gateway.client"),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:        time.Now,
	}
}

type registerCodeRequest struct {
	MerchantID string `json:"merchant_id"`
	Reference  string `json:"reference"`
	Amount     int64  `json:"amount"`
	MaxUses    int    `json:"max_uses"`
}

type registerCodeResponse struct {
	Code string `json:"code"`
}

func (c *HTTPClient) RegisterCode(ctx context.Context, req domain.RegisterCodeRequest) (*domain.RegisterCodeResponse, error) {
	body, err := json.Marshal(registerCodeRequest{
		MerchantID: c.merchantID,
		Reference:  req.Reference,
		Amount:     req.Amount,
		MaxUses:    req.MaxUses,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/codes", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.statusError(resp)
	}

	var decoded registerCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	if decoded.Code == "" {
		return nil, fmt.Errorf("%w: empty code in response", domain.ErrGatewayUnavailable)
	}
	return &domain.RegisterCodeResponse{Code: decoded.Code}, nil
}

func (c *HTTPClient) CancelCode(ctx context.Context, code string) error {
	body, err := json.Marshal(map[string]string{
		"merchant_id": c.merchantID,
		"code":        code,
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/codes/cancel", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Cancelling an unknown or already-cancelled code is a no-op.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return c.statusError(resp)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Merchant-Id", c.merchantID)
	req.Header.Set("X-Idempotency-Key", ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String())
	req.Header.Set("X-Signature", fmt.Sprintf("t=%s,v1=%s", timestamp, c.sign(timestamp, body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	return resp, nil
}

func (c *HTTPClient) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *HTTPClient) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.log.Warn("gateway returned error status",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", snippet),
	)
	return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, resp.StatusCode)
}
