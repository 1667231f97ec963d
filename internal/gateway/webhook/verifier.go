package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/farebox/internal/config"
	"github.com/smallbiznis/farebox/internal/gateway/domain"
)

// SignatureHeader carries `t=<unix>,v1=<hex hmac>` computed over
// "<unix>.<body>" with the shared webhook secret.
const SignatureHeader = "X-Gateway-Signature"

const signatureTolerance = 5 * time.Minute

type Verifier struct {
	secret string
	now    func() time.Time
}

func NewVerifier(cfg config.Config) domain.Verifier {
	return &Verifier{
		secret: cfg.Gateway.WebhookSecret,
		now:    time.Now,
	}
}

// NewVerifierAt pins the clock used for timestamp tolerance. Test helper.
func NewVerifierAt(secret string, now func() time.Time) domain.Verifier {
	return &Verifier{secret: secret, now: now}
}

func (v *Verifier) Verify(payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" || v.secret == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > signatureTolerance || drift < -signatureTolerance {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(v.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

type gatewayEvent struct {
	EventID    string `json:"event_id"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Amount     int64  `json:"amount"`
	PayerPhone string `json:"payer_phone"`
	OccurredAt int64  `json:"occurred_at"`
}

func (v *Verifier) Parse(payload []byte) (*domain.ConfirmationEvent, error) {
	var event gatewayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidEvent
	}
	if strings.TrimSpace(event.EventID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	if strings.TrimSpace(event.Type) != "payment.confirmed" {
		return nil, domain.ErrEventIgnored
	}
	if strings.TrimSpace(event.Code) == "" || event.Amount <= 0 {
		return nil, domain.ErrInvalidEvent
	}

	occurredAt := time.Unix(event.OccurredAt, 0).UTC()
	if event.OccurredAt == 0 {
		occurredAt = v.now().UTC()
	}

	return &domain.ConfirmationEvent{
		EventID:    strings.TrimSpace(event.EventID),
		Code:       strings.TrimSpace(event.Code),
		Amount:     event.Amount,
		PayerPhone: strings.TrimSpace(event.PayerPhone),
		OccurredAt: occurredAt,
		RawPayload: payload,
	}, nil
}

func parseSignature(header string) (string, []string, error) {
	var timestamp string
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			timestamp = pair[1]
		case "v1":
			signatures = append(signatures, pair[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}
