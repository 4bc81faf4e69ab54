package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Webhook header names.
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const (
	secretPrefix     = "whsec_"
	defaultTolerance = 5 * time.Minute
)

// WebhookVerifier authenticates webhook deliveries: each carries an HMAC-SHA256
// over "id.timestamp.body" keyed with the shared secret.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier decodes a "whsec_<base64>" secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil || len(key) == 0 {
		return nil, errors.New("webhook secret must be whsec_ followed by base64")
	}
	return &WebhookVerifier{secret: key, tolerance: defaultTolerance, now: time.Now}, nil
}

// WithClock overrides the time source; used by tests.
func (w *WebhookVerifier) WithClock(now func() time.Time) *WebhookVerifier {
	w.now = now
	return w
}

// Sign returns the signature header value for a delivery.
func (w *WebhookVerifier) Sign(id string, ts time.Time, body []byte) string {
	return "v1," + w.mac(id, strconv.FormatInt(ts.Unix(), 10), body)
}

func (w *WebhookVerifier) mac(id, ts string, body []byte) string {
	h := hmac.New(sha256.New, w.secret)
	h.Write([]byte(id))
	h.Write([]byte("."))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Verify checks the delivery headers against body.
func (w *WebhookVerifier) Verify(h http.Header, body []byte) error {
	id, ts, sigs := h.Get(HeaderID), h.Get(HeaderTimestamp), h.Get(HeaderSignature)
	if id == "" || ts == "" || sigs == "" {
		return fmt.Errorf("%w: missing headers", ErrInvalidSignature)
	}

	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := w.now().Sub(time.Unix(secs, 0))
	if age > w.tolerance || age < -w.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := []byte(w.mac(id, ts, body))
	for _, candidate := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// UserEvent is a decoded user.created delivery.
type UserEvent struct {
	Type       string
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	// TenantHint is the slug the user signed up for, if any.
	TenantHint string
	// HintTrusted is set when TenantHint came from server-written public
	// metadata (invitations) rather than client-writable unsafe metadata.
	HintTrusted bool
}

type webhookPayload struct {
	Type string `json:"type"`
	Data struct {
		ID             string  `json:"id"`
		FirstName      *string `json:"first_name"`
		LastName       *string `json:"last_name"`
		PrimaryEmailID string  `json:"primary_email_address_id"`
		EmailAddresses []struct {
			ID           string `json:"id"`
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
		PublicMetadata map[string]any `json:"public_metadata"`
		UnsafeMetadata map[string]any `json:"unsafe_metadata"`
	} `json:"data"`
}

// EventUserCreated is the only event type acted on.
const EventUserCreated = "user.created"

// ParseUserEvent decodes a webhook body. Events other than user.created
// return ErrUnsupportedEvent with the event type set.
func ParseUserEvent(body []byte) (*UserEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev := &UserEvent{Type: p.Type}
	if p.Type != EventUserCreated {
		return ev, ErrUnsupportedEvent
	}

	d := p.Data
	ev.ExternalID = d.ID
	for _, e := range d.EmailAddresses {
		if e.ID == d.PrimaryEmailID || ev.Email == "" {
			ev.Email = e.EmailAddress
		}
	}
	if d.FirstName != nil {
		ev.FirstName = *d.FirstName
	}
	if d.LastName != nil {
		ev.LastName = *d.LastName
	}
	ev.TenantHint = metadataString(d.PublicMetadata, "tenant")
	ev.HintTrusted = ev.TenantHint != ""
	if ev.TenantHint == "" {
		ev.TenantHint = metadataString(d.UnsafeMetadata, "tenant")
	}

	if ev.ExternalID == "" || ev.Email == "" {
		return nil, fmt.Errorf("%w: user id and email are required", ErrMalformedEvent)
	}
	return ev, nil
}

func metadataString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.ToLower(strings.TrimSpace(s))
}
