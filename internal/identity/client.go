package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors for identity provider API failures.
var (
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
	ErrIdentityRejected    = errors.New("identity provider rejected the request")
)

// Invitation asks the provider to email a sign-up link.
type Invitation struct {
	Email      string
	TenantSlug string
	Role       string
}

// Inviter sends dashboard invitations.
type Inviter interface {
	Invite(ctx context.Context, inv Invitation) (string, error)
}

// Client calls the identity provider's backend REST API.
type Client struct {
	http        *resty.Client
	redirectURL string
}

type invitationRequest struct {
	EmailAddress   string         `json:"email_address"`
	RedirectURL    string         `json:"redirect_url,omitempty"`
	PublicMetadata map[string]any `json:"public_metadata"`
	Notify         bool           `json:"notify"`
}

type invitationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiErrors struct {
	Errors []struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		LongMessage string `json:"long_message"`
	} `json:"errors"`
}

func (e *apiErrors) String() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, x := range e.Errors {
		if x.LongMessage != "" {
			msgs = append(msgs, x.LongMessage)
		} else {
			msgs = append(msgs, x.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// NewClient creates an API client authenticated with the secret key.
func NewClient(baseURL, secretKey, redirectURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetAuthToken(secretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: client, redirectURL: redirectURL}
}

// Invite creates an invitation and returns its provider id. The tenant slug
// and role travel in public metadata so the later user.created webhook can be
// matched to the pending user.
func (c *Client) Invite(ctx context.Context, inv Invitation) (string, error) {
	var (
		result invitationResponse
		apiErr apiErrors
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(invitationRequest{
			EmailAddress: inv.Email,
			RedirectURL:  c.redirectURL,
			PublicMetadata: map[string]any{
				"tenant": inv.TenantSlug,
				"role":   inv.Role,
			},
			Notify: true,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1/invitations")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	switch {
	case resp.StatusCode() >= http.StatusInternalServerError:
		return "", fmt.Errorf("%w: status %d", ErrIdentityUnavailable, resp.StatusCode())
	case resp.IsError():
		return "", fmt.Errorf("%w: %s", ErrIdentityRejected, apiErr.String())
	}
	return result.ID, nil
}
