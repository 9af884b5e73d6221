package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"innkeep/pkg/model"
)

// GuestResolver answers "what guest type is this user" by asking the
// membership service. The engine treats the answer as an opaque input and
// falls back to REGULAR when the user is unknown.
type GuestResolver interface {
	GuestType(ctx context.Context, userID string) (string, error)
}

type guestResolver struct {
	httpClient *HttpClient
}

func NewGuestResolver(baseURL string) GuestResolver {
	return &guestResolver{
		httpClient: NewHttpClient(baseURL),
	}
}

func (c *guestResolver) GuestType(ctx context.Context, userID string) (string, error) {
	path := "/api/v1/members/" + url.PathEscape(userID) + "/guest-type"
	resp, err := c.httpClient.GET(ctx, path)
	if err != nil {
		return "", fmt.Errorf("guest type lookup failed: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return model.GuestRegular, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("guest type lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		GuestType string `json:"guest_type"`
	}
	if err := resp.DecodeJSON(&payload); err != nil {
		return "", fmt.Errorf("could not decode guest type response: %w", err)
	}

	switch payload.GuestType {
	case model.GuestRegular, model.GuestVIP, model.GuestCorporate:
		return payload.GuestType, nil
	default:
		return "", fmt.Errorf("unknown guest type %q for user %s", payload.GuestType, userID)
	}
}

// StaticGuestResolver serves fixed guest types, for tests and local runs
// without a membership service.
type StaticGuestResolver map[string]string

func (s StaticGuestResolver) GuestType(_ context.Context, userID string) (string, error) {
	if gt, ok := s[userID]; ok {
		return gt, nil
	}
	return model.GuestRegular, nil
}
