package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/harborlab/mediastore/pkg/mediastore"
)

// RemoteVerifier delegates token verification to an external auth service
// over HTTP. A rejected token maps to ErrInvalidToken; any transport or
// server failure maps to ErrVerifierUnavailable, which callers surface as
// 503 rather than 401.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVerifier creates a verifier calling the given endpoint with a
// bounded per-request timeout.
func NewRemoteVerifier(endpoint string, timeout time.Duration) (*RemoteVerifier, error) {
	if endpoint == "" {
		return nil, errors.New("verifier endpoint is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", mediastore.ErrVerifierUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", mediastore.ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return uuid.Nil, fmt.Errorf("%w: malformed response: %v", mediastore.ErrVerifierUnavailable, err)
		}
		userID, err := uuid.Parse(body.UserID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: malformed user id: %v", mediastore.ErrVerifierUnavailable, err)
		}
		return userID, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return uuid.Nil, mediastore.ErrInvalidToken

	default:
		return uuid.Nil, fmt.Errorf("%w: verifier returned %d", mediastore.ErrVerifierUnavailable, resp.StatusCode)
	}
}
