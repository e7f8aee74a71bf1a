package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/localspot/localspot/chatcore/internal/domain/valueobject"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// TokenVerifier resolves a bearer credential into a verified actor.
// Session issuance, expiry and revocation live entirely in the external
// identity service; the chat core treats the contract as opaque.
type TokenVerifier interface {
	// Verify returns the actor for a token, or an Unauthenticated error.
	Verify(ctx context.Context, token string) (valueobject.Actor, error)
}

// StaticVerifier maps fixed tokens to actors. For local development and
// tests only.
type StaticVerifier struct {
	tokens map[string]valueobject.Actor
}

// NewStaticVerifier creates a verifier from a token → actor map.
func NewStaticVerifier(tokens map[string]valueobject.Actor) *StaticVerifier {
	if tokens == nil {
		tokens = make(map[string]valueobject.Actor)
	}
	return &StaticVerifier{tokens: tokens}
}

// Verify implements TokenVerifier.
func (v *StaticVerifier) Verify(ctx context.Context, token string) (valueobject.Actor, error) {
	actor, ok := v.tokens[token]
	if !ok {
		return valueobject.Actor{}, apperrors.NewUnauthenticatedError("unknown token")
	}
	return actor, nil
}

// RemoteVerifier delegates verification to the marketplace identity service
// over HTTP.
type RemoteVerifier struct {
	endpoint string
	client   *http.Client
}

// NewRemoteVerifier creates a verifier backed by an identity endpoint.
func NewRemoteVerifier(endpoint string) *RemoteVerifier {
	return &RemoteVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	ActorID   string `json:"actor_id"`
	ActorType string `json:"actor_type"`
}

// Verify implements TokenVerifier.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (valueobject.Actor, error) {
	body, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return valueobject.Actor{}, apperrors.NewInternalErrorWithCause("failed to encode verify request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return valueobject.Actor{}, apperrors.NewInternalErrorWithCause("failed to create verify request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return valueobject.Actor{}, apperrors.NewInternalErrorWithCause("identity service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return valueobject.Actor{}, apperrors.NewUnauthenticatedError("token rejected by identity service")
	default:
		return valueobject.Actor{}, apperrors.NewInternalError(fmt.Sprintf("identity service returned status %d", resp.StatusCode))
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return valueobject.Actor{}, apperrors.NewInternalErrorWithCause("failed to decode verify response", err)
	}

	actorType := valueobject.ActorType(vr.ActorType)
	if vr.ActorID == "" || !actorType.IsValid() || actorType == valueobject.ActorTypeAI {
		return valueobject.Actor{}, apperrors.NewUnauthenticatedError("identity service returned an invalid actor")
	}
	return valueobject.NewActor(vr.ActorID, actorType), nil
}
