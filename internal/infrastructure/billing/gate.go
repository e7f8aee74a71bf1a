package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// AllowAllGate grants auto-response to every business. Used when the
// deployment does not gate the feature by plan tier.
type AllowAllGate struct{}

// NewAllowAllGate creates a gate that always allows.
func NewAllowAllGate() *AllowAllGate {
	return &AllowAllGate{}
}

// AllowsAutoResponse implements service.BillingGate.
func (g *AllowAllGate) AllowsAutoResponse(ctx context.Context, businessID string) (bool, error) {
	return true, nil
}

// RemoteGate asks the billing service whether a business's subscription
// includes auto-response.
type RemoteGate struct {
	endpoint string
	client   *http.Client
}

// NewRemoteGate creates a gate backed by the billing service.
func NewRemoteGate(endpoint string) *RemoteGate {
	return &RemoteGate{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type capabilityResponse struct {
	Allowed bool `json:"allowed"`
}

// AllowsAutoResponse implements service.BillingGate.
func (g *RemoteGate) AllowsAutoResponse(ctx context.Context, businessID string) (bool, error) {
	url := fmt.Sprintf("%s/businesses/%s/capabilities/auto-response", g.endpoint, businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, apperrors.NewInternalErrorWithCause("failed to create billing request", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false, apperrors.NewInternalErrorWithCause("billing service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, apperrors.NewInternalError(fmt.Sprintf("billing service returned status %d", resp.StatusCode))
	}

	var cr capabilityResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return false, apperrors.NewInternalErrorWithCause("failed to decode billing response", err)
	}
	return cr.Allowed, nil
}
