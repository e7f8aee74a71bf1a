package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/localspot/localspot/chatcore/internal/domain/knowledge"
	apperrors "github.com/localspot/localspot/chatcore/pkg/errors"
)

// ChangeListener is notified when a business edits its profile, so the
// knowledge index can be resynced before it is trusted again.
type ChangeListener func(businessID string)

// StaticSource is an in-process profile source for local development and
// tests. Profiles are set programmatically; every Put fires the change
// listeners.
type StaticSource struct {
	mu        sync.RWMutex
	profiles  map[string]*knowledge.BusinessProfile
	listeners []ChangeListener
	logger    *zap.Logger
}

// NewStaticSource creates an empty static profile source.
func NewStaticSource(logger *zap.Logger) *StaticSource {
	return &StaticSource{
		profiles: make(map[string]*knowledge.BusinessProfile),
		logger:   logger,
	}
}

// Snapshot implements knowledge.ProfileSource.
func (s *StaticSource) Snapshot(ctx context.Context, businessID string) (*knowledge.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[businessID]
	if !ok {
		// An unknown business simply has no indexable content yet.
		return &knowledge.BusinessProfile{BusinessID: businessID}, nil
	}
	cp := *p
	return &cp, nil
}

// Put stores a profile and notifies change listeners.
func (s *StaticSource) Put(profile *knowledge.BusinessProfile) {
	s.mu.Lock()
	cp := *profile
	cp.UpdatedAt = time.Now().UTC()
	s.profiles[profile.BusinessID] = &cp
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(profile.BusinessID)
	}
}

// OnChange registers a change listener.
func (s *StaticSource) OnChange(fn ChangeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// RemoteSource reads business profiles from the marketplace profile
// service over HTTP. Change notifications arrive out of band (webhook into
// the knowledge sync endpoint), so this source only pulls.
type RemoteSource struct {
	endpoint string
	client   *http.Client
}

// NewRemoteSource creates a profile source backed by an HTTP feed.
func NewRemoteSource(endpoint string) *RemoteSource {
	return &RemoteSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type profilePayload struct {
	BusinessID  string   `json:"business_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Services    []string `json:"services"`
	Hours       string   `json:"hours"`
	Specialties []string `json:"specialties"`
	Keywords    []string `json:"keywords"`
	UpdatedAt   string   `json:"updated_at"`
}

// Snapshot implements knowledge.ProfileSource.
func (s *RemoteSource) Snapshot(ctx context.Context, businessID string) (*knowledge.BusinessProfile, error) {
	url := fmt.Sprintf("%s/businesses/%s/profile", s.endpoint, businessID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to create profile request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("profile service unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NewNotFoundError("business profile not found")
	default:
		return nil, apperrors.NewInternalError(fmt.Sprintf("profile service returned status %d", resp.StatusCode))
	}

	var p profilePayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, apperrors.NewInternalErrorWithCause("failed to decode profile response", err)
	}

	updatedAt, _ := time.Parse(time.RFC3339, p.UpdatedAt)
	return &knowledge.BusinessProfile{
		BusinessID:  p.BusinessID,
		Name:        p.Name,
		Description: p.Description,
		Services:    p.Services,
		Hours:       p.Hours,
		Specialties: p.Specialties,
		Keywords:    p.Keywords,
		UpdatedAt:   updatedAt,
	}, nil
}
