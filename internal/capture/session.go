// Package capture provides the session layer binding the pipeline to the
// identity and site collaborators of the embedding shell.
package capture

import (
	"context"

	apperrors "github.com/fieldclock/fieldclock/internal/errors"
	"github.com/fieldclock/fieldclock/internal/models"
)

// IdentityProvider resolves the operator behind the current device session.
// Resolution is external; the core never authenticates anyone itself.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (models.Identity, error)
}

// SiteLookup lists the work sites available for selection. The core treats
// the list as read-only reference data.
type SiteLookup interface {
	Sites(ctx context.Context) ([]models.Site, error)
}

// Session lets shells carry only a selected site id across the UI boundary;
// identity and site are resolved through the collaborators at capture time.
type Session struct {
	provider IdentityProvider
	sites    SiteLookup
	pipeline *Pipeline
}

// NewSession creates a capture session over the given collaborators.
func NewSession(provider IdentityProvider, sites SiteLookup, pipeline *Pipeline) *Session {
	return &Session{
		provider: provider,
		sites:    sites,
		pipeline: pipeline,
	}
}

// Capture resolves the current identity and the selected site, then runs one
// capture attempt end to end.
func (s *Session) Capture(ctx context.Context, siteID string) (*models.AttendanceEvent, error) {
	identity, err := s.provider.CurrentIdentity(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "failed to resolve identity", err)
	}

	site, err := ResolveSite(ctx, s.sites, siteID)
	if err != nil {
		return nil, err
	}

	return s.pipeline.Run(ctx, identity, site)
}

// ResolveSite finds one site by id through a lookup. An id not in the lookup
// is a validation failure, same as no selection at all.
func ResolveSite(ctx context.Context, lookup SiteLookup, siteID string) (models.Site, error) {
	if siteID == "" {
		return models.Site{}, apperrors.New(apperrors.ErrValidation, "no site selected")
	}

	sites, err := lookup.Sites(ctx)
	if err != nil {
		return models.Site{}, apperrors.Wrap(apperrors.ErrValidation, "failed to list sites", err)
	}
	for _, site := range sites {
		if site.ID == siteID {
			return site, nil
		}
	}
	return models.Site{}, apperrors.Newf(apperrors.ErrValidation, "unknown site %q", siteID)
}
