// Package settings reads and updates the user's dashboard preferences.
package settings

import (
	"context"
	"log"
	"net/http"

	"subsbuzz-client-go/internal/client"
	"subsbuzz-client-go/pkg/models"
)

// Service wraps the settings routes.
type Service struct {
	client *client.Client
	logger *log.Logger
}

// NewService creates a settings Service.
func NewService(c *client.Client, logger *log.Logger) *Service {
	return &Service{client: c, logger: logger}
}

// Get returns the current user settings.
func (s *Service) Get(ctx context.Context) (*models.UserSettings, error) {
	var out models.UserSettings
	if err := s.client.Execute(ctx, http.MethodGet, "/api/settings/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update applies a partial settings change and returns the new state.
func (s *Service) Update(ctx context.Context, patch models.UserSettings) (*models.UserSettings, error) {
	var out models.UserSettings
	if err := s.client.Execute(ctx, http.MethodPatch, "/api/settings/", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset restores the default settings.
func (s *Service) Reset(ctx context.Context) error {
	return s.client.Execute(ctx, http.MethodPost, "/api/settings/reset", nil, nil)
}

// Theme returns the display preferences.
func (s *Service) Theme(ctx context.Context) (*models.Theme, error) {
	var out models.Theme
	if err := s.client.Execute(ctx, http.MethodGet, "/api/settings/preferences/theme", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTheme applies a partial theme change.
func (s *Service) UpdateTheme(ctx context.Context, patch models.Theme) (*models.Theme, error) {
	var out models.Theme
	if err := s.client.Execute(ctx, http.MethodPatch, "/api/settings/preferences/theme", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
