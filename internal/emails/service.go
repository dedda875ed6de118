// Package emails manages the monitored-email list through the API.
package emails

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"subsbuzz-client-go/internal/client"
	"subsbuzz-client-go/pkg/models"
)

// Service wraps the monitored-email routes.
type Service struct {
	client *client.Client
	logger *log.Logger
}

// NewService creates an emails Service.
func NewService(c *client.Client, logger *log.Logger) *Service {
	return &Service{client: c, logger: logger}
}

// List returns all monitored email addresses.
func (s *Service) List(ctx context.Context) ([]models.MonitoredEmail, error) {
	var out []models.MonitoredEmail
	if err := s.client.Execute(ctx, http.MethodGet, "/api/monitored-emails/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add registers a new address to monitor.
func (s *Service) Add(ctx context.Context, address, label string) (*models.MonitoredEmail, error) {
	if address == "" {
		return nil, fmt.Errorf("email address cannot be empty")
	}
	body := map[string]string{"email_address": address}
	if label != "" {
		body["label"] = label
	}
	var out models.MonitoredEmail
	if err := s.client.Execute(ctx, http.MethodPost, "/api/monitored-emails/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one monitored address by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.MonitoredEmail, error) {
	if id == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}
	var out models.MonitoredEmail
	if err := s.client.Execute(ctx, http.MethodGet, "/api/monitored-emails/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remove deletes a monitored address.
func (s *Service) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	return s.client.Execute(ctx, http.MethodDelete, "/api/monitored-emails/"+id, nil, nil)
}

// TriggerDigest asks the backend to generate a digest from the currently
// monitored addresses.
func (s *Service) TriggerDigest(ctx context.Context) error {
	return s.client.Execute(ctx, http.MethodPost, "/api/monitored-emails/trigger-digest", nil, nil)
}
