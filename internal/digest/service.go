// Package digest provides typed access to the digest endpoints of the
// SubsBuzz API on top of the authenticated request pipeline.
package digest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"subsbuzz-client-go/internal/client"
	"subsbuzz-client-go/pkg/models"
)

// prefetchConcurrency caps parallel requests when loading many digests.
const prefetchConcurrency = 4

// Service wraps the digest routes.
type Service struct {
	client *client.Client
	logger *log.Logger
}

// NewService creates a digest Service.
func NewService(c *client.Client, logger *log.Logger) *Service {
	return &Service{client: c, logger: logger}
}

// Latest fetches the most recent digest.
func (s *Service) Latest(ctx context.Context) (*models.Digest, error) {
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodGet, "/api/digest/latest", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Detailed fetches the most recent digest with full per-topic content.
func (s *Service) Detailed(ctx context.Context) (*models.Digest, error) {
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodGet, "/api/digest/detailed", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// History fetches up to limit past digests, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]models.Digest, error) {
	var out []models.Digest
	err := s.client.Execute(ctx, http.MethodGet, "/api/digest/history", nil, &out,
		client.WithQuery("limit", strconv.Itoa(limit)))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByDate fetches the digest for a specific date (YYYY-MM-DD).
func (s *Service) ByDate(ctx context.Context, date string) (*models.Digest, error) {
	if date == "" {
		return nil, fmt.Errorf("date cannot be empty")
	}
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodGet, "/api/digest/date/"+date, nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AvailableDates lists the dates for which a digest exists.
func (s *Service) AvailableDates(ctx context.Context) ([]string, error) {
	var dates []string
	if err := s.client.Execute(ctx, http.MethodGet, "/api/digest/available-dates", nil, &dates); err != nil {
		return nil, err
	}
	return dates, nil
}

// Create builds a digest from caller-supplied emails.
func (s *Service) Create(ctx context.Context, emails []map[string]any) (*models.Digest, error) {
	if len(emails) == 0 {
		return nil, fmt.Errorf("emails cannot be empty")
	}
	body := map[string]any{"emails": emails}
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodPost, "/api/digest/create", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ProcessThematic groups the supplied emails into themed topics. A positive
// emailDigestID attaches the result to an existing digest.
func (s *Service) ProcessThematic(ctx context.Context, emails []map[string]any, emailDigestID int) (*models.Digest, error) {
	if len(emails) == 0 {
		return nil, fmt.Errorf("emails cannot be empty")
	}
	body := map[string]any{"emails": emails}
	if emailDigestID > 0 {
		body["emailDigestId"] = emailDigestID
	}
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodPost, "/api/digest/thematic/process", body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Generate asks the backend to build a fresh digest now.
func (s *Service) Generate(ctx context.Context) (*models.Digest, error) {
	var d models.Digest
	if err := s.client.Execute(ctx, http.MethodPost, "/api/digest/generate", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Stats fetches digest statistics.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	var stats map[string]int
	if err := s.client.Execute(ctx, http.MethodGet, "/api/digest/stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// PrefetchDates loads the digests for several dates concurrently, with a
// fixed concurrency cap. The first error aborts outstanding fetches.
func (s *Service) PrefetchDates(ctx context.Context, dates []string) (map[string]*models.Digest, error) {
	results := make(map[string]*models.Digest, len(dates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(prefetchConcurrency)

	for _, date := range dates {
		date := date
		g.Go(func() error {
			d, err := s.ByDate(gctx, date)
			if err != nil {
				return fmt.Errorf("digest for %s: %w", date, err)
			}
			mu.Lock()
			results[date] = d
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
