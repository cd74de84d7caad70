package cities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enricher schedules background enrichment for one city.
type Enricher interface {
	TriggerSingleEntity(id string)
}

// Service contains business logic for cities.
type Service struct {
	Repo     Repo
	Enricher Enricher
	Now      func() time.Time
}

// CreateInput carries the fields the trip-creation workflow provides.
type CreateInput struct {
	Name          string
	NameEn        string
	Country       string
	ExternalDocID string
}

// Create validates and stores a new city. Enrichment of the new record is
// picked up by the store-change watcher.
func (s *Service) Create(ctx context.Context, in CreateInput) (City, error) {
	name := strings.TrimSpace(in.Name)
	nameEn := strings.TrimSpace(in.NameEn)
	if name == "" && nameEn == "" {
		return City{}, fmt.Errorf("%w: name or nameEn is required", ErrInvalid)
	}
	if name == "" {
		name = nameEn
	}

	now := s.now()
	city := City{
		ID:            uuid.NewString(),
		ExternalDocID: StringPtr(in.ExternalDocID),
		Name:          name,
		NameEn:        nameEn,
		Country:       strings.TrimSpace(in.Country),
		LastUpdated:   now,
		CreatedAt:     now,
	}
	if err := s.Repo.Create(ctx, city); err != nil {
		return City{}, err
	}
	return city, nil
}

// Get returns a city by id.
func (s *Service) Get(ctx context.Context, id string) (City, error) {
	if strings.TrimSpace(id) == "" {
		return City{}, ErrNotFound
	}
	return s.Repo.GetByID(ctx, id)
}

// RequestEnrichment checks the city exists and schedules a single-entity run.
func (s *Service) RequestEnrichment(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if s.Enricher == nil {
		return fmt.Errorf("enrichment not configured")
	}
	s.Enricher.TriggerSingleEntity(id)
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
