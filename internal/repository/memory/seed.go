package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/config"
	"github.com/jwalitptl/homecare-api/internal/model"
)

// Seed loads the configured dev catalog and providers. Entries without an id
// get a random one; providers may only reference services seeded here.
func Seed(ctx context.Context, s *Store, dev config.DevConfig, now time.Time) error {
	ids := make(map[string]uuid.UUID, len(dev.Services))
	for _, d := range dev.Services {
		svc := &model.Service{
			Base:            model.NewBase(now),
			Name:            d.Name,
			Category:        d.Category,
			DurationMinutes: d.DurationMinutes,
			Price:           d.Price,
			Active:          true,
		}
		if err := parseSeedID(d.ID, &svc.ID); err != nil {
			return fmt.Errorf("service %q: %w", d.Name, err)
		}
		if err := s.Catalog().Create(ctx, svc); err != nil {
			return fmt.Errorf("failed to seed service %q: %w", d.Name, err)
		}
		if d.ID != "" {
			ids[d.ID] = svc.ID
		}
	}

	for _, d := range dev.Providers {
		p := &model.Provider{
			Base:      model.NewBase(now),
			FullName:  d.FullName,
			Email:     d.Email,
			Available: true,
		}
		if err := parseSeedID(d.ID, &p.ID); err != nil {
			return fmt.Errorf("provider %q: %w", d.FullName, err)
		}
		if err := s.Providers().Create(ctx, p); err != nil {
			return fmt.Errorf("failed to seed provider %q: %w", d.FullName, err)
		}
		for _, ref := range d.ServiceIDs {
			serviceID, ok := ids[ref]
			if !ok {
				return fmt.Errorf("provider %q references unknown service %q", d.FullName, ref)
			}
			if _, err := s.ProviderServices().Add(ctx, p.ID, serviceID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseSeedID(raw string, dst *uuid.UUID) error {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", raw, err)
	}
	*dst = id
	return nil
}
