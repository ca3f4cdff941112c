package store

import (
	"context"
	"strings"

	"fleet-monitor/locintel/internal/domain"
	"fleet-monitor/locintel/internal/errors"
)

// Seeder is the write surface Seed needs.
type Seeder interface {
	GetOwner(ctx context.Context, id string) (*domain.Owner, error)
	CreateOwner(ctx context.Context, o *domain.Owner) error
	CreateEntity(ctx context.Context, e *domain.TrackedEntity) error
}

// ParseSeedEntry decodes "ownerID:entityID[:Display Name]".
func ParseSeedEntry(entry string) (domain.TrackedEntity, error) {
	parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return domain.TrackedEntity{}, errors.InvalidInputf("seed entry %q: want owner:entity[:name]", entry)
	}
	e := domain.TrackedEntity{OwnerID: parts[0], ID: parts[1], DisplayName: parts[1]}
	if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
		e.DisplayName = strings.TrimSpace(parts[2])
	}
	return e, nil
}

// Seed creates the owners and entities named by entries. Owners that already
// exist are left untouched; seeded owners have anomaly checks enabled.
func Seed(ctx context.Context, s Seeder, entries []string) (int, error) {
	n := 0
	for _, entry := range entries {
		e, err := ParseSeedEntry(entry)
		if err != nil {
			return n, err
		}

		_, err = s.GetOwner(ctx, e.OwnerID)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			if err := s.CreateOwner(ctx, &domain.Owner{ID: e.OwnerID, DisplayName: e.OwnerID, AnomalyEnabled: true}); err != nil {
				return n, err
			}
		case err != nil:
			return n, err
		}

		if err := s.CreateEntity(ctx, &e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
