// Package ownership resolves a vehicle identifier to its registered owner.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/store"
)

// Reasons an owner could not be resolved.
const (
	ReasonNoVehicleID     = "no_vehicle_id"
	ReasonVehicleNotFound = "vehicle_not_found"
	ReasonOwnerNotFound   = "owner_not_found"
)

// Store is the registry the resolver reads.
type Store interface {
	GetVehicle(ctx context.Context, vehicleNo string) (*models.Vehicle, error)
	GetOwner(ctx context.Context, ownerID string) (*models.Owner, error)
}

// Resolution is the outcome of a lookup. Owner is nil when unresolved and
// Reason says why.
type Resolution struct {
	VehicleNo string
	Vehicle   *models.Vehicle
	Owner     *models.Owner
	Reason    string
}

// Resolved reports whether an owner was found.
func (r *Resolution) Resolved() bool {
	return r.Owner != nil
}

// Resolver performs the vehicle -> owner lookup.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// Canonical normalises a plate for lookup: uppercase, no spaces or dashes.
func Canonical(vehicleNo string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, vehicleNo)
}

// Resolve looks up the owner of vehicleNo. Misses are soft and come back
// as an unresolved Resolution; only store failures return an error.
func (r *Resolver) Resolve(ctx context.Context, vehicleNo string) (*Resolution, error) {
	res := &Resolution{VehicleNo: Canonical(vehicleNo)}
	if res.VehicleNo == "" {
		res.Reason = ReasonNoVehicleID
		return res, nil
	}

	vehicle, err := r.store.GetVehicle(ctx, res.VehicleNo)
	if errors.Is(err, store.ErrNotFound) {
		res.Reason = ReasonVehicleNotFound
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup vehicle %s: %w", res.VehicleNo, err)
	}
	res.Vehicle = vehicle

	owner, err := r.store.GetOwner(ctx, vehicle.OwnerID)
	if errors.Is(err, store.ErrNotFound) {
		res.Reason = ReasonOwnerNotFound
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup owner %s: %w", vehicle.OwnerID, err)
	}
	res.Owner = owner
	return res, nil
}
