package addressbook

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/carwash-booking/internal/apperr"
	"github.com/example/carwash-booking/internal/cache"
	"github.com/example/carwash-booking/internal/geocode"
	"github.com/example/carwash-booking/internal/models"
	"github.com/example/carwash-booking/internal/session"
)

type Store interface {
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	GetAddress(ctx context.Context, userID, id string) (models.Address, bool, error)
	InsertAddress(ctx context.Context, a models.Address) (models.Address, error)
	UpdateAddress(ctx context.Context, a models.Address) (models.Address, error)
	DeleteAddress(ctx context.Context, userID, id string) (bool, error)
	ClearDefaultAddresses(ctx context.Context, userID, exceptID string) error
	MarkDefaultAddress(ctx context.Context, userID, id string) (bool, error)
}

// defaultSwapper is implemented by stores that can move the default flag in
// one server-side statement.
type defaultSwapper interface {
	SwapDefaultAddress(ctx context.Context, userID, id string) (bool, error)
}

// Book manages the current user's saved addresses.
//
// Without a defaultSwapper store the single-default rule is kept by two
// sequential writes. Two default-setting calls racing each other can then
// leave zero or two defaults; a single completed call always leaves one.
type Book struct {
	Store    Store
	Identity session.Identity
	Loader   *cache.Loader
	TTL      time.Duration
	Geocoder geocode.Geocoder // optional
	Logger   *slog.Logger
}

func (b *Book) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

// List returns the user's addresses, default first, then most recently updated.
func (b *Book) List(ctx context.Context, useCache bool) ([]models.Address, error) {
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	as, err := cache.Load(ctx, b.Loader, cache.AddressesKey(userID), b.TTL, useCache, func(ctx context.Context) ([]models.Address, error) {
		return b.Store.ListAddresses(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	sortAddresses(as)
	return as, nil
}

// Get returns the address or ok=false when the user has no such address.
func (b *Book) Get(ctx context.Context, id string) (models.Address, bool, error) {
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return models.Address{}, false, err
	}
	return b.Store.GetAddress(ctx, userID, id)
}

func (b *Book) Create(ctx context.Context, in models.AddressInput, isDefault bool) (models.Address, error) {
	if err := validateInput(in); err != nil {
		return models.Address{}, err
	}
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return models.Address{}, err
	}
	if in.Type == "" {
		in.Type = models.AddressOther
	}
	loc := in.Location
	if loc == nil {
		loc = b.forwardGeocode(ctx, in)
	}
	a, err := b.Store.InsertAddress(ctx, models.Address{
		UserID:     userID,
		Label:      strings.TrimSpace(in.Label),
		Address:    strings.TrimSpace(in.Address),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Type:       in.Type,
		IsDefault:  isDefault,
		Location:   loc,
	})
	if err != nil {
		b.logger().Error("address insert failed", "user_id", userID, "error", err)
		return models.Address{}, err
	}
	defer b.invalidate(ctx, userID)
	if isDefault {
		if err := b.Store.ClearDefaultAddresses(ctx, userID, a.ID); err != nil {
			b.logger().Error("clearing previous default failed", "user_id", userID, "address_id", a.ID, "error", err)
			return a, err
		}
	}
	return a, nil
}

// SetDefault makes id the user's only default address.
func (b *Book) SetDefault(ctx context.Context, id string) error {
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	defer b.invalidate(ctx, userID)

	if sw, ok := b.Store.(defaultSwapper); ok {
		found, err := sw.SwapDefaultAddress(ctx, userID, id)
		if err != nil {
			return err
		}
		if !found {
			return notFound(id)
		}
		return nil
	}

	if _, ok, err := b.Store.GetAddress(ctx, userID, id); err != nil {
		return err
	} else if !ok {
		return notFound(id)
	}
	if err := b.Store.ClearDefaultAddresses(ctx, userID, ""); err != nil {
		return err
	}
	found, err := b.Store.MarkDefaultAddress(ctx, userID, id)
	if err != nil {
		b.logger().Error("marking default failed after clear, user has no default", "user_id", userID, "address_id", id, "error", err)
		return err
	}
	if !found {
		return notFound(id)
	}
	return nil
}

func (b *Book) Update(ctx context.Context, id string, p models.AddressPatch) (models.Address, error) {
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return models.Address{}, err
	}
	cur, ok, err := b.Store.GetAddress(ctx, userID, id)
	if err != nil {
		return models.Address{}, err
	}
	if !ok {
		return models.Address{}, notFound(id)
	}
	applyPatch(&cur, p)
	if err := validateInput(models.AddressInput{Label: cur.Label, Address: cur.Address, Type: cur.Type}); err != nil {
		return models.Address{}, err
	}
	// the flag moves through SetDefault so the single-default rule holds
	makeDefault := p.IsDefault != nil && *p.IsDefault && !cur.IsDefault
	updated, err := b.Store.UpdateAddress(ctx, cur)
	if err != nil {
		return models.Address{}, err
	}
	b.invalidate(ctx, userID)
	if makeDefault {
		if err := b.SetDefault(ctx, id); err != nil {
			return updated, err
		}
		updated.IsDefault = true
	}
	return updated, nil
}

func (b *Book) Delete(ctx context.Context, id string) error {
	userID, err := b.Identity.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	ok, err := b.Store.DeleteAddress(ctx, userID, id)
	if err != nil {
		return err
	}
	b.invalidate(ctx, userID)
	if !ok {
		return notFound(id)
	}
	return nil
}

func (b *Book) invalidate(ctx context.Context, userID string) {
	if err := b.Loader.Cache.Invalidate(ctx, cache.AddressesKey(userID)); err != nil {
		b.logger().Warn("address cache invalidate failed", "user_id", userID, "error", err)
	}
}

// forwardGeocode is best effort; a failed lookup leaves the address without coordinates.
func (b *Book) forwardGeocode(ctx context.Context, in models.AddressInput) *models.Coord {
	if b.Geocoder == nil {
		return nil
	}
	q := in.Address
	if in.City != "" {
		q += ", " + in.City
	}
	c, err := b.Geocoder.Forward(ctx, q)
	if err != nil {
		b.logger().Warn("geocoding failed, saving address without coordinates", "error", err)
		return nil
	}
	return c
}

func validateInput(in models.AddressInput) error {
	if strings.TrimSpace(in.Label) == "" {
		return apperr.Invalid("label", "required")
	}
	if strings.TrimSpace(in.Address) == "" {
		return apperr.Invalid("address", "required")
	}
	switch in.Type {
	case "", models.AddressHome, models.AddressWork, models.AddressOther:
	default:
		return apperr.Invalid("type", "must be home, work or other")
	}
	return nil
}

func applyPatch(a *models.Address, p models.AddressPatch) {
	if p.Label != nil {
		a.Label = strings.TrimSpace(*p.Label)
	}
	if p.Address != nil {
		a.Address = strings.TrimSpace(*p.Address)
	}
	if p.City != nil {
		a.City = strings.TrimSpace(*p.City)
	}
	if p.PostalCode != nil {
		a.PostalCode = strings.TrimSpace(*p.PostalCode)
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Location != nil {
		a.Location = p.Location
	}
	if p.IsDefault != nil && !*p.IsDefault {
		a.IsDefault = false
	}
}

func sortAddresses(as []models.Address) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].IsDefault != as[j].IsDefault {
			return as[i].IsDefault
		}
		return as[i].UpdatedAt.After(as[j].UpdatedAt)
	})
}

func notFound(id string) error {
	return fmt.Errorf("address %s: %w", id, apperr.ErrNotFound)
}
