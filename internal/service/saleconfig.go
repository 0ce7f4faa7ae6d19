package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/riazm868/pharmacy-rx-manager-sub000/internal/domain"
	"github.com/riazm868/pharmacy-rx-manager-sub000/pkg/logger"
)

// Outcome tags how a lookup was satisfied.
type Outcome string

const (
	Resolved Outcome = "resolved"
	Degraded Outcome = "degraded"
)

// Lookup is the result of one sale-config lookup. Err is set only when
// Outcome is Degraded and explains the fallback Value.
type Lookup[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

func resolved[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v, Outcome: Resolved}
}

func degraded[T any](v T, err error) Lookup[T] {
	return Lookup[T]{Value: v, Outcome: Degraded, Err: err}
}

// Degradation records a lookup that fell back to a default.
type Degradation struct {
	Lookup string `json:"lookup"`
	Reason string `json:"reason"`
}

// Resolution is a resolved sale configuration and the fallbacks used for it.
type Resolution struct {
	Config   domain.SaleConfig `json:"config"`
	Degraded []Degradation     `json:"degraded"`
}

// SaleConfigSource is the platform data the resolver reads.
type SaleConfigSource interface {
	Registers(ctx context.Context) ([]domain.Register, error)
	Users(ctx context.Context) ([]domain.User, error)
	Taxes(ctx context.Context) ([]domain.Tax, error)
	RetailerSettings(ctx context.Context) (domain.RetailerSettings, error)
}

// SaleConfigResolver finds the register, user and tax used for parked sales.
// A missing register or user is fatal; tax and pricing fall back to safe
// defaults. The first successful resolution is cached until Reset.
type SaleConfigResolver struct {
	source       SaleConfigSource
	registerName string
	userName     string
	logger       *slog.Logger

	mu     sync.Mutex
	cached *Resolution
}

// NewSaleConfigResolver creates a resolver matching registerName and userName.
func NewSaleConfigResolver(source SaleConfigSource, registerName, userName string, logger *slog.Logger) *SaleConfigResolver {
	return &SaleConfigResolver{
		source:       source,
		registerName: registerName,
		userName:     userName,
		logger:       logger,
	}
}

// Reset drops the cached resolution.
func (r *SaleConfigResolver) Reset() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// Resolve returns the cached resolution or performs the lookups.
func (r *SaleConfigResolver) Resolve(ctx context.Context) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return *r.cached, nil
	}

	register, err := r.resolveRegister(ctx)
	if err != nil {
		return Resolution{}, err
	}
	user, err := r.resolveUser(ctx)
	if err != nil {
		return Resolution{}, err
	}
	tax := r.resolveTax(ctx)
	exclusive := r.resolveTaxExclusive(ctx)

	res := Resolution{
		Config: domain.SaleConfig{
			RegisterID:   register.ID,
			RegisterName: register.Name,
			UserID:       user.ID,
			UserName:     userDisplayName(user),
			TaxID:        tax.Value.ID,
			TaxName:      tax.Value.Name,
			TaxRate:      tax.Value.Rate,
			TaxExclusive: exclusive.Value,
		},
		Degraded: []Degradation{},
	}

	log := logger.WithContext(ctx, r.logger)
	note := func(lookup string, outcome Outcome, reason error) {
		if outcome != Degraded {
			return
		}
		res.Degraded = append(res.Degraded, Degradation{Lookup: lookup, Reason: reason.Error()})
		log.WarnContext(ctx, "sale config lookup degraded",
			slog.String("lookup", lookup),
			slog.String("reason", reason.Error()),
		)
	}
	note("tax", tax.Outcome, tax.Err)
	note("tax_exclusive", exclusive.Outcome, exclusive.Err)

	r.cached = &res
	return res, nil
}

func (r *SaleConfigResolver) resolveRegister(ctx context.Context) (domain.Register, error) {
	registers, err := r.source.Registers(ctx)
	if err != nil {
		return domain.Register{}, fmt.Errorf("list registers: %w", err)
	}

	available := make([]string, 0, len(registers))
	for _, reg := range registers {
		if reg.Name == r.registerName {
			return reg, nil
		}
		available = append(available, reg.Name)
	}
	return domain.Register{}, &domain.RegisterNotFoundError{Expected: r.registerName, Available: available}
}

func (r *SaleConfigResolver) resolveUser(ctx context.Context) (domain.User, error) {
	users, err := r.source.Users(ctx)
	if err != nil {
		return domain.User{}, fmt.Errorf("list users: %w", err)
	}

	available := make([]string, 0, len(users))
	for _, u := range users {
		if u.DisplayName != "" && u.DisplayName == r.userName {
			return u, nil
		}
		if pair := strings.TrimSpace(u.FirstName + " " + u.LastName); pair != "" && pair == r.userName {
			return u, nil
		}
		available = append(available, userDisplayName(u))
	}
	return domain.User{}, &domain.UserNotFoundError{Expected: r.userName, Available: available}
}

func userDisplayName(u domain.User) string {
	return firstNonEmpty(u.DisplayName, strings.TrimSpace(u.FirstName+" "+u.LastName), u.Username, u.ID)
}

func (r *SaleConfigResolver) resolveTax(ctx context.Context) Lookup[domain.Tax] {
	taxes, err := r.source.Taxes(ctx)
	if err != nil {
		return degraded(domain.NoTax(), fmt.Errorf("list taxes: %w", err))
	}
	if len(taxes) == 0 {
		return degraded(domain.NoTax(), errors.New("account has no taxes configured"))
	}

	chosen := taxes[0]
	for _, t := range taxes {
		if t.IsDefault {
			chosen = t
			break
		}
	}
	if chosen.Rate.IsNegative() {
		err := fmt.Errorf("tax %q has negative rate %s", chosen.Name, chosen.Rate)
		chosen.Rate = domain.NoTax().Rate
		return degraded(chosen, err)
	}
	return resolved(chosen)
}

func (r *SaleConfigResolver) resolveTaxExclusive(ctx context.Context) Lookup[bool] {
	settings, err := r.source.RetailerSettings(ctx)
	if err != nil {
		return degraded(false, fmt.Errorf("retailer settings: %w", err))
	}
	return resolved(settings.TaxExclusive)
}
