// Package seed loads registry fixtures (owners, vehicles, rules and
// operator accounts) into the store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/irisdrone/echallan/internal/ownership"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// UserFixture is an operator account with a plaintext password.
type UserFixture struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required,min=8"`
	Role     string `yaml:"role" validate:"omitempty,oneof=operator admin"`
}

// Fixtures is the document read from a fixtures file.
type Fixtures struct {
	Owners   []models.Owner   `yaml:"owners" validate:"dive"`
	Vehicles []models.Vehicle `yaml:"vehicles" validate:"dive"`
	Rules    []models.Rule    `yaml:"rules" validate:"dive"`
	Users    []UserFixture    `yaml:"users" validate:"dive"`
}

// Store is what seeding writes to.
type Store interface {
	UpsertOwner(ctx context.Context, owner *models.Owner) error
	UpsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	UpsertRule(ctx context.Context, rule *models.Rule) error
	UpsertUser(ctx context.Context, user *models.User) error
}

var validate = validator.New()

// Default returns the built-in demo fixtures.
func Default() (*Fixtures, error) {
	return Parse(defaultFixtures)
}

// LoadFile reads fixtures from path.
func LoadFile(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a fixtures document. Vehicle plates are
// canonicalised the same way the pipeline looks them up.
func Parse(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i := range f.Vehicles {
		f.Vehicles[i].VehicleNo = ownership.Canonical(f.Vehicles[i].VehicleNo)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field rules and cross references.
func (f *Fixtures) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid fixtures: %w", err)
	}

	owners := make(map[string]bool, len(f.Owners))
	for _, o := range f.Owners {
		owners[o.OwnerID] = true
	}
	for _, v := range f.Vehicles {
		if !owners[v.OwnerID] {
			return fmt.Errorf("invalid fixtures: vehicle %s references unknown owner %s", v.VehicleNo, v.OwnerID)
		}
	}
	seen := make(map[string]bool, len(f.Rules))
	for _, r := range f.Rules {
		if r.Penalty.IsNegative() {
			return fmt.Errorf("invalid fixtures: rule %s has a negative penalty", r.RuleID)
		}
		if seen[r.RuleID] {
			return fmt.Errorf("invalid fixtures: duplicate rule %s", r.RuleID)
		}
		seen[r.RuleID] = true
	}
	return nil
}

// Summary counts what Apply wrote.
type Summary struct {
	Owners, Vehicles, Rules, Users int
}

// Apply upserts every fixture. It is safe to run repeatedly.
func Apply(ctx context.Context, s Store, f *Fixtures, log logrus.FieldLogger) (*Summary, error) {
	log = log.WithField("component", "SEED")
	var sum Summary

	for i := range f.Owners {
		if err := s.UpsertOwner(ctx, &f.Owners[i]); err != nil {
			return nil, fmt.Errorf("seed owner %s: %w", f.Owners[i].OwnerID, err)
		}
		sum.Owners++
	}
	for i := range f.Vehicles {
		if err := s.UpsertVehicle(ctx, &f.Vehicles[i]); err != nil {
			return nil, fmt.Errorf("seed vehicle %s: %w", f.Vehicles[i].VehicleNo, err)
		}
		sum.Vehicles++
	}
	for i := range f.Rules {
		if err := s.UpsertRule(ctx, &f.Rules[i]); err != nil {
			return nil, fmt.Errorf("seed rule %s: %w", f.Rules[i].RuleID, err)
		}
		sum.Rules++
	}
	for _, u := range f.Users {
		hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.Username, err)
		}
		role := u.Role
		if role == "" {
			role = models.RoleOperator
		}
		if err := s.UpsertUser(ctx, &models.User{Username: u.Username, PasswordHash: string(hashed), Role: role}); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		sum.Users++
	}

	log.WithFields(logrus.Fields{
		"owners":   sum.Owners,
		"vehicles": sum.Vehicles,
		"rules":    sum.Rules,
		"users":    sum.Users,
	}).Info("Fixtures applied")
	return &sum, nil
}
