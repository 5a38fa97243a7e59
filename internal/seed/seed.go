// Package seed loads the initial data set for a fresh repository from YAML.
package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"tirepos/backend/internal/domain"
	"tirepos/backend/internal/ledger"
)

//go:embed default.yaml
var defaultYAML []byte

type Data struct {
	Brands       []string              `yaml:"brands"`
	Users        []domain.User         `yaml:"users"`
	Stores       []domain.StoreAccount `yaml:"stores"`
	Products     []domain.Product      `yaml:"products"`
	Staff        []domain.Staff        `yaml:"staff"`
	Customers    []domain.Customer     `yaml:"customers"`
	Sales        []domain.Sale         `yaml:"sales"`
	Reservations []domain.Reservation  `yaml:"reservations"`
	Expenses     []domain.Expense      `yaml:"expenses"`
}

// Default returns the embedded demo data set.
func Default() (*Data, error) {
	return Parse(defaultYAML)
}

// LoadFile loads and validates a seed file from path.
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Data, error) {
	var data Data
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	data.normalize()
	return &data, nil
}

// Validate checks referential integrity of the data set. All problems are
// reported together.
func (d *Data) Validate() error {
	var errs []error

	users := make(map[string]domain.User, len(d.Users))
	for _, u := range d.Users {
		if strings.TrimSpace(u.ID) == "" {
			errs = append(errs, errors.New("user with empty id"))
			continue
		}
		if _, dup := users[u.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate user id %s", u.ID))
		}
		switch u.Role {
		case domain.RoleSuperAdmin, domain.RoleStoreAdmin:
		default:
			errs = append(errs, fmt.Errorf("user %s: unsupported role %q", u.ID, u.Role))
		}
		if u.Password == "" {
			errs = append(errs, fmt.Errorf("user %s: password is required", u.ID))
		}
		users[u.ID] = u
	}

	stores := make(map[string]struct{}, len(d.Stores))
	for _, st := range d.Stores {
		if _, dup := stores[st.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate store id %s", st.ID))
		}
		stores[st.ID] = struct{}{}
		owner, ok := users[st.OwnerID]
		if !ok || owner.Role != domain.RoleStoreAdmin {
			errs = append(errs, fmt.Errorf("store %s: owner %s is not a store admin", st.ID, st.OwnerID))
		}
	}

	for _, u := range d.Users {
		if u.HomeStoreID == "" {
			continue
		}
		if _, ok := stores[u.HomeStoreID]; !ok {
			errs = append(errs, fmt.Errorf("user %s: unknown home store %s", u.ID, u.HomeStoreID))
		}
	}

	products := make(map[string]struct{}, len(d.Products))
	for _, p := range d.Products {
		if _, dup := products[p.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate product id %s", p.ID))
		}
		products[p.ID] = struct{}{}
		for storeID, qty := range p.StockByStore {
			if _, ok := stores[storeID]; !ok {
				errs = append(errs, fmt.Errorf("product %s: unknown store %s", p.ID, storeID))
			}
			if qty < 0 {
				errs = append(errs, fmt.Errorf("product %s: negative stock at %s", p.ID, storeID))
			}
		}
	}

	for _, s := range d.Staff {
		if _, ok := stores[s.StoreID]; !ok {
			errs = append(errs, fmt.Errorf("staff %s: unknown store %s", s.ID, s.StoreID))
		}
	}
	for _, c := range d.Customers {
		if _, ok := users[c.OwnerID]; !ok {
			errs = append(errs, fmt.Errorf("customer %s: unknown owner %s", c.ID, c.OwnerID))
		}
	}
	for _, s := range d.Sales {
		if _, ok := stores[s.StoreID]; !ok {
			errs = append(errs, fmt.Errorf("sale %s: unknown store %s", s.ID, s.StoreID))
		}
	}
	for _, r := range d.Reservations {
		if _, ok := stores[r.StoreID]; !ok {
			errs = append(errs, fmt.Errorf("reservation %s: unknown store %s", r.ID, r.StoreID))
		}
	}
	for _, e := range d.Expenses {
		if _, ok := stores[e.StoreID]; !ok {
			errs = append(errs, fmt.Errorf("expense %s: unknown store %s", e.ID, e.StoreID))
		}
	}

	return errors.Join(errs...)
}

// normalize zero-fills every product for every store, recomputes totals and
// merges product brands into the brand list.
func (d *Data) normalize() {
	catalog := make([]*domain.Product, len(d.Products))
	for i := range d.Products {
		catalog[i] = &d.Products[i]
	}
	for _, st := range d.Stores {
		ledger.ZeroFillBranch(catalog, st.ID)
	}
	for _, p := range catalog {
		ledger.Recount(p)
	}

	seen := make(map[string]struct{}, len(d.Brands))
	brands := make([]string, 0, len(d.Brands))
	add := func(b string) {
		b = strings.TrimSpace(b)
		if b == "" {
			return
		}
		if _, ok := seen[b]; ok {
			return
		}
		seen[b] = struct{}{}
		brands = append(brands, b)
	}
	for _, b := range d.Brands {
		add(b)
	}
	for _, p := range d.Products {
		add(p.Brand)
	}
	sort.Strings(brands)
	d.Brands = brands

	for i := range d.Reservations {
		if d.Reservations[i].Status == "" {
			d.Reservations[i].Status = domain.ReservationPending
		}
		if d.Reservations[i].StockStatus == "" {
			d.Reservations[i].StockStatus = domain.StockStatusUnknown
		}
	}
}

// HashPassword hashes a seed password unless it already is a bcrypt hash.
func HashPassword(password string) (string, error) {
	if strings.HasPrefix(password, "$2") {
		return password, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
