// Package scenario loads checkout runs described in YAML and replays them against a
// store.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/checkout-lane/internal/common"
	"github.com/noah-isme/checkout-lane/internal/customer"
	"github.com/noah-isme/checkout-lane/internal/inventory"
	"github.com/noah-isme/checkout-lane/internal/settlement"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("scenario: invalid")

// Scenario describes one store run: what is on the shelves, which lanes are open, who
// queues where and with what.
type Scenario struct {
	Name      string           `yaml:"name"`
	Mode      string           `yaml:"mode"`
	Inventory []inventory.Item `yaml:"inventory" validate:"dive"`
	Lanes     []Lane           `yaml:"lanes" validate:"required,min=1,dive"`
	Customers []Customer       `yaml:"customers" validate:"dive"`
	// Delist names items pulled from the shelves after carts are filled but before
	// anyone queues.
	Delist []string `yaml:"delist"`
	// Restock arrives after everyone has queued and before settlement starts.
	Restock []inventory.Item `yaml:"restock" validate:"dive"`
}

// Lane is an open lane and the float in its register.
type Lane struct {
	ID            string          `yaml:"id" validate:"required"`
	RegisterFunds decimal.Decimal `yaml:"registerFunds" validate:"gte=0"`
}

// Customer is a shopper and what they do before settlement.
type Customer struct {
	Name       string              `yaml:"name" validate:"required"`
	Lane       string              `yaml:"lane" validate:"required"`
	Funds      decimal.Decimal     `yaml:"funds" validate:"gte=0"`
	Preference customer.Preference `yaml:"preference"`
	Cart       []Line              `yaml:"cart" validate:"dive"`
	Discard    []string            `yaml:"discard"`
	Exit       bool                `yaml:"exit"`
}

// Line is one cart entry referencing an inventory item by name.
type Line struct {
	Item     string          `yaml:"item" validate:"required"`
	Quantity decimal.Decimal `yaml:"quantity" validate:"gt=0"`
}

// Load parses and validates a scenario.
func Load(r io.Reader) (*Scenario, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("scenario: read: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads a scenario from path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(sc.Name) == "" {
		sc.Name = path
	}
	return sc, nil
}

// Validate checks field constraints and cross references.
func (s *Scenario) Validate() error {
	if err := common.ValidateStruct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.Mode != "" {
		if _, err := settlement.ParseMode(s.Mode); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	items := make(map[string]struct{}, len(s.Inventory))
	for _, it := range s.Inventory {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: inventory: %v", ErrInvalid, err)
		}
		if _, dup := items[it.Name]; dup {
			return fmt.Errorf("%w: inventory item %q listed twice", ErrInvalid, it.Name)
		}
		items[it.Name] = struct{}{}
	}
	for _, it := range s.Restock {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("%w: restock: %v", ErrInvalid, err)
		}
	}
	for _, name := range s.Delist {
		if _, ok := items[name]; !ok {
			return fmt.Errorf("%w: delist of unknown item %q", ErrInvalid, name)
		}
	}

	lanes := make(map[string]struct{}, len(s.Lanes))
	for _, l := range s.Lanes {
		if l.RegisterFunds.IsNegative() {
			return fmt.Errorf("%w: lane %s: negative register funds", ErrInvalid, l.ID)
		}
		if _, dup := lanes[l.ID]; dup {
			return fmt.Errorf("%w: lane %q listed twice", ErrInvalid, l.ID)
		}
		lanes[l.ID] = struct{}{}
	}

	names := make(map[string]struct{}, len(s.Customers))
	for _, c := range s.Customers {
		if _, dup := names[c.Name]; dup {
			return fmt.Errorf("%w: customer %q listed twice", ErrInvalid, c.Name)
		}
		names[c.Name] = struct{}{}
		if c.Funds.IsNegative() {
			return fmt.Errorf("%w: customer %s: negative funds", ErrInvalid, c.Name)
		}
		if _, ok := lanes[c.Lane]; !ok {
			return fmt.Errorf("%w: customer %s: unknown lane %q", ErrInvalid, c.Name, c.Lane)
		}
		inCart := make(map[string]struct{}, len(c.Cart))
		for _, line := range c.Cart {
			if _, ok := items[line.Item]; !ok {
				return fmt.Errorf("%w: customer %s: unknown item %q", ErrInvalid, c.Name, line.Item)
			}
			inCart[line.Item] = struct{}{}
		}
		for _, name := range c.Discard {
			if _, ok := inCart[name]; !ok {
				return fmt.Errorf("%w: customer %s: discard of %q not in cart", ErrInvalid, c.Name, name)
			}
		}
	}
	return nil
}
