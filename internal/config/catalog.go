package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/vehicledyn/internal/gearbox"
	"github.com/OCAP2/vehicledyn/pkg/core"
	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// ErrUnknownVehicle is returned for a vehicle kind missing from the catalog.
var ErrUnknownVehicle = errors.New("unknown vehicle kind")

// DefaultKind is always present in the catalog.
const DefaultKind = "default"

// Vehicle is one catalog entry.
type Vehicle struct {
	Params  core.VehicleParameters `mapstructure:",squash"`
	Gearbox gearbox.Config         `mapstructure:"gearbox"`
}

// Catalog holds the built vehicle table. Entries are replaced wholesale on
// Reload and never mutated.
type Catalog struct {
	mu       sync.RWMutex
	vehicles map[string]Vehicle
	pending  atomic.Bool
}

// LoadCatalog decodes the "vehicles" table of the loaded configuration. Every
// entry starts from core.DefaultParameters and passes the parameters builder.
func LoadCatalog() (*Catalog, error) {
	vehicles, err := decodeVehicles()
	if err != nil {
		return nil, err
	}
	return &Catalog{vehicles: vehicles}, nil
}

func decodeVehicles() (map[string]Vehicle, error) {
	vehicles := map[string]Vehicle{
		DefaultKind: {
			Params:  core.NewParametersBuilder(core.DefaultParameters()).Build(),
			Gearbox: gearbox.DefaultConfig(),
		},
	}

	raw := viper.GetStringMap("vehicles")
	for kind := range raw {
		v := Vehicle{Params: core.DefaultParameters()}
		if err := viper.UnmarshalKey("vehicles."+kind, &v); err != nil {
			return nil, fmt.Errorf("error decoding vehicle %q: %w", kind, err)
		}
		v.Params = core.NewParametersBuilder(v.Params).Kind(kind).Build()
		vehicles[kind] = v
	}
	return vehicles, nil
}

// Get returns the entry for kind.
func (c *Catalog) Get(kind string) (Vehicle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vehicles[kind]
	if !ok {
		return Vehicle{}, fmt.Errorf("%w: %s", ErrUnknownVehicle, kind)
	}
	return v, nil
}

// Kinds lists the catalog keys in sorted order.
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	kinds := lo.Keys(c.vehicles)
	c.mu.RUnlock()
	sort.Strings(kinds)
	return kinds
}

// Watch flags the catalog as pending whenever the config file changes. The new
// table is only applied by Reload, normally at the next race start.
func (c *Catalog) Watch() {
	viper.OnConfigChange(func(fsnotify.Event) {
		c.pending.Store(true)
	})
	viper.WatchConfig()
}

// Pending reports whether the config file changed since the last reload.
func (c *Catalog) Pending() bool {
	return c.pending.Load()
}

// Reload re-decodes the vehicle table. The old table stays in place if the
// new one fails to decode.
func (c *Catalog) Reload() error {
	vehicles, err := decodeVehicles()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.vehicles = vehicles
	c.mu.Unlock()
	c.pending.Store(false)
	return nil
}
