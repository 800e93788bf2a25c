package sim

import (
	"fmt"

	"github.com/kmcsim/kmcsim/sim/lattice"
)

// Model bundles the lattice, the initial configuration and the process
// catalog a simulator is assembled from.
type Model struct {
	Lattice       *lattice.Lattice
	Configuration *Configuration
	Interactions  *Interactions
}

// NewModel checks that the three parts describe the same system.
func NewModel(lat *lattice.Lattice, cfg *Configuration, in *Interactions) (*Model, error) {
	switch {
	case lat == nil || cfg == nil || in == nil:
		return nil, fmt.Errorf("%w: lattice, configuration and interactions are all required", ErrInvalidModel)
	case cfg.Len() != lat.Sites():
		return nil, fmt.Errorf("%w: configuration has %d sites, lattice has %d", ErrInvalidModel, cfg.Len(), lat.Sites())
	case in.Lattice() != lat:
		return nil, fmt.Errorf("%w: interactions were resolved against a different lattice", ErrInvalidModel)
	case cfg.Kind() != in.Kind():
		return nil, fmt.Errorf("%w: %s configuration with %s processes", ErrInvalidModel, cfg.Kind(), in.Kind())
	}
	if cfg.Types() != in.Types() {
		a, b := cfg.Types().Names(), in.Types().Names()
		if len(a) != len(b) {
			return nil, fmt.Errorf("%w: configuration and interactions use different type tables", ErrInvalidModel)
		}
		for i := range a {
			if a[i] != b[i] {
				return nil, fmt.Errorf("%w: configuration and interactions use different type tables", ErrInvalidModel)
			}
		}
	}
	return &Model{Lattice: lat, Configuration: cfg, Interactions: in}, nil
}
