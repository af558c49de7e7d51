package chamber

import (
	"fmt"

	"github.com/capitolworks/legis/internal/models"
)

// Rules are the static voting parameters of one chamber.
type Rules struct {
	Seats         int
	Quorum        int
	MaxSeatWeight int
}

// Registry maps chambers to their rules. Values are copied onto bills at
// creation time; later registry changes never affect existing bills.
type Registry struct {
	rules map[models.Chamber]Rules
}

// Default returns the congressional configuration: Senate 100 seats with a
// quorum of 50 and fixed weight 1, House 436 seats with a quorum of 218 and
// delegation weights from 1 to 52.
func Default() *Registry {
	return New(map[models.Chamber]Rules{
		models.ChamberSenate: {Seats: 100, Quorum: 50, MaxSeatWeight: 1},
		models.ChamberHouse:  {Seats: 436, Quorum: 218, MaxSeatWeight: 52},
	})
}

func New(rules map[models.Chamber]Rules) *Registry {
	copied := make(map[models.Chamber]Rules, len(rules))
	for c, r := range rules {
		copied[c] = r
	}
	return &Registry{rules: copied}
}

// Rules returns the configuration for a chamber.
func (r *Registry) Rules(c models.Chamber) (Rules, error) {
	rules, ok := r.rules[c]
	if !ok {
		return Rules{}, fmt.Errorf("unknown chamber %q", c)
	}
	return rules, nil
}

// Known reports whether the chamber is configured.
func (r *Registry) Known(c models.Chamber) bool {
	_, ok := r.rules[c]
	return ok
}
