package cache

import (
	"fmt"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// Key identifies one cached prediction: the entity, the horizon and the
// fingerprint of the feature vector the prediction was computed from.
type Key struct {
	EntityID    string
	Horizon     domain.Horizon
	Fingerprint string
}

// NewKey builds the cache key for a prediction over features.
func NewKey(entityID string, horizon domain.Horizon, features domain.FeatureVector) Key {
	return Key{EntityID: entityID, Horizon: horizon, Fingerprint: features.Fingerprint()}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.EntityID, k.Horizon, k.Fingerprint)
}
