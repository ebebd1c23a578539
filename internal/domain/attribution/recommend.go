package attribution

import "context"

// Driver is a company-wide driver passed to a Recommender.
type Driver struct {
	Feature          string  `json:"feature"`
	ImpactValue      float64 `json:"impact_value"`
	ImpactPercentage float64 `json:"impact_percentage"`
}

// Recommender suggests one action per driver feature. Features without a
// suggestion are left out of the returned map.
type Recommender interface {
	Recommend(ctx context.Context, drivers []Driver) (map[string]string, error)
}

// NoopRecommender never suggests anything.
type NoopRecommender struct{}

// Recommend implements Recommender.
func (NoopRecommender) Recommend(context.Context, []Driver) (map[string]string, error) {
	return nil, nil
}
