package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// PlansSource loads the plan catalog.
type PlansSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

type inMemSource struct {
	mu    sync.RWMutex
	plans []Plan
}

// NewInMemSource returns a source over a copy of plans.
// Panics if no plans are provided.
func NewInMemSource(plans ...Plan) PlansSource {
	if len(plans) == 0 {
		panic("at least one plan is required")
	}
	return &inMemSource{plans: append([]Plan(nil), plans...)}
}

func (s *inMemSource) Load(context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Plan(nil), s.plans...), nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource reads plans from a YAML file of the form:
//
//	plans:
//	  - id: basic
//	    name: Basic
//	    description: Basic plan
//	    price: {amount: 500, currency: usd}
//	    provider_price_id: pri_01h...
//
// Interval defaults to monthly.
func NewYAMLSource(path string) PlansSource {
	return &yamlSource{path: path}
}

type plansFile struct {
	Plans []Plan `yaml:"plans"`
}

func (s *yamlSource) Load(context.Context) ([]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return parsePlansYAML(raw)
}

func parsePlansYAML(raw []byte) ([]Plan, error) {
	var file plansFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(file.Plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrFailedToLoadPlans)
	}

	for i := range file.Plans {
		p := &file.Plans[i]
		if p.Interval == "" {
			p.Interval = IntervalMonthly
		}
		p.Price.Currency = strings.ToLower(p.Price.Currency)
	}
	return file.Plans, nil
}
