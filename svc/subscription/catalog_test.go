package subscription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/dmitrymomot/subscription-api/svc/subscription"
)

type errSource struct{ err error }

func (s errSource) Load(context.Context) ([]subscription.Plan, error) { return nil, s.err }

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	t.Run("default plans ordered by price", func(t *testing.T) {
		t.Parallel()

		catalog := defaultCatalog(t)
		ids := make([]string, 0, 3)
		for _, p := range catalog.List() {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"basic", "standard", "premium"}, ids)

		plan, err := catalog.Plan("standard")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), plan.Price.Amount)
		assert.Equal(t, "usd", plan.Price.Currency)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		_, err := defaultCatalog(t).Plan("gold")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("duplicate ids", func(t *testing.T) {
		t.Parallel()

		plans := subscription.DefaultPlans()
		plans = append(plans, plans[0])
		_, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(plans...))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
	})

	t.Run("invalid plan", func(t *testing.T) {
		t.Parallel()

		bad := subscription.Plan{ID: "free", Name: "Free", Price: subscription.Money{Amount: 0, Currency: "usd"}, Interval: subscription.IntervalMonthly}
		_, err := subscription.NewCatalog(context.Background(), subscription.NewInMemSource(bad))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlan)
	})

	t.Run("source failure", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.NewCatalog(context.Background(), errSource{err: errors.New("disk gone")})
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("empty in-memory source panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { subscription.NewInMemSource() })
	})
}

func TestPlan_Validate(t *testing.T) {
	t.Parallel()

	valid := subscription.DefaultPlans()[0]
	require.NoError(t, valid.Validate())

	cases := map[string]func(p *subscription.Plan){
		"empty id":     func(p *subscription.Plan) { p.ID = "" },
		"empty name":   func(p *subscription.Plan) { p.Name = "" },
		"negative":     func(p *subscription.Plan) { p.Price.Amount = -1 },
		"bad currency": func(p *subscription.Plan) { p.Price.Currency = "dollars" },
		"yearly":       func(p *subscription.Plan) { p.Interval = "year" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := valid
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), subscription.ErrInvalidPlan)
		})
	}
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("parses plans", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - id: starter
    name: Starter
    description: For small teams
    price:
      amount: 900
      currency: EUR
    provider_price_id: pri_starter
  - id: pro
    name: Pro
    price: {amount: 2900, currency: eur}
    interval: month
`), 0o600))

		catalog, err := subscription.NewCatalog(context.Background(), subscription.NewYAMLSource(path))
		require.NoError(t, err)

		starter, err := catalog.Plan("starter")
		require.NoError(t, err)
		assert.Equal(t, "eur", starter.Price.Currency)
		assert.Equal(t, subscription.IntervalMonthly, starter.Interval)
		assert.Equal(t, "pri_starter", starter.ProviderPriceID)
		assert.Len(t, catalog.List(), 2)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.NewYAMLSource(filepath.Join(t.TempDir(), "nope.yaml")).Load(context.Background())
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("no plans", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.ParsePlansYAML([]byte("plans: []\n"))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.ParsePlansYAML([]byte("plans: [\n"))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})
}

func TestMoney_Format(t *testing.T) {
	t.Parallel()

	basic := subscription.Money{Amount: 500, Currency: "usd"}
	assert.Equal(t, "$ 5.00", basic.Format(language.AmericanEnglish))
	assert.Equal(t, "$ 5,00", basic.Format(language.German))

	unknown := subscription.Money{Amount: 500, Currency: "zzz"}.Format(language.English)
	assert.Equal(t, "500 ZZZ", unknown)
}
