package subscription

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in the smallest currency unit (cents for USD).
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// Format renders m for display in the given language, e.g. "$ 5.00" for
// American English and "$ 5,00" for German.
func (m Money) Format(tag language.Tag) string {
	unit, err := currency.ParseISO(m.Currency)
	if err != nil {
		return fmt.Sprintf("%d %s", m.Amount, strings.ToUpper(m.Currency))
	}

	scale, _ := currency.Standard.Rounding(unit)
	value := float64(m.Amount)
	for range scale {
		value /= 10
	}

	return message.NewPrinter(tag).Sprint(currency.Symbol(unit.Amount(value)))
}

// Interval is the billing period of a plan. Only monthly billing is offered.
type Interval string

const IntervalMonthly Interval = "month"

// Plan is a purchasable offering.
type Plan struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Price       Money    `json:"price" yaml:"price"`
	Interval    Interval `json:"interval" yaml:"interval"`
	// ProviderPriceID is the catalog price id for providers that bill
	// against preconfigured prices (Paddle). Stripe uses inline price data.
	ProviderPriceID string `json:"-" yaml:"provider_price_id"`
}

// Validate checks that the plan can be sold.
func (p Plan) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: plan id is empty", ErrInvalidPlan)
	case p.Name == "":
		return fmt.Errorf("%w: plan %q has no name", ErrInvalidPlan, p.ID)
	case p.Price.Amount <= 0:
		return fmt.Errorf("%w: plan %q must have a positive price", ErrInvalidPlan, p.ID)
	case len(p.Price.Currency) != 3:
		return fmt.Errorf("%w: plan %q has invalid currency %q", ErrInvalidPlan, p.ID, p.Price.Currency)
	case p.Interval != IntervalMonthly:
		return fmt.Errorf("%w: plan %q must bill monthly", ErrInvalidPlan, p.ID)
	}
	return nil
}

// DefaultPlans is the built-in catalog used when no plans file is configured.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic", Description: "Basic plan", Price: Money{Amount: 500, Currency: "usd"}, Interval: IntervalMonthly},
		{ID: "standard", Name: "Standard", Description: "Standard plan", Price: Money{Amount: 1000, Currency: "usd"}, Interval: IntervalMonthly},
		{ID: "premium", Name: "Premium", Description: "Premium plan", Price: Money{Amount: 2000, Currency: "usd"}, Interval: IntervalMonthly},
	}
}
