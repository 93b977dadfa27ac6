package subscription

var (
	ClassifyStripeError = classifyStripeError
	ClassifyPaddleError = classifyPaddleError
	ParsePlansYAML      = parsePlansYAML
)
