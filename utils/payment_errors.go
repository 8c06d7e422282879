package utils

import "github.com/Matchbook-Rentals/matchbook-web-frontend-sub019/models"

// failureReasons maps gateway decline codes to messages shown to renters.
var failureReasons = map[string]string{
	"insufficient_funds":         "Your payment method has insufficient funds.",
	"card_declined":              "Your card was declined.",
	"expired_card":               "Your card has expired. Please update your payment method.",
	"incorrect_cvc":              "Your card's security code is incorrect.",
	"processing_error":           "An error occurred while processing your card. Please try again.",
	"account_closed":             "Your bank account has been closed. Please update your payment method.",
	"account_frozen":             "Your bank account is frozen. Please contact your bank or use a different payment method.",
	"debit_not_authorized":       "This payment was not authorized by your bank. Please contact your bank.",
	"bank_account_restricted":    "Your bank account cannot be used for this payment. Please use a different payment method.",
	"insufficient_funds_on_hold": "Funds in your account are on hold. Please try again later or use a different payment method.",
}

// FailureReasonForCode returns a renter-facing message for a gateway decline
// code, falling back to the gateway's own message and then to a generic one.
func FailureReasonForCode(code, gatewayMessage string) string {
	if reason, ok := failureReasons[code]; ok {
		return reason
	}
	if gatewayMessage != "" {
		return gatewayMessage
	}
	return "Your payment could not be processed. Please update your payment method and try again."
}

// FailureTypeForMethod classifies a failure by the payment method that
// produced it. Bank debits fail asynchronously as returns; cards decline
// synchronously.
func FailureTypeForMethod(paymentMethodType string) string {
	switch paymentMethodType {
	case "us_bank_account":
		return models.FailureTypeBankReturn
	case "card":
		return models.FailureTypeCardDecline
	default:
		return models.FailureTypeProcessingError
	}
}
