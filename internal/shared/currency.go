package shared

import (
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// All money in the system is South African Rand, presented for the en-ZA locale.
var zaPrinter = message.NewPrinter(language.MustParse("en-ZA"))

// FormatZAR renders an amount as a ZAR currency string for display.
func FormatZAR(amount float64) string {
	return zaPrinter.Sprintf("%v", currency.Symbol(currency.ZAR.Amount(amount)))
}

// ClampDisplay clamps a stored amount at zero for presentation. Stored values
// may be transiently negative (overpayment); displayed values never are.
func ClampDisplay(amount float64) float64 {
	if amount < 0 {
		return 0
	}
	return amount
}
