package ride

import (
	"errors"
	"strings"
)

// PaymentMethod is how the rider settles the fare with the driver.
type PaymentMethod string

const (
	PaymentCash            PaymentMethod = "CASH"
	PaymentDigitalTransfer PaymentMethod = "DIGITAL_TRANSFER"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// ParsePaymentMethod normalizes (uppercases+trims) and validates a payment method string.
func ParsePaymentMethod(in string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToUpper(strings.TrimSpace(in)))
	if method.Valid() {
		return method, nil
	}
	return "", ErrInvalidPaymentMethod
}

// Valid reports whether method is one of the allowed payment methods.
func (method PaymentMethod) Valid() bool {
	switch method {
	case PaymentCash, PaymentDigitalTransfer:
		return true
	default:
		return false
	}
}

// String returns the string representation of the PaymentMethod.
func (method PaymentMethod) String() string {
	return string(method)
}
