package app

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		scale  int32
		wantOK bool
	}{
		{name: "whole amount", amount: "100", scale: 2, wantOK: true},
		{name: "exact scale", amount: "10.25", scale: 2, wantOK: true},
		{name: "fewer digits than scale", amount: "10.5", scale: 2, wantOK: true},
		{name: "zero", amount: "0", scale: 2, wantOK: false},
		{name: "negative", amount: "-5.00", scale: 2, wantOK: false},
		{name: "excess precision", amount: "10.005", scale: 2, wantOK: false},
		{name: "zero scale rejects fractions", amount: "10.5", scale: 0, wantOK: false},
		{name: "trailing zeros beyond scale", amount: "10.250", scale: 2, wantOK: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tc.amount)
			if err != nil {
				t.Fatalf("bad test amount %q: %v", tc.amount, err)
			}
			err = ValidateAmount(amount, tc.scale)
			if tc.wantOK && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantOK && !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("expected invalid amount, got %v", err)
			}
		})
	}
}
