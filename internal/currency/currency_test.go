package currency

import (
	"errors"
	"testing"

	"budgetsmart/internal/core"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		name  string
		cents int64
		code  string
		opts  Options
		want  string
	}{
		{"dollars", 123456, "USD", Options{}, "$1,234.56"},
		{"euro negative", -1200, "EUR", Options{}, "-€12.00"},
		{"pound small", 5, "GBP", Options{}, "£0.05"},
		{"shekel", 100000000, "ILS", Options{}, "₪1,000,000.00"},
		{"canadian lower-case code", 999, "cad", Options{}, "C$9.99"},
		{"signed positive", 2500, "USD", Options{ShowSign: true}, "+$25.00"},
		{"signed zero", 0, "USD", Options{ShowSign: true}, "$0.00"},
		{"unknown symbol", 150000, "JPY", Options{}, "JPY 1,500.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Format(core.Money{Cents: tc.cents}, tc.code, tc.opts)
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got, err := Normalize(" eur ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "EUR" {
		t.Fatalf("got %q, want EUR", got)
	}

	for _, bad := range []string{"", "XX", "ZZZ", "dollars"} {
		if _, err := Normalize(bad); !errors.Is(err, core.ErrInvalidCurrency) {
			t.Errorf("%q: expected ErrInvalidCurrency, got %v", bad, err)
		}
	}
}

func TestGroup(t *testing.T) {
	cases := map[string]string{
		"0":       "0",
		"999":     "999",
		"1000":    "1,000",
		"123456":  "123,456",
		"1234567": "1,234,567",
	}
	for in, want := range cases {
		if got := group(in); got != want {
			t.Errorf("group(%q) = %q, want %q", in, got, want)
		}
	}
}
