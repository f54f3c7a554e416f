package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidPrice = errors.New("price must be a non-negative number")

// Price is an amount in minor currency units (cents). It is the only unit the
// gateway stores, caches or sends to the marketplace service.
type Price uint64

// ParsePrice converts an entered major-unit amount ("19.99") into minor units
// (1999), rounding to the nearest cent.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidPrice
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, ErrInvalidPrice
	}
	cents := math.Round(v * 100)
	if cents > math.MaxInt64 {
		return 0, ErrInvalidPrice
	}
	return Price(cents), nil
}

// String renders the price in major units with two decimals.
func (p Price) String() string {
	return fmt.Sprintf("%d.%02d", uint64(p)/100, uint64(p)%100)
}

func (p Price) Label() string {
	return "$" + p.String()
}
