package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"CPITracker/internal/domain"
)

// Extraction failures, shared with the collector through domain.
var (
	ErrNotFound    = domain.ErrPriceNotFound
	ErrUnparseable = domain.ErrPriceUnparseable
)

// priceExpr matches e.g. "1,234.56". A run of commas alone is a match too and
// fails to parse.
var priceExpr = regexp.MustCompile(`[\d,]+\.?\d*`)

// ExtractPrice selects the first element matching the CSS locator and parses
// the first number found in its text. It performs no I/O.
func ExtractPrice(content []byte, locator string) (decimal.Decimal, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse document: %w", err)
	}

	// Selectors that fail to compile match nothing.
	selection := doc.Find(locator).First()
	if selection.Length() == 0 {
		return decimal.Zero, fmt.Errorf("locator %q: %w", locator, ErrNotFound)
	}

	return ParsePriceText(selection.Text())
}

// ParsePriceText takes the first run of digits and commas in text, with an
// optional fraction, ignoring currency symbols and words around it. When that
// first run holds no digit the text is unparseable.
func ParsePriceText(text string) (decimal.Decimal, error) {
	match := priceExpr.FindString(text)
	if match == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparseable, strings.TrimSpace(text))
	}

	digits := strings.TrimSuffix(strings.ReplaceAll(match, ",", ""), ".")
	if digits == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnparseable, match)
	}
	value, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrUnparseable, match, err)
	}
	return value, nil
}
