// Package numbering issues human-readable, per-period sequential document
// numbers such as INV-202601-0001.
package numbering

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocumentType tags the family of documents sharing one sequence.
type DocumentType string

const (
	TypeInvoice   DocumentType = "INVOICE"
	TypeQuotation DocumentType = "QUOTATION"
)

// Scheme describes how numbers are laid out and when sequences reset.
type Scheme struct {
	Prefixes     map[DocumentType]string
	PeriodLayout string
	Width        int
	Location     *time.Location
}

// DefaultScheme resets sequences every calendar month in UTC.
func DefaultScheme() Scheme {
	return Scheme{
		Prefixes: map[DocumentType]string{
			TypeInvoice:   "INV",
			TypeQuotation: "QUO",
		},
		PeriodLayout: "200601",
		Width:        4,
		Location:     time.UTC,
	}
}

// Scope identifies one sequence: a document type within a period.
type Scope struct {
	Type   DocumentType
	Period string
	Prefix string
}

// Key is the stable identifier used for database-level locking.
func (s Scope) Key() string {
	return string(s.Type) + ":" + s.Period
}

// ScopeFor resolves the scope that a document issued at the given instant
// belongs to.
func (s Scheme) ScopeFor(docType DocumentType, at time.Time) (Scope, error) {
	prefix, ok := s.Prefixes[docType]
	if !ok || prefix == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	period := at.In(loc).Format(s.periodLayout())
	return Scope{
		Type:   docType,
		Period: period,
		Prefix: prefix + "-" + period + "-",
	}, nil
}

// Format renders seq within scope. Sequences wider than Width are printed in
// full rather than truncated.
func (s Scheme) Format(scope Scope, seq int) string {
	return fmt.Sprintf("%s%0*d", scope.Prefix, s.width(), seq)
}

// Sequence extracts the numeric tail of a number issued within scope.
func (s Scheme) Sequence(scope Scope, number string) (int, error) {
	tail, ok := strings.CutPrefix(number, scope.Prefix)
	if !ok || tail == "" {
		return 0, fmt.Errorf("numbering: %q does not belong to scope %s", number, scope.Key())
	}
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("numbering: malformed sequence in %q", number)
	}
	return seq, nil
}

func (s Scheme) width() int {
	if s.Width <= 0 {
		return 4
	}
	return s.Width
}

func (s Scheme) periodLayout() string {
	if s.PeriodLayout == "" {
		return "200601"
	}
	return s.PeriodLayout
}
