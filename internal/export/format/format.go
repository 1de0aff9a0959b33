// Package format turns certificate fields into the strings shown on exported
// documents. Everything here is pure; a Formatter can be shared freely.
package format

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"certexport/internal/certificate/models"
)

// Placeholder stands in for absent values so a blank cell is never ambiguous.
const Placeholder = "–"

// DateLayout is the ISO calendar date used on all documents.
const DateLayout = "2006-01-02"

const uvciScheme = "URN:UVCI:"

// Formatter resolves value-set codes and formats dates for display.
type Formatter struct {
	sets       ValueSets
	dateLayout string
	regions    display.Namer
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithValueSets replaces the embedded display tables.
func WithValueSets(vs ValueSets) Option {
	return func(f *Formatter) {
		f.sets = vs
	}
}

// WithDateLayout overrides DateLayout.
func WithDateLayout(layout string) Option {
	return func(f *Formatter) {
		if layout != "" {
			f.dateLayout = layout
		}
	}
}

// New creates a Formatter with the embedded value sets and ISO dates.
func New(opts ...Option) *Formatter {
	f := &Formatter{
		sets:       DefaultValueSets(),
		dateLayout: DateLayout,
		regions:    display.English.Regions(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Date formats t, or returns Placeholder for the zero time.
func (f *Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.Format(f.dateLayout)
}

// Optional returns s, or Placeholder when s is blank.
func Optional(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

// Count formats dose numbers. Digits are not localized.
func Count(n int) string {
	return strconv.Itoa(n)
}

// DiseaseAgent names the targeted disease (value set disease-agent-targeted).
func (f *Formatter) DiseaseAgent(code string) string { return lookup(f.sets.DiseaseAgent, code) }

// VaccineProphylaxis names the vaccine type.
func (f *Formatter) VaccineProphylaxis(code string) string {
	return lookup(f.sets.VaccineProphylaxis, code)
}

// MedicinalProduct names the authorised product, e.g. EU/1/20/1528.
func (f *Formatter) MedicinalProduct(code string) string {
	return lookup(f.sets.MedicinalProduct, code)
}

// Manufacturer names the marketing authorisation holder.
func (f *Formatter) Manufacturer(code string) string { return lookup(f.sets.Manufacturer, code) }

// TestType names the test method (NAAT or RAT).
func (f *Formatter) TestType(code string) string { return lookup(f.sets.TestType, code) }

// TestResult names the result code.
func (f *Formatter) TestResult(code string) string { return lookup(f.sets.TestResult, code) }

// TestDevice formats the optional rapid-test device code.
func (f *Formatter) TestDevice(code string) string {
	if strings.TrimSpace(code) == "" {
		return Placeholder
	}
	return lookup(f.sets.TestDevice, code)
}

// Country returns the English name of an ISO 3166 alpha-2 code, or the raw
// code when it is not a known region.
func (f *Formatter) Country(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return Placeholder
	}
	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if n := f.regions.Name(region); n != "" {
		return n
	}
	return code
}

// FullName joins given and family names, falling back to the ICAO
// transliterations when the plain forms are absent.
func FullName(n models.Name) string {
	given, family := n.GivenName, n.FamilyName
	if given == "" {
		given = untransliterate(n.GivenNameTransliterated)
	}
	if family == "" {
		family = untransliterate(n.FamilyNameTransliterated)
	}
	full := strings.TrimSpace(given + " " + family)
	return Optional(full)
}

// StripUVCIPrefix removes the URN:UVCI: scheme from a certificate identifier.
func StripUVCIPrefix(ci string) string {
	ci = strings.TrimSpace(ci)
	if len(ci) >= len(uvciScheme) && strings.EqualFold(ci[:len(uvciScheme)], uvciScheme) {
		return ci[len(uvciScheme):]
	}
	return ci
}

func lookup(table map[string]string, code string) string {
	if v, ok := table[code]; ok && v != "" {
		return v
	}
	return Optional(code)
}

func untransliterate(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '<' }), " ")
}
