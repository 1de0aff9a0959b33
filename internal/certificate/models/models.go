package models

import (
	"fmt"
	"time"
)

// TemplateType selects which template variant a certificate is rendered with.
type TemplateType string

const (
	TemplateTypeVaccination TemplateType = "vaccination"
	TemplateTypeTest        TemplateType = "test"
	TemplateTypeRecovery    TemplateType = "recovery"
)

// ParseTemplateType validates a template type name.
func ParseTemplateType(s string) (TemplateType, error) {
	switch t := TemplateType(s); t {
	case TemplateTypeVaccination, TemplateTypeTest, TemplateTypeRecovery:
		return t, nil
	default:
		return "", fmt.Errorf("unknown template type %q", s)
	}
}

func (t TemplateType) String() string { return string(t) }

// Name is the certificate holder's name as issued.
type Name struct {
	GivenName                string
	FamilyName               string
	GivenNameTransliterated  string
	FamilyNameTransliterated string
}

// Vaccination is a single vaccination entry.
type Vaccination struct {
	TargetDisease          string
	VaccineProphylaxis     string
	MedicinalProduct       string
	MarketingAuthorization string
	DoseNumber             int
	TotalSeriesOfDoses     int
	Date                   time.Time
	Country                string
	Issuer                 string
	CertificateID          string
}

// Test is a single test entry.
type Test struct {
	TargetDisease    string
	TestType         string
	TestName         string
	Manufacturer     string
	SampleCollection time.Time
	Result           string
	TestingCentre    string
	Country          string
	Issuer           string
	CertificateID    string
}

// Recovery is a single recovery entry.
type Recovery struct {
	TargetDisease     string
	FirstPositiveTest time.Time
	ValidFrom         time.Time
	ValidUntil        time.Time
	Country           string
	Issuer            string
	CertificateID     string
}

// Template is the issuer-provided SVG template bundled with a certificate.
type Template struct {
	Name string
	Type TemplateType
	Data []byte
}

// Certificate is a verified digital green certificate. The export pipeline
// only reads it.
type Certificate struct {
	Name         Name
	DateOfBirth  string
	Version      string
	Vaccinations []Vaccination
	Tests        []Test
	Recoveries   []Recovery
	Template     *Template
}

// CanExport reports whether the certificate carries a template.
func (c Certificate) CanExport() bool {
	return c.Template != nil && len(c.Template.Data) > 0
}

// LatestVaccination returns the entry with the latest vaccination date.
// Ties keep the earliest entry in issue order.
func (c Certificate) LatestVaccination() (Vaccination, bool) {
	best := -1
	for i, v := range c.Vaccinations {
		if best < 0 || v.Date.After(c.Vaccinations[best].Date) {
			best = i
		}
	}
	if best < 0 {
		return Vaccination{}, false
	}
	return c.Vaccinations[best], true
}

// LatestTest returns the entry with the latest sample collection time.
func (c Certificate) LatestTest() (Test, bool) {
	best := -1
	for i, t := range c.Tests {
		if best < 0 || t.SampleCollection.After(c.Tests[best].SampleCollection) {
			best = i
		}
	}
	if best < 0 {
		return Test{}, false
	}
	return c.Tests[best], true
}

// LatestRecovery returns the entry with the latest valid-from date.
func (c Certificate) LatestRecovery() (Recovery, bool) {
	best := -1
	for i, r := range c.Recoveries {
		if best < 0 || r.ValidFrom.After(c.Recoveries[best].ValidFrom) {
			best = i
		}
	}
	if best < 0 {
		return Recovery{}, false
	}
	return c.Recoveries[best], true
}

// EntryTypes lists the template types the certificate has entries for,
// in vaccination, test, recovery order.
func (c Certificate) EntryTypes() []TemplateType {
	types := []TemplateType{}
	if len(c.Vaccinations) > 0 {
		types = append(types, TemplateTypeVaccination)
	}
	if len(c.Tests) > 0 {
		types = append(types, TemplateTypeTest)
	}
	if len(c.Recoveries) > 0 {
		types = append(types, TemplateTypeRecovery)
	}
	return types
}

// UVCI returns the unique certificate identifier of the first entry,
// looking at vaccinations, then tests, then recoveries.
func (c Certificate) UVCI() string {
	switch {
	case len(c.Vaccinations) > 0:
		return c.Vaccinations[0].CertificateID
	case len(c.Tests) > 0:
		return c.Tests[0].CertificateID
	case len(c.Recoveries) > 0:
		return c.Recoveries[0].CertificateID
	}
	return ""
}

// Token wraps a certificate with its CWT envelope and the exact payload
// string encoded in its QR code.
type Token struct {
	IssuerCountry string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Certificate   Certificate
	QRPayload     string
}

// ID is the identifier under which a token is stored.
func (t Token) ID() string { return t.Certificate.UVCI() }
