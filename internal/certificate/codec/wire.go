package codec

import (
	"fmt"
	"strings"
	"time"

	"certexport/internal/certificate/models"
)

// Claim keys follow the CWT registry; -260 is the HCERT claim and 1 inside
// it is the EU DCC payload.
type cwtClaims struct {
	Issuer    string     `json:"1,omitempty" cbor:"1,keyasint,omitempty"`
	ExpiresAt int64      `json:"4,omitempty" cbor:"4,keyasint,omitempty"`
	IssuedAt  int64      `json:"6,omitempty" cbor:"6,keyasint,omitempty"`
	HCert     hcertClaim `json:"-260" cbor:"-260,keyasint"`
}

type hcertClaim struct {
	DGC dgc `json:"1" cbor:"1,keyasint"`
}

type dgc struct {
	Name        name          `json:"nam" cbor:"nam"`
	DateOfBirth string        `json:"dob" cbor:"dob"`
	Version     string        `json:"ver" cbor:"ver"`
	V           []vaccination `json:"v,omitempty" cbor:"v,omitempty"`
	T           []test        `json:"t,omitempty" cbor:"t,omitempty"`
	R           []recovery    `json:"r,omitempty" cbor:"r,omitempty"`
	Template    *template     `json:"template,omitempty" cbor:"template,omitempty"`
}

type name struct {
	GivenName   string `json:"gn,omitempty" cbor:"gn,omitempty"`
	FamilyName  string `json:"fn,omitempty" cbor:"fn,omitempty"`
	GivenNameT  string `json:"gnt,omitempty" cbor:"gnt,omitempty"`
	FamilyNameT string `json:"fnt" cbor:"fnt"`
}

type vaccination struct {
	TG string `json:"tg" cbor:"tg"`
	VP string `json:"vp" cbor:"vp"`
	MP string `json:"mp" cbor:"mp"`
	MA string `json:"ma" cbor:"ma"`
	DN int    `json:"dn" cbor:"dn"`
	SD int    `json:"sd" cbor:"sd"`
	DT string `json:"dt" cbor:"dt"`
	CO string `json:"co" cbor:"co"`
	IS string `json:"is" cbor:"is"`
	CI string `json:"ci" cbor:"ci"`
}

type test struct {
	TG string `json:"tg" cbor:"tg"`
	TT string `json:"tt" cbor:"tt"`
	NM string `json:"nm,omitempty" cbor:"nm,omitempty"`
	MA string `json:"ma,omitempty" cbor:"ma,omitempty"`
	SC string `json:"sc" cbor:"sc"`
	TR string `json:"tr" cbor:"tr"`
	TC string `json:"tc" cbor:"tc"`
	CO string `json:"co" cbor:"co"`
	IS string `json:"is" cbor:"is"`
	CI string `json:"ci" cbor:"ci"`
}

type recovery struct {
	TG string `json:"tg" cbor:"tg"`
	FR string `json:"fr" cbor:"fr"`
	DF string `json:"df" cbor:"df"`
	DU string `json:"du" cbor:"du"`
	CO string `json:"co" cbor:"co"`
	IS string `json:"is" cbor:"is"`
	CI string `json:"ci" cbor:"ci"`
}

type template struct {
	Name string `json:"name" cbor:"name"`
	Type string `json:"type" cbor:"type"`
	Data []byte `json:"data" cbor:"data"`
}

const dateLayout = "2006-01-02"

// Sample collection times are RFC 3339 in the schema but several issuers
// emit offsets without a colon.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	dateLayout,
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	return t, nil
}

func parseTimestamp(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: unparseable timestamp %q", field, s)
}

func (c cwtClaims) toToken() (models.Token, error) {
	d := c.HCert.DGC
	cert := models.Certificate{
		Name: models.Name{
			GivenName:                d.Name.GivenName,
			FamilyName:               d.Name.FamilyName,
			GivenNameTransliterated:  d.Name.GivenNameT,
			FamilyNameTransliterated: d.Name.FamilyNameT,
		},
		DateOfBirth: d.DateOfBirth,
		Version:     d.Version,
	}

	for i, v := range d.V {
		dt, err := parseDate(fmt.Sprintf("v[%d].dt", i), v.DT)
		if err != nil {
			return models.Token{}, err
		}
		cert.Vaccinations = append(cert.Vaccinations, models.Vaccination{
			TargetDisease:          v.TG,
			VaccineProphylaxis:     v.VP,
			MedicinalProduct:       v.MP,
			MarketingAuthorization: v.MA,
			DoseNumber:             v.DN,
			TotalSeriesOfDoses:     v.SD,
			Date:                   dt,
			Country:                v.CO,
			Issuer:                 v.IS,
			CertificateID:          v.CI,
		})
	}

	for i, t := range d.T {
		sc, err := parseTimestamp(fmt.Sprintf("t[%d].sc", i), t.SC)
		if err != nil {
			return models.Token{}, err
		}
		cert.Tests = append(cert.Tests, models.Test{
			TargetDisease:    t.TG,
			TestType:         t.TT,
			TestName:         t.NM,
			Manufacturer:     t.MA,
			SampleCollection: sc,
			Result:           t.TR,
			TestingCentre:    t.TC,
			Country:          t.CO,
			Issuer:           t.IS,
			CertificateID:    t.CI,
		})
	}

	for i, r := range d.R {
		fr, err := parseDate(fmt.Sprintf("r[%d].fr", i), r.FR)
		if err != nil {
			return models.Token{}, err
		}
		df, err := parseDate(fmt.Sprintf("r[%d].df", i), r.DF)
		if err != nil {
			return models.Token{}, err
		}
		du, err := parseDate(fmt.Sprintf("r[%d].du", i), r.DU)
		if err != nil {
			return models.Token{}, err
		}
		cert.Recoveries = append(cert.Recoveries, models.Recovery{
			TargetDisease:     r.TG,
			FirstPositiveTest: fr,
			ValidFrom:         df,
			ValidUntil:        du,
			Country:           r.CO,
			Issuer:            r.IS,
			CertificateID:     r.CI,
		})
	}

	if d.Template != nil {
		tt, err := models.ParseTemplateType(d.Template.Type)
		if err != nil {
			return models.Token{}, fmt.Errorf("template.type: %w", err)
		}
		cert.Template = &models.Template{Name: d.Template.Name, Type: tt, Data: d.Template.Data}
	}

	tok := models.Token{
		IssuerCountry: c.Issuer,
		Certificate:   cert,
	}
	if c.IssuedAt != 0 {
		tok.IssuedAt = time.Unix(c.IssuedAt, 0).UTC()
	}
	if c.ExpiresAt != 0 {
		tok.ExpiresAt = time.Unix(c.ExpiresAt, 0).UTC()
	}
	return tok, nil
}

func claimsFromToken(tok models.Token) cwtClaims {
	cert := tok.Certificate
	d := dgc{
		Name: name{
			GivenName:   cert.Name.GivenName,
			FamilyName:  cert.Name.FamilyName,
			GivenNameT:  cert.Name.GivenNameTransliterated,
			FamilyNameT: cert.Name.FamilyNameTransliterated,
		},
		DateOfBirth: cert.DateOfBirth,
		Version:     cert.Version,
	}
	for _, v := range cert.Vaccinations {
		d.V = append(d.V, vaccination{
			TG: v.TargetDisease, VP: v.VaccineProphylaxis, MP: v.MedicinalProduct,
			MA: v.MarketingAuthorization, DN: v.DoseNumber, SD: v.TotalSeriesOfDoses,
			DT: v.Date.Format(dateLayout), CO: v.Country, IS: v.Issuer, CI: v.CertificateID,
		})
	}
	for _, t := range cert.Tests {
		d.T = append(d.T, test{
			TG: t.TargetDisease, TT: t.TestType, NM: t.TestName, MA: t.Manufacturer,
			SC: t.SampleCollection.UTC().Format(time.RFC3339), TR: t.Result,
			TC: t.TestingCentre, CO: t.Country, IS: t.Issuer, CI: t.CertificateID,
		})
	}
	for _, r := range cert.Recoveries {
		d.R = append(d.R, recovery{
			TG: r.TargetDisease, FR: r.FirstPositiveTest.Format(dateLayout),
			DF: r.ValidFrom.Format(dateLayout), DU: r.ValidUntil.Format(dateLayout),
			CO: r.Country, IS: r.Issuer, CI: r.CertificateID,
		})
	}
	if cert.Template != nil {
		d.Template = &template{Name: cert.Template.Name, Type: string(cert.Template.Type), Data: cert.Template.Data}
	}

	c := cwtClaims{Issuer: tok.IssuerCountry, HCert: hcertClaim{DGC: d}}
	if !tok.IssuedAt.IsZero() {
		c.IssuedAt = tok.IssuedAt.Unix()
	}
	if !tok.ExpiresAt.IsZero() {
		c.ExpiresAt = tok.ExpiresAt.Unix()
	}
	return c
}
