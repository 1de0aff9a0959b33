// Package certtest provides certificate fixtures shared by tests.
package certtest

import (
	"fmt"
	"time"

	"certexport/internal/certificate/models"
)

// QRPayload is a stand-in payload; fixtures are not signed.
const QRPayload = "HC1:6BFOXN%TS3DH0YOJ58S S-W5HDC *M0II5XHC9B5G2+$N IOP-IA%NFQGRJPC%OQHIZC4.OI1RM8ZA.A5:S9MKN4NN3F85QNCY0O%0VZ001HOC9JU0D0HT0HB2PL/IB*09B9LW4T*8+DCMH0LDK2%K:XFE70*LP$V25$0Q:J:4MO1P0%0L0HD+9E/HY+4J6TH48S%4K.GJ2PT3QY:GQ3TE2I+-CPHN6D7LLK*2HG%89UV-0LZ 2ZJJ524-LH/CJTK96L6SR9MU9DHGZ%P WUQRENS431T1XCNCF+47AY0-IFO0500TGPN8F5G.41Q2E4T8ALW.INSV$ 07UV5SR+BNQHNML7 /KD3TU 4V*CAT3ZGLQMI/XI%ZJNSBBXK2:UG%UJMI:TU+MMPZ5$/PMX19UE:-PSR3/$NU44CBE6DQ3D7B0FBOFX0DV2DGMB$YPF62I$60/F$Z2I6IFX21XNI-LM%3/DF/U6Z9FEOJVRLVW6K$UG+BKK57:1+D10%4K83F+1VWD1NE"

var (
	jan = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	mar = time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	jun = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
)

func name() models.Name {
	return models.Name{
		GivenName:                "Erika Dörte",
		FamilyName:               "Schmitt Mustermann",
		GivenNameTransliterated:  "ERIKA<DOERTE",
		FamilyNameTransliterated: "SCHMITT<MUSTERMANN",
	}
}

func token(cert models.Certificate) models.Token {
	return models.Token{
		IssuerCountry: "DE",
		IssuedAt:      jan,
		ExpiresAt:     jan.AddDate(1, 0, 0),
		Certificate:   cert,
		QRPayload:     QRPayload,
	}
}

// Vaccinated returns a token with three vaccinations issued out of date
// order. The latest is dose 2 on 2021-06-01; the certificate identifier is
// the first entry's URN:UVCI:01DE/A/1.
func Vaccinated() models.Token {
	v := func(dose int, date time.Time, id string) models.Vaccination {
		return models.Vaccination{
			TargetDisease:          "840539006",
			VaccineProphylaxis:     "1119349007",
			MedicinalProduct:       "EU/1/20/1528",
			MarketingAuthorization: "ORG-100030215",
			DoseNumber:             dose,
			TotalSeriesOfDoses:     2,
			Date:                   date,
			Country:                "DE",
			Issuer:                 "Robert Koch-Institut",
			CertificateID:          id,
		}
	}
	return token(models.Certificate{
		Name:        name(),
		DateOfBirth: "1964-08-12",
		Version:     "1.3.0",
		Vaccinations: []models.Vaccination{
			v(1, jan, "URN:UVCI:01DE/A/1"),
			v(2, jun, "URN:UVCI:01DE/B/2"),
			v(1, mar, "URN:UVCI:01DE/C/3"),
		},
		Template: &models.Template{Name: "vaccination", Type: models.TemplateTypeVaccination, Data: Template(models.TemplateTypeVaccination)},
	})
}

// Tested returns a token with a single rapid antigen test.
func Tested() models.Token {
	return token(models.Certificate{
		Name:        name(),
		DateOfBirth: "1964-08-12",
		Version:     "1.3.0",
		Tests: []models.Test{{
			TargetDisease:    "840539006",
			TestType:         "LP217198-3",
			Manufacturer:     "1232",
			SampleCollection: time.Date(2021, 5, 29, 19, 21, 13, 0, time.UTC),
			Result:           "260415000",
			TestingCentre:    "Testzentrum Köln Hbf",
			Country:          "DE",
			Issuer:           "Robert Koch-Institut",
			CertificateID:    "URN:UVCI:01DE/T/77",
		}},
		Template: &models.Template{Name: "test", Type: models.TemplateTypeTest, Data: Template(models.TemplateTypeTest)},
	})
}

// Recovered returns a token with a recovery entry whose issuer is blank.
func Recovered() models.Token {
	return token(models.Certificate{
		Name:        name(),
		DateOfBirth: "1964-08-12",
		Version:     "1.3.0",
		Recoveries: []models.Recovery{{
			TargetDisease:     "840539006",
			FirstPositiveTest: jan,
			ValidFrom:         time.Date(2021, 1, 29, 0, 0, 0, 0, time.UTC),
			ValidUntil:        jun,
			Country:           "DE",
			CertificateID:     "URN:UVCI:01DE/R/5",
		}},
		Template: &models.Template{Name: "recovery", Type: models.TemplateTypeRecovery, Data: Template(models.TemplateTypeRecovery)},
	})
}

// Template returns a small SVG template using every placeholder of kind.
func Template(kind models.TemplateType) []byte {
	var rows []string
	switch kind {
	case models.TemplateTypeVaccination:
		rows = []string{"$tg", "$vp", "$mp", "$ma", "$dn", "$sd", "$dt", "$co", "$is"}
	case models.TemplateTypeTest:
		rows = []string{"$tg", "$tt", "$nm", "$ma", "$sc", "$tr", "$tc", "$co", "$is"}
	case models.TemplateTypeRecovery:
		rows = []string{"$tg", "$fr", "$df", "$du", "$co", "$is"}
	}
	body := ""
	for i, r := range rows {
		body += fmt.Sprintf(`  <text x="40" y="%d" font-size="14">%s</text>`+"\n", 200+i*24, r)
	}
	return []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 595 842" width="595" height="842">
  <rect x="0" y="0" width="595" height="80" fill="#0d5aa7"/>
  <text x="40" y="50" font-size="22" fill="#ffffff">EU Digital COVID Certificate</text>
  <text x="40" y="120" font-size="16">$nam</text>
  <text x="40" y="144" font-size="12">$dob</text>
  <text x="40" y="168" font-size="10">$ci</text>
` + body + `  <image x="360" y="100" width="200" height="200" href="data:image/png;base64,$qr"/>
</svg>
`)
}
