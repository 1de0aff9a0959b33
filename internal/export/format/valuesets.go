package format

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed valuesets.yaml
var defaultValueSets []byte

// ValueSets maps value-set codes to display names.
type ValueSets struct {
	DiseaseAgent       map[string]string `yaml:"disease-agent-targeted"`
	VaccineProphylaxis map[string]string `yaml:"vaccine-prophylaxis"`
	MedicinalProduct   map[string]string `yaml:"vaccine-medicinal-product"`
	Manufacturer       map[string]string `yaml:"vaccine-mah-manf"`
	TestType           map[string]string `yaml:"covid-19-lab-test-type"`
	TestDevice         map[string]string `yaml:"covid-19-lab-test-manufacturer-and-name"`
	TestResult         map[string]string `yaml:"covid-19-lab-result"`
}

// ParseValueSets reads a YAML value-set document.
func ParseValueSets(data []byte) (ValueSets, error) {
	var vs ValueSets
	if err := yaml.Unmarshal(data, &vs); err != nil {
		return ValueSets{}, fmt.Errorf("parse value sets: %w", err)
	}
	return vs, nil
}

// DefaultValueSets returns the embedded value sets.
func DefaultValueSets() ValueSets {
	vs, err := ParseValueSets(defaultValueSets)
	if err != nil {
		panic(err)
	}
	return vs
}
