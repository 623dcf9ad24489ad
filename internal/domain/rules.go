package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Correction is one literal substring replacement for known upstream typos.
type Correction struct {
	Find    string `yaml:"find" validate:"required"`
	Replace string `yaml:"replace"`
}

// Rules holds the keyword and gazetteer tables that drive extraction. A
// Rules value is copied into each component at construction and never
// mutated afterwards.
type Rules struct {
	Corrections        []Correction `yaml:"corrections" validate:"dive"`
	ExceptionKeywords  []string     `yaml:"exception_keywords" validate:"min=1,dive,required"`
	BoilerplateKeyword string       `yaml:"boilerplate_keyword" validate:"required"`
	VesselTerminators  []string     `yaml:"vessel_terminators" validate:"min=1,dive,required"`
	VesselExclusions   []string     `yaml:"vessel_exclusions" validate:"dive,required"`
	Countries          []string     `yaml:"countries" validate:"dive,required"`
}

var rulesValidator = validator.New()

// DefaultRules returns the built-in tables.
func DefaultRules() Rules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded rules: %v", err))
	}
	return rules
}

// LoadRules reads a YAML rules file. An empty path returns DefaultRules.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(content)
}

// ParseRules decodes and validates YAML rules.
func ParseRules(content []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules: %w", err)
	}
	if err := rulesValidator.Struct(rules); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Rules{}, fmt.Errorf("invalid rules: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return Rules{}, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}

// Clone returns a deep copy so callers cannot alter tables held by a component.
func (r Rules) Clone() Rules {
	return Rules{
		Corrections:        slices.Clone(r.Corrections),
		ExceptionKeywords:  slices.Clone(r.ExceptionKeywords),
		BoilerplateKeyword: r.BoilerplateKeyword,
		VesselTerminators:  slices.Clone(r.VesselTerminators),
		VesselExclusions:   slices.Clone(r.VesselExclusions),
		Countries:          slices.Clone(r.Countries),
	}
}

// Correct applies every correction to text, in table order.
func (r Rules) Correct(text string) string {
	for _, c := range r.Corrections {
		text = strings.ReplaceAll(text, c.Find, c.Replace)
	}
	return text
}

// exceptionKeyword returns the first exception keyword present in text.
func (r Rules) exceptionKeyword(text string) (string, bool) {
	for _, kw := range r.ExceptionKeywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}
