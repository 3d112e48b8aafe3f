package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSeed is one entry of an optional rules.yaml an operator hands the
// daemon at first boot, mirroring the risk.Rule shape but in the plain
// key/value form YAML reads naturally.
type RuleSeed struct {
	Name string `yaml:"name"`
	Percentage float64 `yaml:"percentage"`
	Level string `yaml:"level"`
	Description string `yaml:"description"`
}

// RulesSeed is the top-level document of rules.yaml: a per-account map of
// rule lists.
type RulesSeed struct {
	Accounts map[string][]RuleSeed `yaml:"accounts"`
}

// LoadRulesSeed parses a rules.yaml document from path. A missing path
// (empty string) returns a zero-value RulesSeed and no error: seeding is
// optional.
func LoadRulesSeed(path string) (RulesSeed, error) {
	var seed RulesSeed
	if path == "" {
		return seed, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return seed, fmt.Errorf("read rules seed %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return seed, fmt.Errorf("parse rules seed %s: %w", path, err)
	}
	return seed, nil
}

// DistributionSeed is one account's distribution.yaml entry: the three
// allocation percentages and the minimum profit threshold.
type DistributionSeed struct {
	AccountID string `yaml:"account_id"`
	EarningsPercent float64 `yaml:"earnings_percent"`
	TaxPercent float64 `yaml:"tax_percent"`
	ReinvestmentPercent float64 `yaml:"reinvestment_percent"`
	MinimumThreshold string `yaml:"minimum_threshold"`
	ConfigurationPassword string `yaml:"configuration_password"`
}

// DistributionSeedDoc is the top-level document of distribution.yaml.
type DistributionSeedDoc struct {
	Accounts []DistributionSeed `yaml:"accounts"`
}

// LoadDistributionSeed parses a distribution.yaml document from path. A
// missing path returns an empty document and no error.
func LoadDistributionSeed(path string) (DistributionSeedDoc, error) {
	var doc DistributionSeedDoc
	if path == "" {
		return doc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read distribution seed %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return doc, fmt.Errorf("parse distribution seed %s: %w", path, err)
	}
	return doc, nil
}
