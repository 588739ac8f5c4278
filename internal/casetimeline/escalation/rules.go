package escalation

import (
	_ "embed"
	"fmt"
	"os"

	"case_timeline_backend/internal/casetimeline/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

type ruleFile struct {
	Rules []domain.EscalationRule `yaml:"rules"`
}

// LoadRules reads rules from a YAML file, or the embedded defaults when path is empty.
func LoadRules(path string) ([]domain.EscalationRule, error) {
	if path == "" {
		return ParseRules(defaultRulesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a rule document.
func ParseRules(data []byte) ([]domain.EscalationRule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode escalation rules: %w", err)
	}

	seen := make(map[string]bool, len(file.Rules))
	for i, rule := range file.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if _, err := parseTemplate(rule); err != nil {
			return nil, fmt.Errorf("rule %d: message_template: %w", i, err)
		}
		key := fmt.Sprintf("%s/%d", rule.DeadlineKey, rule.Level)
		if seen[key] {
			return nil, fmt.Errorf("rule %d: duplicate level %d for %s", i, rule.Level, rule.DeadlineKey)
		}
		seen[key] = true
	}
	return file.Rules, nil
}
