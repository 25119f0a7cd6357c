// Package flags provides pflag helpers shared by the command line.
package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	choicePlaceholderPrefix  = "<"
	choicePlaceholderSuffix  = ">"
	choiceSeparatorLiteral   = "|"
	choiceUsageEmptyTemplate = "`%s`"
	choiceUsageFullTemplate  = "`%s` %s"
	choiceTypeName           = "choice"
	invalidChoiceTemplate    = "must be one of %s"
)

// FormatChoiceUsage builds a usage string where the default option is capitalized inside a placeholder.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	placeholder := buildChoicePlaceholder(defaultChoice, choices)
	if len(strings.TrimSpace(description)) == 0 {
		return fmt.Sprintf(choiceUsageEmptyTemplate, placeholder)
	}
	return fmt.Sprintf(choiceUsageFullTemplate, placeholder, description)
}

// AddChoiceFlag registers a string flag restricted to choices. Values are matched
// case-insensitively and stored lower-cased in target.
func AddChoiceFlag(flagSet *pflag.FlagSet, target *string, name string, shorthand string, defaultChoice string, choices []string, description string) {
	if flagSet == nil || target == nil || len(name) == 0 {
		return
	}

	*target = strings.ToLower(strings.TrimSpace(defaultChoice))
	value := &choiceValue{target: target, choices: normalizeChoices(choices)}
	flagSet.VarP(value, name, shorthand, FormatChoiceUsage(defaultChoice, choices, description))
}

type choiceValue struct {
	target  *string
	choices []string
}

func (value *choiceValue) Set(rawValue string) error {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	for _, choice := range value.choices {
		if choice == normalized {
			*value.target = normalized
			return nil
		}
	}
	return fmt.Errorf(invalidChoiceTemplate, strings.Join(value.choices, choiceSeparatorLiteral))
}

func (value *choiceValue) String() string {
	if value == nil || value.target == nil {
		return ""
	}
	return *value.target
}

func (value *choiceValue) Type() string {
	return choiceTypeName
}

func buildChoicePlaceholder(defaultChoice string, choices []string) string {
	highlightedChoices := highlightDefaultChoice(defaultChoice, choices)
	return choicePlaceholderPrefix + strings.Join(highlightedChoices, choiceSeparatorLiteral) + choicePlaceholderSuffix
}

func normalizeChoices(choices []string) []string {
	normalized := make([]string, 0, len(choices))
	seen := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		candidate := strings.ToLower(strings.TrimSpace(choice))
		if len(candidate) == 0 {
			continue
		}
		if _, exists := seen[candidate]; exists {
			continue
		}
		seen[candidate] = struct{}{}
		normalized = append(normalized, candidate)
	}
	return normalized
}

func highlightDefaultChoice(defaultChoice string, choices []string) []string {
	normalizedDefault := strings.ToLower(strings.TrimSpace(defaultChoice))
	normalizedChoices := normalizeChoices(choices)
	highlighted := make([]string, 0, len(normalizedChoices))
	for _, choice := range normalizedChoices {
		if choice == normalizedDefault {
			highlighted = append(highlighted, strings.ToUpper(choice))
			continue
		}
		highlighted = append(highlighted, choice)
	}
	return highlighted
}
