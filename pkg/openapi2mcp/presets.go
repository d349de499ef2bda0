package openapi2mcp

import (
	"strings"

	"go.uber.org/zap"
)

// AllToolTags lists every tag of the Firefly III API.
var AllToolTags = []string{
	"about",
	"accounts",
	"attachments",
	"autocomplete",
	"available_budgets",
	"bills",
	"budgets",
	"categories",
	"charts",
	"configuration",
	"currencies",
	"currency_exchange_rates",
	"data",
	"insight",
	"links",
	"object_groups",
	"piggy_banks",
	"preferences",
	"recurrences",
	"rule_groups",
	"rules",
	"search",
	"summary",
	"tags",
	"transactions",
	"user_groups",
	"users",
	"webhooks",
}

// DefaultPresetTags is the tag set of the "default" preset.
var DefaultPresetTags = []string{"accounts", "bills", "categories", "tags", "transactions", "search", "summary"}

// DefaultPreset is used when no preset or tool list is configured.
const DefaultPreset = "default"

type preset struct {
	name string
	tags []string
}

var presets = []preset{
	{DefaultPreset, DefaultPresetTags},
	{"full", AllToolTags},
	{"basic", []string{"accounts", "transactions", "categories", "tags", "search", "summary"}},
	{"budget", []string{"accounts", "budgets", "available_budgets", "categories", "transactions", "summary", "insight"}},
	{"reporting", []string{"accounts", "transactions", "categories", "charts", "insight", "summary", "search"}},
	{"admin", []string{"about", "configuration", "currencies", "users", "user_groups", "preferences"}},
	{"automation", []string{"rules", "rule_groups", "recurrences", "webhooks", "transactions"}},
}

func lookupPreset(name string) ([]string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range presets {
		if p.name == name {
			return p.tags, true
		}
	}
	return nil, false
}

// PresetTags returns a copy of the tags of the named preset. Names are
// case-insensitive. An unknown name yields the default tags and a warning.
func PresetTags(name string, logger *zap.Logger) []string {
	tags, ok := lookupPreset(name)
	if !ok {
		if logger != nil {
			logger.Warn("unknown preset, using default", zap.String("preset", name))
		}
		tags = DefaultPresetTags
	}
	return append([]string(nil), tags...)
}

// PresetExists reports whether name is a known preset.
func PresetExists(name string) bool {
	_, ok := lookupPreset(name)
	return ok
}

// Presets returns the preset names in declaration order.
func Presets() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// ParseTags splits a comma-separated tag list, dropping blanks.
func ParseTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
