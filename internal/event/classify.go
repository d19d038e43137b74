package event

import "github.com/tidwall/gjson"

// DefaultKindTiers maps the well-known high-value event kinds to the elevated
// tier. Every kind not listed classifies to the regular tier.
func DefaultKindTiers() map[string]int {
	return map[string]int{
		"UserPromptSubmit": PriorityElevated,
		"Notification":     PriorityElevated,
		"Stop":             PriorityElevated,
		"SubagentStop":     PriorityElevated,
	}
}

// Classifier maps event kinds to priority tiers. Classification is a total
// function: unknown kinds fall back to the regular tier, never an error.
type Classifier struct {
	table map[string]int
}

// NewClassifier builds a classifier from the default table plus per-kind
// overrides from configuration. Override tiers are clamped to valid values.
func NewClassifier(overrides map[string]int) *Classifier {
	table := DefaultKindTiers()
	for kind, tier := range overrides {
		table[kind] = clampTier(tier)
	}
	return &Classifier{table: table}
}

// Classify returns the priority tier for an event and, when the tier is not
// the plain table default, a ClassificationMeta describing the decision.
// A payload-based override may only raise the tier, never lower it.
func (c *Classifier) Classify(kind string, payload []byte) (int, *ClassificationMeta) {
	base := c.table[kind]
	override := payloadOverride(payload)
	tier := base
	if override > tier {
		tier = override
	}
	tier = clampTier(tier)
	if tier == PriorityRegular {
		return tier, nil
	}
	meta := &ClassificationMeta{Rule: "kind-table", BaseTier: base}
	if override > base {
		meta.Rule = "payload-override"
		meta.OverrideTier = override
	}
	return tier, meta
}

// payloadOverride inspects the opaque payload for signals that raise the
// tier: an explicit integer priority_hint, or a non-empty error field.
func payloadOverride(payload []byte) int {
	if len(payload) == 0 {
		return PriorityRegular
	}
	tier := PriorityRegular
	if hint := gjson.GetBytes(payload, "priority_hint"); hint.Exists() {
		if v := int(hint.Int()); v > tier {
			tier = v
		}
	}
	if errField := gjson.GetBytes(payload, "error"); errField.Exists() && errField.String() != "" {
		if tier < PriorityElevated {
			tier = PriorityElevated
		}
	}
	return clampTier(tier)
}

func clampTier(tier int) int {
	if tier < PriorityRegular {
		return PriorityRegular
	}
	if tier > PriorityMax {
		return PriorityMax
	}
	return tier
}
