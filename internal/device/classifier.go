package device

import (
	"fmt"
	"strings"

	"github.com/linage/linapush/internal/models"
	"github.com/linage/linapush/internal/shared"
)

// Rules are the data-driven classification rules: model overrides first, then (memory, cores) thresholds.
type Rules struct {
	Thresholds shared.TierThresholds
	Denylist   []string               // model prefixes forced to low_end
	Allowlist  map[string]models.Tier // model prefix -> tier
}

// RulesFromConfig parses the allowlist tier names in cfg.
func RulesFromConfig(cfg shared.DeviceConfig) (Rules, error) {
	rules := Rules{
		Thresholds: cfg.Thresholds,
		Denylist:   cfg.Denylist,
		Allowlist:  make(map[string]models.Tier, len(cfg.Allowlist)),
	}
	for prefix, name := range cfg.Allowlist {
		tier, err := models.ParseTier(name)
		if err != nil {
			return Rules{}, fmt.Errorf("%w: device.allowlist.%s: %v", shared.ErrInvalidConfig, prefix, err)
		}
		rules.Allowlist[prefix] = tier
	}
	return rules, nil
}

// Classify assigns a tier. The denylist wins over the allowlist; both win over thresholds.
//
// Threshold rules require both memory and cores to meet a tier's minimum, so raising either signal never lowers the result.
func Classify(rules Rules, model string, memoryMB, cores int) models.Tier {
	if tier, ok := override(rules, model); ok {
		return tier
	}

	t := rules.Thresholds
	switch {
	case memoryMB >= t.Premium.MemoryMB && cores >= t.Premium.Cores:
		return models.TierPremium
	case memoryMB >= t.High.MemoryMB && cores >= t.High.Cores:
		return models.TierHighEnd
	case memoryMB >= t.Mid.MemoryMB && cores >= t.Mid.Cores:
		return models.TierMidEnd
	default:
		return models.TierLowEnd
	}
}

// override matches model against the deny and allow lists by case-insensitive prefix.
// Among allowlist entries the longest matching prefix wins.
func override(rules Rules, model string) (models.Tier, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return models.TierUnknown, false
	}

	for _, prefix := range rules.Denylist {
		if p := strings.ToLower(prefix); p != "" && strings.HasPrefix(model, p) {
			return models.TierLowEnd, true
		}
	}

	best, bestLen := models.TierUnknown, 0
	for prefix, tier := range rules.Allowlist {
		p := strings.ToLower(prefix)
		if p == "" || !strings.HasPrefix(model, p) {
			continue
		}
		if len(p) > bestLen || (len(p) == bestLen && tier > best) {
			best, bestLen = tier, len(p)
		}
	}
	return best, bestLen > 0
}
