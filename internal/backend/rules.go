package backend

// Rule severities reported in alerts.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// RuleFires reports whether value exceeds the normal or the critical
// threshold of rule. Unset thresholds never fire.
func RuleFires(rule NotificationRule, value float64) bool {
	if rule.NormalValue != nil && value > *rule.NormalValue {
		return true
	}
	if rule.CriticalValue != nil && value > *rule.CriticalValue {
		return true
	}
	return false
}

// EvaluateRules returns the rules that fire for value, in input order.
func EvaluateRules(rules []NotificationRule, value float64) []NotificationRule {
	var fired []NotificationRule
	for _, rule := range rules {
		if RuleFires(rule, value) {
			fired = append(fired, rule)
		}
	}
	return fired
}

// RuleSeverity classifies a firing rule.
func RuleSeverity(rule NotificationRule, value float64) string {
	if rule.CriticalValue != nil && value > *rule.CriticalValue {
		return SeverityCritical
	}
	return SeverityWarning
}

func groupRulesBySensor(rules []NotificationRule) map[uint][]NotificationRule {
	grouped := make(map[uint][]NotificationRule)
	for _, rule := range rules {
		grouped[rule.SensorID] = append(grouped[rule.SensorID], rule)
	}
	return grouped
}
