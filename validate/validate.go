// Package validate checks service descriptors and threshold payloads
// before they are accepted by the Read API's config endpoints.
package validate

import (
	"fmt"
	"net/url"
	"regexp"

	"pulsewatch/model"
)

var validServiceName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]*$`)

var validTiers = map[model.Tier]bool{
	model.TierCritical: true,
	model.TierStandard: true,
	model.TierLow:       true,
}

var validStrategies = map[model.StrategyKind]bool{
	model.StrategyBasic:         true,
	model.StrategyAuthenticated: true,
	model.StrategyQuery:         true,
}

// Service validates one service descriptor destined for
// POST /api/config/services.
func Service(svc model.Service) *model.ValidationResult {
	r := &model.ValidationResult{Subject: svc.Name}

	if svc.Name == "" {
		r.Add(model.ValidationFinding{
			Check: "service.name.required", Severity: model.FindingError,
			Message: "service name is required", Field: "name",
		})
	} else if !validServiceName.MatchString(svc.Name) {
		r.Add(model.ValidationFinding{
			Check: "service.name.format", Severity: model.FindingError,
			Message: fmt.Sprintf("service name %q must start with a letter or digit", svc.Name), Field: "name",
		})
	}

	if svc.URL == "" {
		r.Add(model.ValidationFinding{
			Check: "service.url.required", Severity: model.FindingError,
			Message: "url is required", Field: "url",
		})
	} else if u, err := url.Parse(svc.URL); err != nil || u.Scheme == "" || u.Host == "" {
		r.Add(model.ValidationFinding{
			Check: "service.url.format", Severity: model.FindingError,
			Message: fmt.Sprintf("url %q is not a valid absolute URL", svc.URL), Field: "url",
		})
	}

	if svc.Tier == "" {
		r.Add(model.ValidationFinding{
			Check: "service.tier.recommended", Severity: model.FindingWarning,
			Message: "tier not set, defaulting to standard", Field: "tier",
		})
	} else if !validTiers[svc.Tier] {
		r.Add(model.ValidationFinding{
			Check: "service.tier.invalid", Severity: model.FindingError,
			Message: fmt.Sprintf("tier %q is not valid (must be critical, standard, or low)", svc.Tier), Field: "tier",
		})
	}

	if svc.ProbeInterval < 0 {
		r.Add(model.ValidationFinding{
			Check: "service.probeInterval.invalid", Severity: model.FindingError,
			Message: "probeInterval must not be negative", Field: "probeInterval",
		})
	}

	if len(svc.Checks) == 0 {
		r.Add(model.ValidationFinding{
			Check: "service.checks.required", Severity: model.FindingError,
			Message: "at least one check is required", Field: "checks",
		})
	}
	for i, check := range svc.Checks {
		checkFindings(check, i, r)
	}

	return r
}

func checkFindings(check model.Check, index int, r *model.ValidationResult) {
	field := fmt.Sprintf("checks[%d]", index)

	if check.Name == "" {
		r.Add(model.ValidationFinding{
			Check: "check.name.required", Severity: model.FindingError,
			Message: "check name is required", Field: field + ".name",
		})
	}

	if check.Strategy == "" {
		r.Add(model.ValidationFinding{
			Check: "check.strategy.required", Severity: model.FindingError,
			Message: "check strategy is required", Field: field + ".strategy",
		})
	} else if !validStrategies[check.Strategy] {
		r.Add(model.ValidationFinding{
			Check: "check.strategy.invalid", Severity: model.FindingError,
			Message: fmt.Sprintf("strategy %q is not valid (must be basic, authenticated, or query)", check.Strategy),
			Field:   field + ".strategy",
		})
	}

	if check.Strategy == model.StrategyQuery && check.Query == "" {
		r.Add(model.ValidationFinding{
			Check: "check.query.required", Severity: model.FindingError,
			Message: "query strategy requires a query string", Field: field + ".query",
		})
	}

	if check.TimeoutMS < 0 {
		r.Add(model.ValidationFinding{
			Check: "check.timeout.invalid", Severity: model.FindingError,
			Message: "timeout must not be negative", Field: field + ".timeout",
		})
	}
}

// Services validates a whole batch for POST /api/config/services,
// including cross-entry duplicate-name detection: every entry whose
// name appears more than once is flagged, the first one included.
func Services(services []model.Service) []*model.ValidationResult {
	seen := make(map[string]int)
	for _, svc := range services {
		seen[svc.Name]++
	}
	results := make([]*model.ValidationResult, 0, len(services))
	for _, svc := range services {
		r := Service(svc)
		if seen[svc.Name] > 1 {
			r.Add(model.ValidationFinding{
				Check: "service.name.duplicate", Severity: model.FindingError,
				Message: fmt.Sprintf("service name %q appears more than once", svc.Name), Field: "name",
			})
		}
		results = append(results, r)
	}
	return results
}

// Thresholds validates a POST /api/config/thresholds payload: all
// three fields must be present and numeric, and healthy < warning.
func Thresholds(healthy, warning, degraded float64, present map[string]bool) *model.ValidationResult {
	r := &model.ValidationResult{Subject: "thresholds"}

	for _, field := range []string{"healthy", "warning", "degraded"} {
		if !present[field] {
			r.Add(model.ValidationFinding{
				Check: "thresholds." + field + ".required", Severity: model.FindingError,
				Message: field + " is required and must be numeric", Field: field,
			})
		}
	}

	if r.Valid() && healthy >= warning {
		r.Add(model.ValidationFinding{
			Check: "thresholds.order.invalid", Severity: model.FindingError,
			Message: "healthy threshold must be less than warning threshold", Field: "healthy",
		})
	}

	return r
}
