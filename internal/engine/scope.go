package engine

// moduleDepartments maps the page module a query originated from to the
// department whose documents that page draws on. Modules absent from the map
// carry no department constraint; role visibility still applies.
var moduleDepartments = map[string]string{
	"employees":   "hr",
	"recruitment": "hr",
	"onboarding":  "hr",
	"leave":       "hr",
	"payroll":     "finance",
	"expenses":    "finance",
	"invoicing":   "finance",
	"projects":    "engineering",
	"compliance":  "legal",
}

// departmentFor returns the department constraint for a page module, or the
// empty string when the module is unknown or deliberately unscoped (dashboard,
// search, settings).
func departmentFor(module string) string {
	return moduleDepartments[module]
}
