// Package buttons derives contextual quick-action buttons from the caller's
// role and current page module. The rules are a static lookup table; at most
// four buttons are returned, with a generic set as fallback.
package buttons

// MaxButtons is the maximum number of quick actions returned per context.
const MaxButtons = 4

// Button is one quick action offered to the user. Query is the canned chatbot
// question dispatched when the button is clicked.
type Button struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Query string `json:"query"`
}

// moduleButtons maps a page module to its default quick actions.
var moduleButtons = map[string][]Button{
	"payroll": {
		{ID: "payroll-schedule", Label: "Payroll schedule", Query: "When is the next payroll run?"},
		{ID: "payslip-breakdown", Label: "Understand my payslip", Query: "What do the deductions on my payslip mean?"},
		{ID: "expense-policy", Label: "Expense policy", Query: "What expenses can I claim and how?"},
		{ID: "tax-documents", Label: "Tax documents", Query: "Where do I find my tax documents?"},
	},
	"leave": {
		{ID: "leave-balance", Label: "Leave balance", Query: "How much annual leave do I have left?"},
		{ID: "leave-request", Label: "Request leave", Query: "How do I request time off?"},
		{ID: "sick-policy", Label: "Sick leave policy", Query: "What is the sick leave policy?"},
		{ID: "public-holidays", Label: "Public holidays", Query: "Which public holidays are observed this year?"},
	},
	"recruitment": {
		{ID: "open-roles", Label: "Open roles", Query: "Which roles are currently open?"},
		{ID: "interview-process", Label: "Interview process", Query: "What are the stages of our interview process?"},
		{ID: "referral-program", Label: "Referral program", Query: "How does the employee referral program work?"},
		{ID: "offer-policy", Label: "Offer guidelines", Query: "What are the guidelines for making an offer?"},
	},
	"onboarding": {
		{ID: "first-week", Label: "First week checklist", Query: "What should I complete in my first week?"},
		{ID: "it-setup", Label: "IT setup", Query: "How do I set up my laptop and accounts?"},
		{ID: "benefits-enroll", Label: "Enroll in benefits", Query: "How do I enroll in the benefits program?"},
		{ID: "buddy-program", Label: "Buddy program", Query: "How does the onboarding buddy program work?"},
	},
	"expenses": {
		{ID: "submit-expense", Label: "Submit an expense", Query: "How do I submit an expense report?"},
		{ID: "expense-limits", Label: "Spending limits", Query: "What are the expense limits by category?"},
		{ID: "travel-policy", Label: "Travel policy", Query: "What is the travel and accommodation policy?"},
		{ID: "reimbursement-time", Label: "Reimbursement timing", Query: "How long does reimbursement take?"},
	},
}

// roleOverrides replaces selected module buttons for specific roles.
// Keyed by role, then module.
var roleOverrides = map[string]map[string][]Button{
	"manager": {
		"leave": {
			{ID: "approve-leave", Label: "Approve requests", Query: "How do I approve pending leave requests?"},
			{ID: "team-calendar", Label: "Team leave calendar", Query: "Who on my team is off this month?"},
			{ID: "leave-balance", Label: "Leave balance", Query: "How much annual leave do I have left?"},
			{ID: "sick-policy", Label: "Sick leave policy", Query: "What is the sick leave policy?"},
		},
		"recruitment": {
			{ID: "headcount", Label: "Headcount plan", Query: "What is my team's approved headcount?"},
			{ID: "interview-process", Label: "Interview process", Query: "What are the stages of our interview process?"},
			{ID: "open-roles", Label: "Open roles", Query: "Which roles are currently open?"},
			{ID: "offer-policy", Label: "Offer guidelines", Query: "What are the guidelines for making an offer?"},
		},
	},
}

// genericButtons is the fallback for modules without a dedicated rule.
var genericButtons = []Button{
	{ID: "company-policies", Label: "Company policies", Query: "Where can I find the company policies?"},
	{ID: "hr-contact", Label: "Contact HR", Query: "How do I reach the HR team?"},
	{ID: "handbook", Label: "Employee handbook", Query: "What does the employee handbook cover?"},
	{ID: "help", Label: "What can you do?", Query: "What kinds of questions can you answer?"},
}

// Generate returns the quick actions for a role and module, never more than
// MaxButtons. Role-specific rules win over module defaults; unknown modules
// get the generic set.
func Generate(role, module string) []Button {
	set := genericButtons
	if b, ok := moduleButtons[module]; ok {
		set = b
	}
	if byModule, ok := roleOverrides[role]; ok {
		if b, ok := byModule[module]; ok {
			set = b
		}
	}
	if len(set) > MaxButtons {
		set = set[:MaxButtons]
	}
	out := make([]Button, len(set))
	copy(out, set)
	return out
}
