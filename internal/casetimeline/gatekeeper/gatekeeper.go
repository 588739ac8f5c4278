package gatekeeper

// Evaluate runs the production rule table against s.
func Evaluate(s Snapshot) []Action {
	return EvaluateRules(defaultRules, s)
}

// EvaluateRules runs rules once, in order, against s and returns the actions of
// every rule whose predicate holds. Identical input always yields identical output.
func EvaluateRules(rules []Rule, s Snapshot) []Action {
	v := newView(s)
	var actions []Action
	for _, r := range rules {
		if r.When(v) {
			actions = append(actions, r.Then(v))
		}
	}
	return actions
}
