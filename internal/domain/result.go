package domain

// DecisionKind is the tagged outcome of matching one rule list against a
// peer address and port.
type DecisionKind int

const (
	// DecisionPass means a rule explicitly permitted the traffic.
	DecisionPass DecisionKind = iota
	// DecisionDeny means a rule explicitly denied the traffic.
	DecisionDeny
	// DecisionImplicitDeny means the list was exhausted without a match.
	DecisionImplicitDeny
)

// Decision is the result of scanning one rule list. RuleNumber identifies
// the matched ACL entry for explicit outcomes; it is zero for implicit
// denies and for security-group decisions, which carry no numbering.
type Decision struct {
	Kind       DecisionKind
	RuleNumber int
}

func Pass(ruleNumber int) Decision {
	return Decision{Kind: DecisionPass, RuleNumber: ruleNumber}
}

func Deny(ruleNumber int) Decision {
	return Decision{Kind: DecisionDeny, RuleNumber: ruleNumber}
}

func ImplicitDeny() Decision {
	return Decision{Kind: DecisionImplicitDeny}
}

// Allowed reports whether the decision permits the traffic.
func (d Decision) Allowed() bool { return d.Kind == DecisionPass }

// Verdict is the final answer to one reachability question.
type Verdict struct {
	Reachable bool
	Message   string
}
