package domain

import "fmt"

const (
	SideSource      = "source"
	SideDestination = "destination"

	DirectionIngress = "ingress"
	DirectionEgress  = "egress"

	PolicyNetworkACL    = "network-acl"
	PolicySecurityGroup = "security-group"
)

// BlockingError reports which rule set stopped the traffic. RuleNumber is
// set for explicit network ACL denies and zero otherwise.
type BlockingError struct {
	Side       string
	Direction  string
	Policy     string
	RuleNumber int
	Reason     string
}

func (e *BlockingError) Error() string {
	return e.Reason
}

// InputError reports a malformed or missing query field. It is always
// surfaced before any rule evaluation happens.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
