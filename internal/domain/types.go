package domain

// PortRange is an inclusive-from, exclusive-to source port span as supplied
// in the "from-to" query form. Presence is always explicit: a query without
// a source port range carries a nil *PortRange, never a zero value.
type PortRange struct {
	From int
	To   int
}

// NACLRule is one entry of a stateless network ACL. CIDRBlock may be empty
// for non-IPv4 entries; the evaluator skips those.
type NACLRule struct {
	RuleNumber int
	Protocol   string
	Action     string
	CIDRBlock  string
	ICMPType   *int
	ICMPCode   *int
	FromPort   int
	ToPort     int
}

// NACLData holds the ingress and egress rule lists of the ACL attached to
// one subnet. Rules are evaluated in slice order; callers that want AWS
// lowest-rule-number-first semantics must pre-sort before building a Query.
type NACLData struct {
	ID            string
	InboundRules  []NACLRule
	OutboundRules []NACLRule
}

// SecurityGroupRule is one permission entry of a security group. Protocol
// "-1" means all protocols. FromPort/ToPort of -1/-1 mean all ports; absent
// bounds on the wire normalize to -1 at ingestion.
type SecurityGroupRule struct {
	Protocol         string
	FromPort         int
	ToPort           int
	CIDRBlocks       []string
	ReferencedGroups []string
}

// SecurityGroupData is one security group of the supplied catalog.
type SecurityGroupData struct {
	ID            string
	InboundRules  []SecurityGroupRule
	OutboundRules []SecurityGroupRule
}

// Query carries everything one reachability question needs. All rule data
// is materialized up front; the evaluators never fetch anything. A Query is
// read-only for the duration of the evaluation.
type Query struct {
	SrcIP        string
	SrcSubnetID  string
	SrcPortRange *PortRange

	DstIP       string
	DstSubnetID string
	DstPort     int

	SrcNACL NACLData
	DstNACL NACLData

	SrcSecurityGroups []string
	DstSecurityGroups []string

	// SecurityGroups is the catalog of every group referenced by
	// SrcSecurityGroups and DstSecurityGroups.
	SecurityGroups []SecurityGroupData
}
