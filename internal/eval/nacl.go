package eval

import (
	"fmt"
	"net"

	"vpcreach/internal/domain"
)

// CheckACLsForPort scans rules in slice order for the first entry whose
// CIDR contains peerIP and whose port range covers port (any port when the
// rule protocol is "all"). Entries without a CIDR are non-IPv4 rules and
// are skipped. The first qualifying rule decides: allow yields Pass, deny
// yields Deny. Exhausting the list is an implicit deny.
//
// Rules are never re-ordered here. Callers that want AWS
// lowest-rule-number-first semantics must pre-sort, which the ingest and
// awsfetch layers do.
func CheckACLsForPort(rules []domain.NACLRule, peerIP string, port int) (domain.Decision, error) {
	for _, rule := range rules {
		if rule.CIDRBlock == "" {
			continue
		}
		contains, err := ContainsAddress(rule.CIDRBlock, peerIP)
		if err != nil {
			return domain.Decision{}, err
		}
		if !contains {
			continue
		}
		if !isAllProtocol(rule.Protocol) && !PortOverlaps(port, rule.FromPort, rule.ToPort) {
			continue
		}
		if rule.Action == "allow" {
			return domain.Pass(rule.RuleNumber), nil
		}
		return domain.Deny(rule.RuleNumber), nil
	}
	return domain.ImplicitDeny(), nil
}

// CheckACLsForPortRange is the return-leg variant: the port test requires
// the whole source port range to be a subset of the rule's range. A query
// without a source port range matches only protocol-"all" rules.
func CheckACLsForPortRange(rules []domain.NACLRule, peerIP string, pr *domain.PortRange) (domain.Decision, error) {
	for _, rule := range rules {
		if rule.CIDRBlock == "" {
			continue
		}
		contains, err := ContainsAddress(rule.CIDRBlock, peerIP)
		if err != nil {
			return domain.Decision{}, err
		}
		if !contains {
			continue
		}
		if !isAllProtocol(rule.Protocol) {
			if pr == nil || !PortRangeSubset(pr.From, pr.To, rule.FromPort, rule.ToPort) {
				continue
			}
		}
		if rule.Action == "allow" {
			return domain.Pass(rule.RuleNumber), nil
		}
		return domain.Deny(rule.RuleNumber), nil
	}
	return domain.ImplicitDeny(), nil
}

// EvalNetworkACLs runs the four stateless ACL checks: source egress toward
// the destination, source ingress for the reply, then the mirrored pair on
// the destination subnet. The first blocked check aborts the evaluation.
// Traffic between endpoints in the same subnet never crosses a NACL and
// passes unconditionally.
func EvalNetworkACLs(q *domain.Query) error {
	if err := validateEndpoints(q); err != nil {
		return err
	}
	if q.SrcNACL.OutboundRules == nil || q.SrcNACL.InboundRules == nil {
		return &domain.InputError{Field: "src_network_acls", Reason: "one egress and one ingress rule list required"}
	}
	if q.DstNACL.OutboundRules == nil || q.DstNACL.InboundRules == nil {
		return &domain.InputError{Field: "dst_network_acls", Reason: "one egress and one ingress rule list required"}
	}

	if q.SrcSubnetID == q.DstSubnetID {
		return nil
	}

	d, err := CheckACLsForPort(q.SrcNACL.OutboundRules, q.DstIP, q.DstPort)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &domain.BlockingError{
			Side:       domain.SideSource,
			Direction:  domain.DirectionEgress,
			Policy:     domain.PolicyNetworkACL,
			RuleNumber: d.RuleNumber,
			Reason:     fmt.Sprintf("Source Subnet Network Acl Egress Rules do not allow outbound traffic to destination: %s : %d", q.DstIP, q.DstPort),
		}
	}

	d, err = CheckACLsForPortRange(q.SrcNACL.InboundRules, q.DstIP, q.SrcPortRange)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &domain.BlockingError{
			Side:       domain.SideSource,
			Direction:  domain.DirectionIngress,
			Policy:     domain.PolicyNetworkACL,
			RuleNumber: d.RuleNumber,
			Reason:     fmt.Sprintf("Source Subnet Network Acl Ingress Rules do not allow inbound traffic from destination: %s", q.DstIP),
		}
	}

	d, err = CheckACLsForPort(q.DstNACL.InboundRules, q.SrcIP, q.DstPort)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &domain.BlockingError{
			Side:       domain.SideDestination,
			Direction:  domain.DirectionIngress,
			Policy:     domain.PolicyNetworkACL,
			RuleNumber: d.RuleNumber,
			Reason:     fmt.Sprintf("Destination Subnet Network Acl Ingress Rules do not allow inbound traffic from source: %s towards destination port %d", q.SrcIP, q.DstPort),
		}
	}

	d, err = CheckACLsForPortRange(q.DstNACL.OutboundRules, q.SrcIP, q.SrcPortRange)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &domain.BlockingError{
			Side:       domain.SideDestination,
			Direction:  domain.DirectionEgress,
			Policy:     domain.PolicyNetworkACL,
			RuleNumber: d.RuleNumber,
			Reason:     fmt.Sprintf("Destination Subnet Network Acl Egress Rules do not allow outbound traffic to source: %s", q.SrcIP),
		}
	}

	return nil
}

func validateEndpoints(q *domain.Query) error {
	if ip := net.ParseIP(q.SrcIP); ip == nil || ip.To4() == nil {
		return &domain.InputError{Field: "src_ip", Reason: fmt.Sprintf("%q is not an IPv4 address", q.SrcIP)}
	}
	if ip := net.ParseIP(q.DstIP); ip == nil || ip.To4() == nil {
		return &domain.InputError{Field: "dst_ip", Reason: fmt.Sprintf("%q is not an IPv4 address", q.DstIP)}
	}
	if q.SrcSubnetID == "" {
		return &domain.InputError{Field: "src_subnet_id", Reason: "required"}
	}
	if q.DstSubnetID == "" {
		return &domain.InputError{Field: "dst_subnet_id", Reason: "required"}
	}
	if q.DstPort < 0 || q.DstPort > 65535 {
		return &domain.InputError{Field: "dst_port", Reason: fmt.Sprintf("%d out of range", q.DstPort)}
	}
	return nil
}
