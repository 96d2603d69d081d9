package eval

import (
	"fmt"

	"vpcreach/internal/domain"
)

// groupRuleAllows reports whether one stateful rule permits traffic to or
// from peerIP on port. Protocol "-1" and the -1/-1 port pair both mean all
// ports. Given a protocol match, either a containing CIDR entry or a
// referenced group attached to the peer completes the match.
func groupRuleAllows(rule domain.SecurityGroupRule, peerIP string, port int, peerGroups []string) (bool, error) {
	if !isAllProtocol(rule.Protocol) &&
		!(rule.FromPort == -1 && rule.ToPort == -1) &&
		!PortOverlaps(port, rule.FromPort, rule.ToPort) {
		return false, nil
	}
	for _, cidr := range rule.CIDRBlocks {
		contains, err := ContainsAddress(cidr, peerIP)
		if err != nil {
			return false, err
		}
		if contains {
			return true, nil
		}
	}
	for _, ref := range rule.ReferencedGroups {
		for _, peer := range peerGroups {
			if ref == peer {
				return true, nil
			}
		}
	}
	return false, nil
}

// checkGroupRules scans the union of rules across every resolved group.
// Security groups carry no deny action: the first matching rule passes,
// exhaustion is an implicit deny.
func checkGroupRules(groups []domain.SecurityGroupData, outbound bool, peerIP string, port int, peerGroups []string) (domain.Decision, error) {
	for _, group := range groups {
		rules := group.InboundRules
		if outbound {
			rules = group.OutboundRules
		}
		for _, rule := range rules {
			allows, err := groupRuleAllows(rule, peerIP, port, peerGroups)
			if err != nil {
				return domain.Decision{}, err
			}
			if allows {
				return domain.Pass(0), nil
			}
		}
	}
	return domain.ImplicitDeny(), nil
}

// CheckSourceEgress is the standalone pre-check: do the source's egress
// rules permit traffic toward the destination at all. It uses the same
// matching logic as the combined evaluation.
func CheckSourceEgress(q *domain.Query) error {
	if err := validateEndpoints(q); err != nil {
		return err
	}
	srcGroups, err := resolveGroups(q.SecurityGroups, q.SrcSecurityGroups, "src_security_groups")
	if err != nil {
		return err
	}
	d, err := checkGroupRules(srcGroups, true, q.DstIP, q.DstPort, q.DstSecurityGroups)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return sourceEgressBlocked(q)
	}
	return nil
}

// EvalSecurityGroups runs the two stateful checks: source egress toward
// the destination and destination ingress from the source. Being stateful,
// the reply legs need no rules of their own.
func EvalSecurityGroups(q *domain.Query) error {
	if err := validateEndpoints(q); err != nil {
		return err
	}
	srcGroups, err := resolveGroups(q.SecurityGroups, q.SrcSecurityGroups, "src_security_groups")
	if err != nil {
		return err
	}
	dstGroups, err := resolveGroups(q.SecurityGroups, q.DstSecurityGroups, "dst_security_groups")
	if err != nil {
		return err
	}

	d, err := checkGroupRules(srcGroups, true, q.DstIP, q.DstPort, q.DstSecurityGroups)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return sourceEgressBlocked(q)
	}

	d, err = checkGroupRules(dstGroups, false, q.SrcIP, q.DstPort, q.SrcSecurityGroups)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		return &domain.BlockingError{
			Side:      domain.SideDestination,
			Direction: domain.DirectionIngress,
			Policy:    domain.PolicySecurityGroup,
			Reason:    fmt.Sprintf("Ingress rules on destination do not allow traffic from source: %s towards destination port %d", q.SrcIP, q.DstPort),
		}
	}

	return nil
}

func sourceEgressBlocked(q *domain.Query) *domain.BlockingError {
	return &domain.BlockingError{
		Side:      domain.SideSource,
		Direction: domain.DirectionEgress,
		Policy:    domain.PolicySecurityGroup,
		Reason:    fmt.Sprintf("Egress rules on source do not allow traffic towards destination: %s : %d", q.DstIP, q.DstPort),
	}
}

// resolveGroups maps attached group IDs to their catalog records. Every ID
// must resolve; a miss is a usage error, not an implicit deny.
func resolveGroups(catalog []domain.SecurityGroupData, ids []string, field string) ([]domain.SecurityGroupData, error) {
	if len(ids) == 0 {
		return nil, &domain.InputError{Field: field, Reason: "at least one security group required"}
	}
	resolved := make([]domain.SecurityGroupData, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, group := range catalog {
			if group.ID == id {
				resolved = append(resolved, group)
				found = true
				break
			}
		}
		if !found {
			return nil, &domain.InputError{Field: field, Reason: fmt.Sprintf("security group %s not found in catalog", id)}
		}
	}
	return resolved, nil
}
