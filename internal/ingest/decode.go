// Package ingest decodes raw query documents into validated domain types.
// The wire shape mirrors the caller contract: positional eight-element ACL
// rule tuples, NACL collections holding one egress and one ingress list,
// and a security group catalog keyed by group_id. Everything malformed is
// rejected here, before any rule evaluation.
package ingest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vpcreach/internal/domain"
)

// ACL rule tuples arrive as
// [rule_number, protocol, rule_action, cidr_block, icmp_type, icmp_code, port_from, port_to].
const ruleTupleLen = 8

type rawQuery struct {
	SrcIP             string             `yaml:"src_ip"`
	SrcSubnetID       string             `yaml:"src_subnet_id"`
	SrcPortRange      string             `yaml:"src_port_range"`
	DstIP             string             `yaml:"dst_ip"`
	DstSubnetID       string             `yaml:"dst_subnet_id"`
	DstPort           any                `yaml:"dst_port"`
	SrcNetworkACLs    []map[string][]any `yaml:"src_network_acls"`
	DstNetworkACLs    []map[string][]any `yaml:"dst_network_acls"`
	SrcSecurityGroups []string           `yaml:"src_security_groups"`
	DstSecurityGroups []string           `yaml:"dst_security_groups"`
	SecurityGroups    []rawSecurityGroup `yaml:"security_groups"`
}

type rawSecurityGroup struct {
	GroupID             string          `yaml:"group_id"`
	IPPermissions       []rawPermission `yaml:"ip_permissions"`
	IPPermissionsEgress []rawPermission `yaml:"ip_permissions_egress"`
}

type rawPermission struct {
	IPProtocol       string         `yaml:"ip_protocol"`
	FromPort         *int           `yaml:"from_port"`
	ToPort           *int           `yaml:"to_port"`
	IPRanges         []rawIPRange   `yaml:"ip_ranges"`
	UserIDGroupPairs []rawGroupPair `yaml:"user_id_group_pairs"`
}

type rawIPRange struct {
	CidrIP string `yaml:"cidr_ip"`
}

type rawGroupPair struct {
	GroupID string `yaml:"group_id"`
}

// DecodeQuery parses a YAML (or JSON) query document into a typed Query.
// Rule lists keep their document order: the document's order is the
// caller's declared evaluation priority, never re-sorted here.
func DecodeQuery(data []byte) (*domain.Query, error) {
	var raw rawQuery
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &domain.InputError{Field: "query", Reason: err.Error()}
	}

	q := &domain.Query{
		SrcIP:             raw.SrcIP,
		SrcSubnetID:       raw.SrcSubnetID,
		DstIP:             raw.DstIP,
		DstSubnetID:       raw.DstSubnetID,
		SrcSecurityGroups: raw.SrcSecurityGroups,
		DstSecurityGroups: raw.DstSecurityGroups,
	}

	if raw.SrcPortRange != "" {
		pr, err := ParsePortRange(raw.SrcPortRange)
		if err != nil {
			return nil, err
		}
		q.SrcPortRange = pr
	}

	port, err := coerceInt(raw.DstPort)
	if err != nil {
		return nil, &domain.InputError{Field: "dst_port", Reason: err.Error()}
	}
	q.DstPort = port

	if q.SrcNACL, err = decodeNACLCollection(raw.SrcNetworkACLs, "src_network_acls"); err != nil {
		return nil, err
	}
	if q.DstNACL, err = decodeNACLCollection(raw.DstNetworkACLs, "dst_network_acls"); err != nil {
		return nil, err
	}

	for _, rawGroup := range raw.SecurityGroups {
		group, err := decodeSecurityGroup(rawGroup)
		if err != nil {
			return nil, err
		}
		q.SecurityGroups = append(q.SecurityGroups, group)
	}

	return q, nil
}

// ParsePortRange parses the "from-to" source port range form.
func ParsePortRange(s string) (*domain.PortRange, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, &domain.InputError{Field: "src_port_range", Reason: fmt.Sprintf("%q is not of the form from-to", s)}
	}
	from, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, &domain.InputError{Field: "src_port_range", Reason: fmt.Sprintf("bad from port %q", parts[0])}
	}
	to, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, &domain.InputError{Field: "src_port_range", Reason: fmt.Sprintf("bad to port %q", parts[1])}
	}
	if from < 0 || from > 65535 || to < 0 || to > 65535 {
		return nil, &domain.InputError{Field: "src_port_range", Reason: fmt.Sprintf("%q out of range", s)}
	}
	return &domain.PortRange{From: from, To: to}, nil
}

// decodeNACLCollection resolves exactly one egress and one ingress rule
// list from a NACL collection. A missing or duplicated direction is a
// usage error.
func decodeNACLCollection(items []map[string][]any, field string) (domain.NACLData, error) {
	var data domain.NACLData
	seen := map[string]bool{}
	for _, item := range items {
		for direction, tuples := range item {
			if direction != "egress" && direction != "ingress" {
				return domain.NACLData{}, &domain.InputError{Field: field, Reason: fmt.Sprintf("unknown direction %q", direction)}
			}
			if seen[direction] {
				return domain.NACLData{}, &domain.InputError{Field: field, Reason: fmt.Sprintf("duplicate %s rule list", direction)}
			}
			seen[direction] = true
			rules := make([]domain.NACLRule, 0, len(tuples))
			for i, tuple := range tuples {
				rule, err := decodeRuleTuple(tuple)
				if err != nil {
					return domain.NACLData{}, &domain.InputError{Field: field, Reason: fmt.Sprintf("%s rule %d: %v", direction, i, err)}
				}
				rules = append(rules, rule)
			}
			if direction == "egress" {
				data.OutboundRules = rules
			} else {
				data.InboundRules = rules
			}
		}
	}
	if data.OutboundRules == nil {
		return domain.NACLData{}, &domain.InputError{Field: field, Reason: "no egress rule list"}
	}
	if data.InboundRules == nil {
		return domain.NACLData{}, &domain.InputError{Field: field, Reason: "no ingress rule list"}
	}
	return data, nil
}

func decodeRuleTuple(v any) (domain.NACLRule, error) {
	tuple, ok := v.([]any)
	if !ok {
		return domain.NACLRule{}, fmt.Errorf("entry is not a tuple")
	}
	if len(tuple) != ruleTupleLen {
		return domain.NACLRule{}, fmt.Errorf("expected %d elements, got %d", ruleTupleLen, len(tuple))
	}

	ruleNumber, err := coerceInt(tuple[0])
	if err != nil {
		return domain.NACLRule{}, fmt.Errorf("rule_number: %v", err)
	}
	protocol, err := coerceString(tuple[1])
	if err != nil {
		return domain.NACLRule{}, fmt.Errorf("protocol: %v", err)
	}
	action, err := coerceString(tuple[2])
	if err != nil {
		return domain.NACLRule{}, fmt.Errorf("rule_action: %v", err)
	}
	if action != "allow" && action != "deny" {
		return domain.NACLRule{}, fmt.Errorf("rule_action %q is not allow or deny", action)
	}

	rule := domain.NACLRule{
		RuleNumber: ruleNumber,
		Protocol:   protocol,
		Action:     action,
	}

	if tuple[3] != nil {
		if rule.CIDRBlock, err = coerceString(tuple[3]); err != nil {
			return domain.NACLRule{}, fmt.Errorf("cidr_block: %v", err)
		}
	}
	if rule.ICMPType, err = coerceOptionalInt(tuple[4]); err != nil {
		return domain.NACLRule{}, fmt.Errorf("icmp_type: %v", err)
	}
	if rule.ICMPCode, err = coerceOptionalInt(tuple[5]); err != nil {
		return domain.NACLRule{}, fmt.Errorf("icmp_code: %v", err)
	}
	if tuple[6] != nil {
		if rule.FromPort, err = coerceInt(tuple[6]); err != nil {
			return domain.NACLRule{}, fmt.Errorf("port_from: %v", err)
		}
	}
	if tuple[7] != nil {
		if rule.ToPort, err = coerceInt(tuple[7]); err != nil {
			return domain.NACLRule{}, fmt.Errorf("port_to: %v", err)
		}
	}
	return rule, nil
}

func decodeSecurityGroup(raw rawSecurityGroup) (domain.SecurityGroupData, error) {
	if raw.GroupID == "" {
		return domain.SecurityGroupData{}, &domain.InputError{Field: "security_groups", Reason: "group without group_id"}
	}
	group := domain.SecurityGroupData{ID: raw.GroupID}
	for _, perm := range raw.IPPermissions {
		group.InboundRules = append(group.InboundRules, decodePermission(perm))
	}
	for _, perm := range raw.IPPermissionsEgress {
		group.OutboundRules = append(group.OutboundRules, decodePermission(perm))
	}
	return group, nil
}

func decodePermission(perm rawPermission) domain.SecurityGroupRule {
	rule := domain.SecurityGroupRule{
		Protocol: perm.IPProtocol,
		FromPort: -1,
		ToPort:   -1,
	}
	if perm.FromPort != nil {
		rule.FromPort = *perm.FromPort
	}
	if perm.ToPort != nil {
		rule.ToPort = *perm.ToPort
	}
	for _, r := range perm.IPRanges {
		if r.CidrIP != "" {
			rule.CIDRBlocks = append(rule.CIDRBlocks, r.CidrIP)
		}
	}
	for _, pair := range perm.UserIDGroupPairs {
		if pair.GroupID != "" {
			rule.ReferencedGroups = append(rule.ReferencedGroups, pair.GroupID)
		}
	}
	return rule
}

// SortRulesByNumber returns a copy of rules ordered lowest rule number
// first, the order AWS evaluates NACL entries in. Use it to establish the
// evaluator's pre-sorted contract when the input order is not already the
// intended priority order.
func SortRulesByNumber(rules []domain.NACLRule) []domain.NACLRule {
	sorted := make([]domain.NACLRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RuleNumber < sorted[j].RuleNumber
	})
	return sorted
}

func coerceInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", n)
		}
		return parsed, nil
	case nil:
		return 0, fmt.Errorf("missing value")
	default:
		return 0, fmt.Errorf("%v is not an integer", v)
	}
}

func coerceOptionalInt(v any) (*int, error) {
	if v == nil {
		return nil, nil
	}
	n, err := coerceInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func coerceString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%v is not a string", v)
	}
	return s, nil
}
