package awsfetch

import (
	"context"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"

	"vpcreach/internal/domain"
	"vpcreach/internal/ingest"
)

func toNACLData(nacl *ec2types.NetworkAcl) *domain.NACLData {
	var inbound, outbound []domain.NACLRule
	for _, entry := range nacl.Entries {
		rule := domain.NACLRule{
			RuleNumber: int(derefInt32(entry.RuleNumber)),
			Protocol:   protocolNumberToString(derefString(entry.Protocol)),
			CIDRBlock:  derefString(entry.CidrBlock),
			Action:     string(entry.RuleAction),
		}
		if entry.PortRange != nil {
			rule.FromPort = int(derefInt32(entry.PortRange.From))
			rule.ToPort = int(derefInt32(entry.PortRange.To))
		}
		if entry.IcmpTypeCode != nil {
			rule.ICMPType = derefInt32Ptr(entry.IcmpTypeCode.Type)
			rule.ICMPCode = derefInt32Ptr(entry.IcmpTypeCode.Code)
		}
		if entry.Egress != nil && *entry.Egress {
			outbound = append(outbound, rule)
		} else {
			inbound = append(inbound, rule)
		}
	}
	return &domain.NACLData{
		ID:            derefString(nacl.NetworkAclId),
		InboundRules:  ingest.SortRulesByNumber(inbound),
		OutboundRules: ingest.SortRulesByNumber(outbound),
	}
}

func toSecurityGroupData(sg *ec2types.SecurityGroup) *domain.SecurityGroupData {
	return &domain.SecurityGroupData{
		ID:            derefString(sg.GroupId),
		InboundRules:  toSecurityGroupRules(sg.IpPermissions),
		OutboundRules: toSecurityGroupRules(sg.IpPermissionsEgress),
	}
}

func toSecurityGroupRules(perms []ec2types.IpPermission) []domain.SecurityGroupRule {
	var rules []domain.SecurityGroupRule
	for _, perm := range perms {
		var cidrs []string
		for _, r := range perm.IpRanges {
			if r.CidrIp != nil {
				cidrs = append(cidrs, *r.CidrIp)
			}
		}

		var referenced []string
		for _, pair := range perm.UserIdGroupPairs {
			if pair.GroupId != nil {
				referenced = append(referenced, *pair.GroupId)
			}
		}

		rule := domain.SecurityGroupRule{
			Protocol:         derefString(perm.IpProtocol),
			FromPort:         -1,
			ToPort:           -1,
			CIDRBlocks:       cidrs,
			ReferencedGroups: referenced,
		}
		if perm.FromPort != nil {
			rule.FromPort = int(*perm.FromPort)
		}
		if perm.ToPort != nil {
			rule.ToPort = int(*perm.ToPort)
		}
		rules = append(rules, rule)
	}
	return rules
}

func toEC2EndpointFacts(inst *ec2types.Instance) *EndpointFacts {
	var sgs []string
	for _, sg := range inst.SecurityGroups {
		if sg.GroupId != nil {
			sgs = append(sgs, *sg.GroupId)
		}
	}
	return &EndpointFacts{
		IP:             derefString(inst.PrivateIpAddress),
		SubnetID:       derefString(inst.SubnetId),
		SecurityGroups: sgs,
	}
}

func (c *Client) toRDSEndpointFacts(ctx context.Context, db *rdstypes.DBInstance) (*EndpointFacts, error) {
	var sgs []string
	for _, sg := range db.VpcSecurityGroups {
		if sg.VpcSecurityGroupId != nil {
			sgs = append(sgs, *sg.VpcSecurityGroupId)
		}
	}
	var subnetIDs []string
	if db.DBSubnetGroup != nil {
		for _, subnet := range db.DBSubnetGroup.Subnets {
			if subnet.SubnetIdentifier != nil {
				subnetIDs = append(subnetIDs, *subnet.SubnetIdentifier)
			}
		}
	}

	facts := &EndpointFacts{SecurityGroups: sgs}
	if db.Endpoint != nil {
		facts.IP = resolveEndpointToIP(derefString(db.Endpoint.Address))
		facts.Port = int(derefInt32(db.Endpoint.Port))
	}
	if facts.IP == "" {
		return nil, &domain.InputError{Field: "dst_ip", Reason: "could not resolve db endpoint to a private address"}
	}

	subnetID, err := c.findSubnetForIP(ctx, subnetIDs, facts.IP)
	if err != nil {
		return nil, err
	}
	facts.SubnetID = subnetID
	return facts, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt32(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}

func derefInt32Ptr(i *int32) *int {
	if i == nil {
		return nil
	}
	n := int(*i)
	return &n
}

func protocolNumberToString(proto string) string {
	switch proto {
	case "-1":
		return "all"
	case "6":
		return "tcp"
	case "17":
		return "udp"
	case "1":
		return "icmp"
	default:
		return proto
	}
}
