package eval

import (
	"errors"
	"strings"
	"testing"

	"vpcreach/internal/domain"
)

func allowAllNACL() domain.NACLData {
	rule := domain.NACLRule{
		RuleNumber: 100,
		Protocol:   "all",
		Action:     "allow",
		CIDRBlock:  "0.0.0.0/0",
		FromPort:   0,
		ToPort:     65535,
	}
	return domain.NACLData{
		InboundRules:  []domain.NACLRule{rule},
		OutboundRules: []domain.NACLRule{rule},
	}
}

func baseQuery() *domain.Query {
	return &domain.Query{
		SrcIP:       "172.32.1.31",
		SrcSubnetID: "subnet-0d8ddbeaa790da839",
		DstIP:       "172.32.2.13",
		DstSubnetID: "subnet-06cc4582cb0dde318",
		DstPort:     3389,
		SrcNACL:     allowAllNACL(),
		DstNACL:     allowAllNACL(),
	}
}

func TestCheckACLsForPort_ExplicitAllow(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "172.32.0.0/16", FromPort: 3389, ToPort: 3389},
	}

	d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.Allowed() {
		t.Errorf("expected pass, got kind %v", d.Kind)
	}
	if d.RuleNumber != 100 {
		t.Errorf("expected rule 100, got %d", d.RuleNumber)
	}
}

func TestCheckACLsForPort_ExplicitDeny(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 50, Protocol: "tcp", Action: "deny", CIDRBlock: "172.32.0.0/16", FromPort: 3389, ToPort: 3389},
		{RuleNumber: 100, Protocol: "all", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}

	d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != domain.DecisionDeny {
		t.Errorf("expected explicit deny, got kind %v", d.Kind)
	}
	if d.RuleNumber != 50 {
		t.Errorf("expected rule 50, got %d", d.RuleNumber)
	}
}

func TestCheckACLsForPort_ImplicitDeny(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "10.0.0.0/8", FromPort: 3389, ToPort: 3389},
	}

	d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != domain.DecisionImplicitDeny {
		t.Errorf("expected implicit deny, got kind %v", d.Kind)
	}
}

func TestCheckACLsForPort_SkipsRulesWithoutCIDR(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 90, Protocol: "tcp", Action: "deny", FromPort: 0, ToPort: 65535},
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 3389, ToPort: 3389},
	}

	d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.Allowed() {
		t.Errorf("expected rule without cidr_block to be skipped, got kind %v", d.Kind)
	}
}

func TestCheckACLsForPort_AllProtocolIgnoresPorts(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
	}{
		{"all literal", "all"},
		{"numeric all", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []domain.NACLRule{
				{RuleNumber: 100, Protocol: tt.protocol, Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 80, ToPort: 80},
			}

			d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !d.Allowed() {
				t.Errorf("expected pass regardless of port bounds, got kind %v", d.Kind)
			}
		})
	}
}

func TestCheckACLsForPort_InputOrderWins(t *testing.T) {
	// The evaluator honors slice order, not rule numbers: a deny listed
	// first blocks even though a lower-numbered allow follows.
	rules := []domain.NACLRule{
		{RuleNumber: 200, Protocol: "all", Action: "deny", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 3389, ToPort: 3389},
	}

	d, err := CheckACLsForPort(rules, "172.32.2.13", 3389)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != domain.DecisionDeny {
		t.Errorf("expected the first listed rule to win, got kind %v", d.Kind)
	}
	if d.RuleNumber != 200 {
		t.Errorf("expected rule 200, got %d", d.RuleNumber)
	}
}

func TestCheckACLsForPort_MalformedRuleCIDR(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "all", Action: "allow", CIDRBlock: "not-a-cidr"},
	}

	if _, err := CheckACLsForPort(rules, "172.32.2.13", 3389); err == nil {
		t.Error("expected parse error for malformed rule CIDR")
	}
}

func TestCheckACLsForPortRange_SubsetAllowed(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}

	d, err := CheckACLsForPortRange(rules, "172.32.2.13", &domain.PortRange{From: 1024, To: 2048})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.Allowed() {
		t.Errorf("expected pass, got kind %v", d.Kind)
	}
}

func TestCheckACLsForPortRange_SubsetTooWide(t *testing.T) {
	rules := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 1024, ToPort: 2000},
	}

	d, err := CheckACLsForPortRange(rules, "172.32.2.13", &domain.PortRange{From: 1024, To: 2048})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != domain.DecisionImplicitDeny {
		t.Errorf("expected implicit deny for uncovered range, got kind %v", d.Kind)
	}
}

func TestCheckACLsForPortRange_NoRangeMatchesOnlyAllProtocol(t *testing.T) {
	tcpOnly := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}
	allProto := []domain.NACLRule{
		{RuleNumber: 100, Protocol: "all", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}

	d, err := CheckACLsForPortRange(tcpOnly, "172.32.2.13", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != domain.DecisionImplicitDeny {
		t.Errorf("expected implicit deny without a source port range, got kind %v", d.Kind)
	}

	d, err = CheckACLsForPortRange(allProto, "172.32.2.13", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.Allowed() {
		t.Errorf("expected all-protocol rule to pass, got kind %v", d.Kind)
	}
}

func TestEvalNetworkACLs_AllowAll(t *testing.T) {
	if err := EvalNetworkACLs(baseQuery()); err != nil {
		t.Errorf("expected pass, got %v", err)
	}
}

func TestEvalNetworkACLs_SameSubnetShortCircuits(t *testing.T) {
	denyAll := domain.NACLData{
		InboundRules:  []domain.NACLRule{{RuleNumber: 100, Protocol: "all", Action: "deny", CIDRBlock: "0.0.0.0/0"}},
		OutboundRules: []domain.NACLRule{{RuleNumber: 100, Protocol: "all", Action: "deny", CIDRBlock: "0.0.0.0/0"}},
	}
	q := baseQuery()
	q.DstSubnetID = q.SrcSubnetID
	q.SrcNACL = denyAll
	q.DstNACL = denyAll

	if err := EvalNetworkACLs(q); err != nil {
		t.Errorf("expected same-subnet traffic to pass unconditionally, got %v", err)
	}
}

func TestEvalNetworkACLs_SourceEgressDenied(t *testing.T) {
	q := baseQuery()
	q.SrcNACL.OutboundRules = []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "deny", CIDRBlock: "172.32.2.0/24", FromPort: 3389, ToPort: 3389},
		{RuleNumber: 200, Protocol: "all", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}

	err := EvalNetworkACLs(q)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Source Subnet Network Acl Egress Rules do not allow outbound traffic to destination: 172.32.2.13 : 3389") {
		t.Errorf("unexpected message: %v", err)
	}

	var blocked *domain.BlockingError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockingError, got %T", err)
	}
	if blocked.Side != domain.SideSource || blocked.Direction != domain.DirectionEgress {
		t.Errorf("expected source/egress, got %s/%s", blocked.Side, blocked.Direction)
	}
	if blocked.Policy != domain.PolicyNetworkACL {
		t.Errorf("expected network-acl policy, got %s", blocked.Policy)
	}
	if blocked.RuleNumber != 100 {
		t.Errorf("expected rule 100, got %d", blocked.RuleNumber)
	}
}

func TestEvalNetworkACLs_SourceIngressImplicitDeny(t *testing.T) {
	q := baseQuery()
	q.SrcPortRange = &domain.PortRange{From: 1024, To: 2048}
	q.SrcNACL.InboundRules = []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "allow", CIDRBlock: "10.0.0.0/8", FromPort: 0, ToPort: 65535},
	}

	err := EvalNetworkACLs(q)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Source Subnet Network Acl Ingress Rules do not allow inbound traffic from destination: 172.32.2.13") {
		t.Errorf("unexpected message: %v", err)
	}

	var blocked *domain.BlockingError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockingError, got %T", err)
	}
	if blocked.RuleNumber != 0 {
		t.Errorf("expected no rule number for implicit deny, got %d", blocked.RuleNumber)
	}
}

func TestEvalNetworkACLs_DestinationIngressDenied(t *testing.T) {
	q := baseQuery()
	q.DstNACL.InboundRules = []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "deny", CIDRBlock: "172.32.1.0/24", FromPort: 3389, ToPort: 3389},
		{RuleNumber: 200, Protocol: "all", Action: "allow", CIDRBlock: "0.0.0.0/0", FromPort: 0, ToPort: 65535},
	}

	err := EvalNetworkACLs(q)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Destination Subnet Network Acl Ingress Rules do not allow inbound traffic from source: 172.32.1.31 towards destination port 3389") {
		t.Errorf("unexpected message: %v", err)
	}

	var blocked *domain.BlockingError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockingError, got %T", err)
	}
	if blocked.Side != domain.SideDestination || blocked.Direction != domain.DirectionIngress {
		t.Errorf("expected destination/ingress, got %s/%s", blocked.Side, blocked.Direction)
	}
}

func TestEvalNetworkACLs_DestinationEgressDenied(t *testing.T) {
	q := baseQuery()
	q.SrcPortRange = &domain.PortRange{From: 1024, To: 2048}
	q.DstNACL.OutboundRules = []domain.NACLRule{
		{RuleNumber: 100, Protocol: "tcp", Action: "deny", CIDRBlock: "172.32.1.0/24", FromPort: 0, ToPort: 65535},
	}

	err := EvalNetworkACLs(q)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Destination Subnet Network Acl Egress Rules do not allow outbound traffic to source: 172.32.1.31") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestEvalNetworkACLs_MissingRuleList(t *testing.T) {
	q := baseQuery()
	q.SrcNACL.InboundRules = nil

	err := EvalNetworkACLs(q)

	var inputErr *domain.InputError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputError, got %T: %v", err, err)
	}
	if inputErr.Field != "src_network_acls" {
		t.Errorf("expected src_network_acls field, got %s", inputErr.Field)
	}
}

func TestEvalNetworkACLs_EmptyListIsImplicitDeny(t *testing.T) {
	q := baseQuery()
	q.SrcNACL.OutboundRules = []domain.NACLRule{}

	err := EvalNetworkACLs(q)

	var blocked *domain.BlockingError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockingError for empty egress list, got %T: %v", err, err)
	}
}

func TestEvalNetworkACLs_BadAddresses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Query)
		field  string
	}{
		{"bad src ip", func(q *domain.Query) { q.SrcIP = "nope" }, "src_ip"},
		{"ipv6 src ip", func(q *domain.Query) { q.SrcIP = "2001:db8::1" }, "src_ip"},
		{"bad dst ip", func(q *domain.Query) { q.DstIP = "" }, "dst_ip"},
		{"missing src subnet", func(q *domain.Query) { q.SrcSubnetID = "" }, "src_subnet_id"},
		{"missing dst subnet", func(q *domain.Query) { q.DstSubnetID = "" }, "dst_subnet_id"},
		{"port out of range", func(q *domain.Query) { q.DstPort = 70000 }, "dst_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := baseQuery()
			tt.mutate(q)

			err := EvalNetworkACLs(q)

			var inputErr *domain.InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("expected InputError, got %T: %v", err, err)
			}
			if inputErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, inputErr.Field)
			}
		})
	}
}
