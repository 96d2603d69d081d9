package eval

import "vpcreach/internal/domain"

const (
	// MsgNetworkACLsOK confirms a standalone network ACL evaluation.
	MsgNetworkACLsOK = "Network ACLs evaluation successful"
	// MsgSecurityGroupsOK confirms a standalone security group evaluation.
	MsgSecurityGroupsOK = "Security Groups rules validation successful"
	// MsgReachable confirms the combined verdict.
	MsgReachable = "Network ACLs and Security Groups allow traffic from source to destination"
)

// Evaluate composes the stateless and stateful evaluations into one
// verdict. The ACL checks run first, then the security group checks; the
// first blocked sub-check ends the evaluation and its reason is the only
// one reported. Evaluation is deterministic: the same query always yields
// the same verdict and message.
func Evaluate(q *domain.Query) (domain.Verdict, error) {
	if err := EvalNetworkACLs(q); err != nil {
		return domain.Verdict{}, err
	}
	if err := EvalSecurityGroups(q); err != nil {
		return domain.Verdict{}, err
	}
	return domain.Verdict{Reachable: true, Message: MsgReachable}, nil
}
