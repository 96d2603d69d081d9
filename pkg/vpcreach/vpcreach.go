// Package vpcreach answers whether traffic between two VPC endpoints is
// permitted by the network ACLs and security groups attached to each side.
// The evaluation is a pure function of the supplied Query; use the
// awsfetch-backed helpers to materialize a Query from a live account.
package vpcreach

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"vpcreach/internal/awsfetch"
	"vpcreach/internal/domain"
	"vpcreach/internal/eval"
	"vpcreach/internal/ingest"
)

type Query = domain.Query

type PortRange = domain.PortRange

type NACLData = domain.NACLData

type NACLRule = domain.NACLRule

type SecurityGroupData = domain.SecurityGroupData

type SecurityGroupRule = domain.SecurityGroupRule

type Verdict = domain.Verdict

type BlockingError = domain.BlockingError

type InputError = domain.InputError

type Client = awsfetch.Client

type AccountContext = awsfetch.AccountContext

type QuerySpec = awsfetch.QuerySpec

const (
	MsgNetworkACLsOK    = eval.MsgNetworkACLsOK
	MsgSecurityGroupsOK = eval.MsgSecurityGroupsOK
	MsgReachable        = eval.MsgReachable
)

// Evaluate runs the combined verdict: network ACLs first, then security
// groups, failing fast on the first blocked sub-check.
func Evaluate(q *Query) (Verdict, error) {
	return eval.Evaluate(q)
}

// EvalNetworkACLs runs only the stateless ACL evaluation.
func EvalNetworkACLs(q *Query) error {
	return eval.EvalNetworkACLs(q)
}

// EvalSecurityGroups runs only the stateful security group evaluation.
func EvalSecurityGroups(q *Query) error {
	return eval.EvalSecurityGroups(q)
}

// CheckSourceEgress runs the standalone source egress pre-check against
// the source's security groups.
func CheckSourceEgress(q *Query) error {
	return eval.CheckSourceEgress(q)
}

// DecodeQuery parses a YAML or JSON query document.
func DecodeQuery(data []byte) (*Query, error) {
	return ingest.DecodeQuery(data)
}

// NewClient creates an AWS-backed client for materializing queries.
func NewClient(cfg aws.Config, accountID, region string) *Client {
	return awsfetch.NewClient(cfg, accountID, region)
}

// NewAccountContext creates an account context for cross-account access.
// roleARNPattern must contain %s as a placeholder for the account ID.
func NewAccountContext(cfg aws.Config, roleARNPattern string) *AccountContext {
	return awsfetch.NewAccountContext(cfg, roleARNPattern)
}

// BuildQuery materializes rule data for the endpoints named by spec and
// returns a Query ready for Evaluate.
func BuildQuery(ctx context.Context, client *Client, spec QuerySpec) (*Query, error) {
	return client.BuildQuery(ctx, spec)
}
