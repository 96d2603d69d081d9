// Package awsfetch materializes NACL and security group rule data from a
// live AWS account. It is strictly a collaborator of the evaluator: it
// builds a domain.Query and never participates in the verdict itself.
package awsfetch

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/ratelimit"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"vpcreach/internal/domain"
)

type Client struct {
	ec2Client *ec2.Client
	rdsClient *rds.Client
	accountID string
	region    string
	cache     *ttlCache
}

func newRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = 5
		o.MaxBackoff = 30 * time.Second
		o.Backoff = retry.NewExponentialJitterBackoff(o.MaxBackoff)
		o.RateLimiter = ratelimit.None
	})
}

func NewClient(cfg aws.Config, accountID, region string) *Client {
	retryer := newRetryer()
	return &Client{
		ec2Client: ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.Retryer = retryer }),
		rdsClient: rds.NewFromConfig(cfg, func(o *rds.Options) { o.Retryer = retryer }),
		accountID: accountID,
		region:    region,
		cache:     newTTLCache(5*time.Minute, 2000),
	}
}

func (c *Client) cacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetNetworkACLForSubnet fetches the NACL associated with a subnet and
// returns its rules sorted lowest rule number first, the order AWS
// evaluates them in, satisfying the evaluator's pre-sorted contract.
func (c *Client) GetNetworkACLForSubnet(ctx context.Context, subnetID string) (*domain.NACLData, error) {
	key := c.cacheKey("nacl", subnetID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.NACLData), nil
	}
	out, err := c.ec2Client.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("association.subnet-id"), Values: []string{subnetID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe network acls for subnet %s: %w", subnetID, err)
	}
	if len(out.NetworkAcls) == 0 {
		return nil, fmt.Errorf("no network acl associated with subnet %s", subnetID)
	}
	data := toNACLData(&out.NetworkAcls[0])
	c.cache.set(key, data)
	return data, nil
}

// GetSecurityGroup fetches one security group by ID.
func (c *Client) GetSecurityGroup(ctx context.Context, sgID string) (*domain.SecurityGroupData, error) {
	key := c.cacheKey("sg", sgID)
	if v, ok := c.cache.get(key); ok {
		return v.(*domain.SecurityGroupData), nil
	}
	out, err := c.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{sgID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe security group %s: %w", sgID, err)
	}
	if len(out.SecurityGroups) == 0 {
		return nil, fmt.Errorf("security group %s not found", sgID)
	}
	data := toSecurityGroupData(&out.SecurityGroups[0])
	c.cache.set(key, data)
	return data, nil
}

// EndpointFacts is what one side of a query needs from its resource:
// where it lives and which groups filter it. Port is only populated for
// resources that listen on a well-known port, like RDS.
type EndpointFacts struct {
	IP             string
	SubnetID       string
	SecurityGroups []string
	Port           int
}

// GetEC2Endpoint resolves an EC2 instance into endpoint facts.
func (c *Client) GetEC2Endpoint(ctx context.Context, instanceID string) (*EndpointFacts, error) {
	key := c.cacheKey("ec2", instanceID)
	if v, ok := c.cache.get(key); ok {
		return v.(*EndpointFacts), nil
	}
	out, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}
	facts := toEC2EndpointFacts(&out.Reservations[0].Instances[0])
	c.cache.set(key, facts)
	return facts, nil
}

// GetRDSEndpoint resolves an RDS DB instance into endpoint facts. The
// endpoint address is resolved to its private IP, and the engine port
// comes along so callers can default the destination port.
func (c *Client) GetRDSEndpoint(ctx context.Context, dbInstanceID string) (*EndpointFacts, error) {
	key := c.cacheKey("rds", dbInstanceID)
	if v, ok := c.cache.get(key); ok {
		return v.(*EndpointFacts), nil
	}
	out, err := c.rdsClient.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(dbInstanceID),
	})
	if err != nil {
		return nil, fmt.Errorf("describe db instance %s: %w", dbInstanceID, err)
	}
	if len(out.DBInstances) == 0 {
		return nil, fmt.Errorf("db instance %s not found", dbInstanceID)
	}
	facts, err := c.toRDSEndpointFacts(ctx, &out.DBInstances[0])
	if err != nil {
		return nil, err
	}
	c.cache.set(key, facts)
	return facts, nil
}

// findSubnetForIP locates which of the DB subnet group's subnets contains
// the resolved endpoint IP.
func (c *Client) findSubnetForIP(ctx context.Context, subnetIDs []string, ip string) (string, error) {
	if len(subnetIDs) == 0 {
		return "", fmt.Errorf("no subnets to search for %s", ip)
	}
	out, err := c.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		SubnetIds: subnetIDs,
	})
	if err != nil {
		return "", fmt.Errorf("describe subnets: %w", err)
	}
	for _, subnet := range out.Subnets {
		cidr := derefString(subnet.CidrBlock)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if parsed := net.ParseIP(ip); parsed != nil && network.Contains(parsed) {
			return derefString(subnet.SubnetId), nil
		}
	}
	return "", fmt.Errorf("no subnet in the group contains %s", ip)
}

func resolveEndpointToIP(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	ips, err := net.LookupHost(endpoint)
	if err != nil || len(ips) == 0 {
		return ""
	}
	return ips[0]
}
