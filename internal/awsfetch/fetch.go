package awsfetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vpcreach/internal/domain"
)

// QuerySpec names the two endpoints to materialize a Query for. The
// destination is either an EC2 instance or an RDS DB instance. DstPort may
// be zero for RDS destinations, in which case the engine port is used.
type QuerySpec struct {
	SrcInstanceID string
	DstInstanceID string
	DstDBID       string
	DstPort       int
	SrcPortRange  *domain.PortRange
}

// BuildQuery resolves both endpoints, their subnet NACLs and the full
// security group catalog, and assembles a Query ready for evaluation. The
// two sides are fetched concurrently; referenced peer groups are pulled
// into the catalog so group-reference rules can be evaluated offline.
func (c *Client) BuildQuery(ctx context.Context, spec QuerySpec) (*domain.Query, error) {
	if spec.SrcInstanceID == "" {
		return nil, &domain.InputError{Field: "src", Reason: "source instance ID required"}
	}
	if (spec.DstInstanceID == "") == (spec.DstDBID == "") {
		return nil, &domain.InputError{Field: "dst", Reason: "exactly one of destination instance ID or DB instance ID required"}
	}

	var srcFacts, dstFacts *EndpointFacts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		facts, err := c.GetEC2Endpoint(gctx, spec.SrcInstanceID)
		if err != nil {
			return err
		}
		srcFacts = facts
		return nil
	})
	g.Go(func() error {
		var facts *EndpointFacts
		var err error
		if spec.DstInstanceID != "" {
			facts, err = c.GetEC2Endpoint(gctx, spec.DstInstanceID)
		} else {
			facts, err = c.GetRDSEndpoint(gctx, spec.DstDBID)
		}
		if err != nil {
			return err
		}
		dstFacts = facts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dstPort := spec.DstPort
	if dstPort == 0 {
		dstPort = dstFacts.Port
	}
	if dstPort == 0 {
		return nil, &domain.InputError{Field: "dst_port", Reason: "no destination port given and none discoverable"}
	}

	q := &domain.Query{
		SrcIP:             srcFacts.IP,
		SrcSubnetID:       srcFacts.SubnetID,
		SrcPortRange:      spec.SrcPortRange,
		DstIP:             dstFacts.IP,
		DstSubnetID:       dstFacts.SubnetID,
		DstPort:           dstPort,
		SrcSecurityGroups: srcFacts.SecurityGroups,
		DstSecurityGroups: dstFacts.SecurityGroups,
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		nacl, err := c.GetNetworkACLForSubnet(gctx, srcFacts.SubnetID)
		if err != nil {
			return err
		}
		q.SrcNACL = *nacl
		return nil
	})
	g.Go(func() error {
		nacl, err := c.GetNetworkACLForSubnet(gctx, dstFacts.SubnetID)
		if err != nil {
			return err
		}
		q.DstNACL = *nacl
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog, err := c.collectGroupCatalog(ctx, append(append([]string{}, srcFacts.SecurityGroups...), dstFacts.SecurityGroups...))
	if err != nil {
		return nil, err
	}
	q.SecurityGroups = catalog

	return q, nil
}

// collectGroupCatalog fetches the given groups and, transitively, every
// group their rules reference, so the catalog is closed under peer-group
// references.
func (c *Client) collectGroupCatalog(ctx context.Context, ids []string) ([]domain.SecurityGroupData, error) {
	var catalog []domain.SecurityGroupData
	fetched := map[string]bool{}
	pending := append([]string{}, ids...)

	for len(pending) > 0 {
		id := pending[0]
		pending = pending[1:]
		if id == "" || fetched[id] {
			continue
		}
		fetched[id] = true

		group, err := c.GetSecurityGroup(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("collect security group catalog: %w", err)
		}
		catalog = append(catalog, *group)

		for _, rules := range [][]domain.SecurityGroupRule{group.InboundRules, group.OutboundRules} {
			for _, rule := range rules {
				for _, ref := range rule.ReferencedGroups {
					if !fetched[ref] {
						pending = append(pending, ref)
					}
				}
			}
		}
	}
	return catalog, nil
}
