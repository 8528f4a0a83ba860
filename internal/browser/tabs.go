package browser

import (
	"fmt"

	"github.com/kubedeck/kubedeck/internal/tabs"
)

// Fixed tab names and id prefixes.
const (
	TabOverview      = "Overview"
	TabK8sResources  = "K8s Resources"
	TabAdminTerminal = "Admin Terminal"

	PrefixOverview      = "cluster_overview"
	PrefixK8sResources  = "k8s_resources"
	PrefixAdminTerminal = "terminal"
)

// TabsBasedOnRole returns the tabs for a page showing the given cluster and
// namespace. The Admin Terminal tab is only offered to super admins and is
// only mounted when the route points at it. When dynamic is not nil it is
// appended and takes the selection.
func TabsBasedOnRole(clusterID, namespace string, superAdmin bool, dynamic *tabs.Spec, route Route) []tabs.Spec {
	if namespace == "" {
		namespace = AllNamespaces
	}
	terminalSelected := superAdmin && route.IsNodeType(NodeTypeTerminal)
	overviewSelected := dynamic == nil && route.IsNodeType(NodeTypeOverview)

	specs := []tabs.Spec{
		{
			Identity: tabs.Identity{IDPrefix: PrefixOverview, Name: TabOverview},
			URL:      Route{ClusterID: clusterID, Namespace: namespace, NodeType: NodeTypeOverview, Group: K8sEmptyGroup}.Path(),
			Selected: overviewSelected,
			Position: tabs.PositionOverview,
		},
		{
			Identity: tabs.Identity{IDPrefix: PrefixK8sResources, Name: TabK8sResources},
			URL:      Route{ClusterID: clusterID, Namespace: namespace, NodeType: NodeTypeNode, Group: K8sEmptyGroup}.Path(),
			Selected: dynamic == nil && !overviewSelected && !terminalSelected,
			Position: tabs.PositionResourceList,
		},
	}
	if superAdmin {
		specs = append(specs, tabs.Spec{
			Identity: tabs.Identity{IDPrefix: PrefixAdminTerminal, Name: TabAdminTerminal},
			URL:      Route{ClusterID: clusterID, Namespace: namespace, NodeType: NodeTypeTerminal, Group: K8sEmptyGroup}.Path(),
			Selected: terminalSelected && dynamic == nil,
			Alive:    terminalSelected,
			Position: tabs.PositionAdminTerminal,
		})
	}
	if dynamic != nil {
		specs = append(specs, *dynamic)
	}
	return specs
}

// DynamicTabData builds the tab for the resource named by route. Nodes are
// cluster scoped and share one prefix. Events ignore their group.
func DynamicTabData(route Route, url string) (tabs.Spec, bool) {
	if route.Node == "" {
		return tabs.Spec{}, false
	}
	var idPrefix string
	switch {
	case route.IsNodeType(NodeTypeNode):
		idPrefix = K8sEmptyGroup
	default:
		group := route.Group
		if group == "" || route.IsNodeType(NodeTypeEvent) {
			group = K8sEmptyGroup
		}
		idPrefix = fmt.Sprintf("%s_%s", group, route.Namespace)
	}
	return tabs.DynamicSpec(tabs.Identity{IDPrefix: idPrefix, Kind: route.NodeType, Name: route.Node}, url), true
}
