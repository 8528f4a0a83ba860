// Package browser drives the resource-browser page: it maps routes to tabs,
// reacts to navigation, cluster and role changes, and tracks data staleness.
package browser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kubedeck/kubedeck/internal/kube"
)

// BasePath is the root of every resource-browser route.
const BasePath = "/resource-browser"

// Route placeholders.
const (
	K8sEmptyGroup = "k8sEmptyGroup"
	AllNamespaces = "all"
)

// Node types with dedicated screens.
var (
	NodeTypeNode     = strings.ToLower(kube.NodeGVK.Kind)
	NodeTypeEvent    = strings.ToLower(kube.EventGVK.Kind)
	NodeTypeOverview = "overview"
	NodeTypeTerminal = "terminal"
)

// ErrInvalidRoute is returned for paths outside the resource browser.
var ErrInvalidRoute = errors.New("invalid resource-browser route")

// Route is a parsed /resource-browser/{clusterId}/{namespace}/{nodeType}/{group}/{node?}
// path. Only ClusterID is required; the bare base path yields a zero Route.
type Route struct {
	ClusterID string `json:"clusterId"`
	Namespace string `json:"namespace"`
	NodeType  string `json:"nodeType"`
	Group     string `json:"group"`
	Node      string `json:"node,omitempty"`
}

// ParseRoute parses a resource-browser path. Query strings are ignored and
// segments are unescaped.
func ParseRoute(raw string) (Route, error) {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.EscapedPath()
	}
	p = strings.TrimSuffix(p, "/")
	if p != BasePath && !strings.HasPrefix(p, BasePath+"/") {
		return Route{}, fmt.Errorf("%w: %s", ErrInvalidRoute, raw)
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(p, BasePath), "/")
	if rest == "" {
		return Route{}, nil
	}

	parts := strings.Split(rest, "/")
	if len(parts) > 5 {
		return Route{}, fmt.Errorf("%w: too many segments in %s", ErrInvalidRoute, raw)
	}
	for i, part := range parts {
		v, err := url.PathUnescape(part)
		if err != nil {
			return Route{}, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
		}
		parts[i] = v
	}
	var r Route
	fields := []*string{&r.ClusterID, &r.Namespace, &r.NodeType, &r.Group, &r.Node}
	for i, v := range parts {
		*fields[i] = v
	}
	if r.ClusterID == "" {
		return Route{}, fmt.Errorf("%w: missing cluster id", ErrInvalidRoute)
	}
	return r, nil
}

// Path renders the route. Missing namespace, node type and group fall back
// to all namespaces, nodes and the empty group.
func (r Route) Path() string {
	if r.ClusterID == "" {
		return BasePath
	}
	ns := r.Namespace
	if ns == "" {
		ns = AllNamespaces
	}
	nodeType := r.NodeType
	if nodeType == "" {
		nodeType = NodeTypeNode
	}
	group := r.Group
	if group == "" {
		group = K8sEmptyGroup
	}
	segs := []string{BasePath, url.PathEscape(r.ClusterID), url.PathEscape(ns), url.PathEscape(nodeType), url.PathEscape(group)}
	if r.Node != "" {
		segs = append(segs, url.PathEscape(r.Node))
	}
	return strings.Join(segs, "/")
}

// IsNodeType reports whether the route's node type equals nodeType, ignoring case.
func (r Route) IsNodeType(nodeType string) bool {
	return strings.EqualFold(r.NodeType, nodeType)
}

// ClusterEntryPath is where the browser lands after switching to a cluster.
func ClusterEntryPath(clusterID string) string {
	return Route{ClusterID: clusterID, Namespace: AllNamespaces, NodeType: NodeTypeNode, Group: K8sEmptyGroup}.Path()
}
