package permission

import (
	"fmt"
	"strings"

	"github.com/kubedeck/kubedeck/internal/option"
)

// A helm-app environment selection either names a concrete environment of a
// cluster or marks every existing and future namespace of a cluster.
//
//	editable form:  {Value: "#prod", ClusterName: ""}   wire form: "prod__*"
//	editable form:  {Value: "env-a", ClusterName: "prod"} wire form: "env-a"
//	editable form:  {Value: "env-a", ClusterName: ""}     wire form: "env-a"
//
// The cluster of a concrete environment only matters for suppressing it
// under a future-namespaces marker, so an environment whose cluster is
// unknown is still written out.
const (
	futureNamespacesPrefix = "#"
	futureNamespacesSuffix = "__*"
)

type environmentSelector struct {
	cluster   string
	value     string
	allFuture bool
}

// parseEnvironmentSelector reads an editable environment option. Empty
// values and the wildcard are rejected.
func parseEnvironmentSelector(e EnvironmentOption) (environmentSelector, bool) {
	switch {
	case e.Value == "" || e.Value == option.Wildcard:
		return environmentSelector{}, false
	case e.ClusterName == "" && strings.HasPrefix(e.Value, futureNamespacesPrefix):
		cluster := strings.TrimPrefix(e.Value, futureNamespacesPrefix)
		if cluster == "" {
			return environmentSelector{}, false
		}
		return environmentSelector{cluster: cluster, allFuture: true}, true
	default:
		return environmentSelector{cluster: e.ClusterName, value: e.Value}, true
	}
}

// parseWireEnvironment reads one comma-separated entry of a wire environment.
func parseWireEnvironment(v string) environmentSelector {
	if cluster, ok := strings.CutSuffix(v, futureNamespacesSuffix); ok && cluster != "" {
		return environmentSelector{cluster: cluster, allFuture: true}
	}
	return environmentSelector{value: v}
}

func (s environmentSelector) wire() string {
	if s.allFuture {
		return s.cluster + futureNamespacesSuffix
	}
	return s.value
}

func (s environmentSelector) editable() EnvironmentOption {
	if s.allFuture {
		return EnvironmentOption{
			Label: fmt.Sprintf("All existing + future environments in %s", s.cluster),
			Value: futureNamespacesPrefix + s.cluster,
		}
	}
	return EnvironmentOption{Label: s.value, Value: s.value, ClusterName: s.cluster}
}

// encodeClusterEnvironments joins helm-app environment selections. The
// wildcard encodes to "". A cluster marked for all future namespaces
// suppresses its concrete environments, and every entry is written once in
// the order it was first seen.
func encodeClusterEnvironments(envs []EnvironmentOption) string {
	if hasWildcardEnvironment(envs) {
		return ""
	}
	selectors := make([]environmentSelector, 0, len(envs))
	allFuture := make(map[string]bool)
	for _, e := range envs {
		s, ok := parseEnvironmentSelector(e)
		if !ok {
			continue
		}
		if s.allFuture {
			allFuture[s.cluster] = true
		}
		selectors = append(selectors, s)
	}

	seen := make(map[string]bool, len(selectors))
	entries := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if !s.allFuture && allFuture[s.cluster] {
			continue
		}
		w := s.wire()
		if seen[w] {
			continue
		}
		seen[w] = true
		entries = append(entries, w)
	}
	return strings.Join(entries, ",")
}

func hasWildcardEnvironment(envs []EnvironmentOption) bool {
	opts := make([]option.Option, 0, len(envs))
	for _, e := range envs {
		opts = append(opts, e.Option())
	}
	return option.HasWildcard(opts)
}
