package kube

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/option"
)

// ErrClusterNotFound is returned for an unknown cluster id.
var ErrClusterNotFound = errors.New("cluster not found")

// Cluster is the minimal view of a cluster used by the cluster selector.
type Cluster struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	ErrorInConnecting string `json:"errorInConnecting,omitempty"`
}

// ResourceGroup is one kind served by a cluster.
type ResourceGroup struct {
	GVK        schema.GroupVersionKind `json:"gvk"`
	Namespaced bool                    `json:"namespaced"`
	ShortNames []string                `json:"shortNames,omitempty"`
}

type clusterEntry struct {
	cluster Cluster
	config  *rest.Config
	client  kubernetes.Interface
}

// ClusterSet holds the clusters the server can browse. Ids start at 1 and
// follow the order clusters were discovered in.
type ClusterSet struct {
	mu        sync.Mutex
	entries   []*clusterEntry
	newClient func(*rest.Config) (kubernetes.Interface, error)
}

// NewClusterSet loads clusters from the in-cluster config or the kubeconfig
// contexts. allowedContexts restricts the contexts used; empty means all.
func NewClusterSet(allowedContexts []string) (*ClusterSet, error) {
	configs, err := loadClusterConfigs(allowedContexts)
	if err != nil {
		return nil, err
	}
	cs := &ClusterSet{newClient: newClientset}
	for i, cc := range configs {
		e := &clusterEntry{cluster: Cluster{ID: i + 1, Name: cc.name}, config: cc.config}
		if cc.err != nil {
			e.cluster.ErrorInConnecting = cc.err.Error()
		}
		cs.entries = append(cs.entries, e)
	}
	klog.Infof("Loaded %d cluster(s)", len(cs.entries))
	return cs, nil
}

// NewStaticClusterSet wraps ready clients, keyed by cluster name. Ids are
// assigned in the order of names.
func NewStaticClusterSet(names []string, clients map[string]kubernetes.Interface) *ClusterSet {
	cs := &ClusterSet{newClient: newClientset}
	for i, name := range names {
		cs.entries = append(cs.entries, &clusterEntry{
			cluster: Cluster{ID: i + 1, Name: name},
			client:  clients[name],
		})
	}
	return cs
}

// KnownClusters returns the configured clusters in id order without
// contacting them. Only load-time errors show in ErrorInConnecting.
func (cs *ClusterSet) KnownClusters() []Cluster {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Cluster, 0, len(cs.entries))
	for _, e := range cs.entries {
		out = append(out, e.cluster)
	}
	return out
}

// ListClusters returns every cluster sorted by name. Clusters whose API
// server cannot be reached carry the error in ErrorInConnecting.
func (cs *ClusterSet) ListClusters(ctx context.Context) ([]Cluster, error) {
	cs.mu.Lock()
	entries := append([]*clusterEntry(nil), cs.entries...)
	cs.mu.Unlock()

	out := make([]Cluster, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := e.cluster
		if c.ErrorInConnecting == "" {
			if err := cs.ping(e); err != nil {
				klog.V(2).Infof("Cluster %s is not reachable: %v", c.Name, err)
				c.ErrorInConnecting = err.Error()
			}
		}
		out = append(out, c)
	}
	option.SortAlphabetically(out, func(c Cluster) string { return c.Name })
	return out, nil
}

func (cs *ClusterSet) ping(e *clusterEntry) error {
	client, err := cs.clientFor(e)
	if err != nil {
		return err
	}
	_, err = client.Discovery().ServerVersion()
	return err
}

// ListResourceGroups returns the kinds served by the cluster with the given
// id. Subresources are skipped. Groups that fail discovery are logged and
// left out.
func (cs *ClusterSet) ListResourceGroups(ctx context.Context, clusterID string) ([]ResourceGroup, error) {
	e, err := cs.entry(clusterID)
	if err != nil {
		return nil, err
	}
	if e.cluster.ErrorInConnecting != "" {
		return nil, fmt.Errorf("cluster %s: %s", e.cluster.Name, e.cluster.ErrorInConnecting)
	}
	client, err := cs.clientFor(e)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, lists, err := client.Discovery().ServerGroupsAndResources()
	if err != nil {
		if !discovery.IsGroupDiscoveryFailedError(err) {
			return nil, fmt.Errorf("failed to discover resources of cluster %s: %w", e.cluster.Name, err)
		}
		klog.Warningf("Partial discovery for cluster %s: %v", e.cluster.Name, err)
	}

	seen := make(map[schema.GroupVersionKind]bool)
	var out []ResourceGroup
	for _, list := range lists {
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to parse group version: %w", err)
		}
		for _, r := range list.APIResources {
			if isSubresource(r.Name) {
				continue
			}
			gvk := gv.WithKind(r.Kind)
			if seen[gvk] {
				continue
			}
			seen[gvk] = true
			out = append(out, ResourceGroup{GVK: gvk, Namespaced: r.Namespaced, ShortNames: r.ShortNames})
		}
	}
	return out, nil
}

// Name returns the name of the cluster with the given id.
func (cs *ClusterSet) Name(clusterID string) (string, error) {
	e, err := cs.entry(clusterID)
	if err != nil {
		return "", err
	}
	return e.cluster.Name, nil
}

// Client returns the clientset of the cluster with the given id.
func (cs *ClusterSet) Client(clusterID string) (kubernetes.Interface, error) {
	e, err := cs.entry(clusterID)
	if err != nil {
		return nil, err
	}
	return cs.clientFor(e)
}

func (cs *ClusterSet) entry(clusterID string) (*clusterEntry, error) {
	id, err := strconv.Atoi(clusterID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid id %q", ErrClusterNotFound, clusterID)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, e := range cs.entries {
		if e.cluster.ID == id {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
}

func (cs *ClusterSet) clientFor(e *clusterEntry) (kubernetes.Interface, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	if e.config == nil {
		return nil, fmt.Errorf("cluster %s has no client configuration", e.cluster.Name)
	}
	client, err := cs.newClient(e.config)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

func isSubresource(name string) bool {
	return strings.Contains(name, "/")
}
