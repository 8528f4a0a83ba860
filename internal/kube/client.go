package kube

import (
	"fmt"
	"sort"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// DefaultClusterName names the cluster the server itself runs in.
const DefaultClusterName = "default_cluster"

// DefaultClusterID is the id of DefaultClusterName.
const DefaultClusterID = 1

// Kinds with dedicated resource-browser screens.
var (
	NodeGVK  = corev1.SchemeGroupVersion.WithKind("Node")
	EventGVK = corev1.SchemeGroupVersion.WithKind("Event")
)

const requestTimeout = 10 * time.Second

// clusterConfig is one reachable cluster before a client exists for it.
type clusterConfig struct {
	name   string
	config *rest.Config
	err    error
}

// loadClusterConfigs tries in-cluster config first, then falls back to the
// kubeconfig file. Kubeconfig contexts become clusters sorted by context
// name. When allowed is not empty only those contexts are kept.
func loadClusterConfigs(allowed []string) ([]clusterConfig, error) {
	config, err := rest.InClusterConfig()
	if err == nil {
		config.Timeout = requestTimeout
		return []clusterConfig{{name: DefaultClusterName, config: config}}, nil
	}
	klog.V(2).Infof("In-cluster config not available, trying kubeconfig: %v", err)

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	raw, err := rules.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config and failed to load kubeconfig: %w", err)
	}

	keep := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		keep[name] = true
	}
	names := make([]string, 0, len(raw.Contexts))
	for name := range raw.Contexts {
		if len(keep) > 0 && !keep[name] {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("kubeconfig has no usable contexts")
	}
	sort.Strings(names)

	out := make([]clusterConfig, 0, len(names))
	for _, name := range names {
		cc := clusterConfig{name: name}
		cc.config, cc.err = clientcmd.NewNonInteractiveClientConfig(*raw, name, &clientcmd.ConfigOverrides{}, rules).ClientConfig()
		if cc.err != nil {
			klog.Warningf("Failed to load kubeconfig context %s: %v", name, cc.err)
		} else {
			cc.config.Timeout = requestTimeout
		}
		out = append(out, cc)
	}
	return out, nil
}

func newClientset(config *rest.Config) (kubernetes.Interface, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}
	return clientset, nil
}
