package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/permission"
)

// configMapKey is the data key holding the serialized groups.
const configMapKey = "permission-groups.json"

// configMapDocument is the value stored under configMapKey.
type configMapDocument struct {
	NextID int                `json:"nextId"`
	Groups []*PermissionGroup `json:"groups"`
}

// ConfigMapStore persists permission groups in a single ConfigMap. It suits
// in-cluster installs without a database. Writes use optimistic concurrency
// on the ConfigMap's resource version and retry on conflict.
type ConfigMapStore struct {
	clientset kubernetes.Interface
	namespace string
	name      string
	now       func() time.Time
}

// NewConfigMapStore returns a store backed by the ConfigMap namespace/name,
// which is created on first use.
func NewConfigMapStore(clientset kubernetes.Interface, namespace, name string) *ConfigMapStore {
	return &ConfigMapStore{
		clientset: clientset,
		namespace: namespace,
		name:      name,
		now:       time.Now,
	}
}

func (s *ConfigMapStore) CreateOrUpdatePermissionGroup(ctx context.Context, payload permission.PermissionGroupPayload) (*PermissionGroup, error) {
	var saved *PermissionGroup
	err := s.mutate(ctx, func(doc *configMapDocument, groups groupSet) error {
		g, err := groups.upsert(payload, s.now(), &doc.NextID)
		if err != nil {
			return err
		}
		saved = clone(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ConfigMapStore) GetPermissionGroup(ctx context.Context, id int) (*PermissionGroup, error) {
	groups, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g, nil
}

func (s *ConfigMapStore) ListPermissionGroups(ctx context.Context, filters QueryFilters, pagination PaginationParams, sortOrder SortOrder) (*QueryResult, error) {
	groups, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return groups.query(filters, pagination, sortOrder), nil
}

func (s *ConfigMapStore) DeletePermissionGroup(ctx context.Context, id int) error {
	return s.mutate(ctx, func(_ *configMapDocument, groups groupSet) error {
		if _, ok := groups[id]; !ok {
			return ErrNotFound
		}
		delete(groups, id)
		return nil
	})
}

func (s *ConfigMapStore) HealthCheck(ctx context.Context) error {
	_, err := s.getConfigMap(ctx)
	return err
}

func (s *ConfigMapStore) Close() error {
	return nil
}

func (s *ConfigMapStore) load(ctx context.Context) (groupSet, error) {
	cm, err := s.getConfigMap(ctx)
	if err != nil {
		return nil, err
	}
	_, groups, err := decodeDocument(cm)
	return groups, err
}

// mutate applies fn to the stored groups and writes them back, retrying
// when another writer updated the ConfigMap in between.
func (s *ConfigMapStore) mutate(ctx context.Context, fn func(doc *configMapDocument, groups groupSet) error) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := s.getConfigMap(ctx)
		if err != nil {
			return err
		}
		doc, groups, err := decodeDocument(cm)
		if err != nil {
			return err
		}
		if err := fn(doc, groups); err != nil {
			return err
		}

		doc.Groups = groups.sorted("", SortOrderAsc)
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal permission groups: %w", err)
		}
		if cm.Data == nil {
			cm.Data = make(map[string]string)
		}
		cm.Data[configMapKey] = string(data)

		if _, err := s.clientset.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
			if apierrors.IsConflict(err) {
				klog.V(2).Infof("ConfigMap %s/%s changed concurrently, retrying", s.namespace, s.name)
				return err
			}
			return fmt.Errorf("failed to update ConfigMap: %w", err)
		}
		return nil
	})
}

// getConfigMap retrieves the ConfigMap, creating it when it does not exist.
func (s *ConfigMapStore) getConfigMap(ctx context.Context) (*corev1.ConfigMap, error) {
	cm, err := s.clientset.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err == nil {
		return cm, nil
	}
	if !apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to get ConfigMap: %w", err)
	}

	cm = &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.name,
			Namespace: s.namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "kubedeck"},
		},
		Data: map[string]string{},
	}
	created, err := s.clientset.CoreV1().ConfigMaps(s.namespace).Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		klog.V(2).Infof("ConfigMap %s/%s was created concurrently", s.namespace, s.name)
		cm, err = s.clientset.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to get ConfigMap: %w", err)
		}
		return cm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create ConfigMap: %w", err)
	}
	cm = created
	klog.Infof("Created ConfigMap %s/%s for permission groups", s.namespace, s.name)
	return cm, nil
}

func decodeDocument(cm *corev1.ConfigMap) (*configMapDocument, groupSet, error) {
	doc := &configMapDocument{NextID: 1}
	if raw := cm.Data[configMapKey]; raw != "" {
		if err := json.Unmarshal([]byte(raw), doc); err != nil {
			return nil, nil, fmt.Errorf("failed to parse permission groups in ConfigMap %s/%s: %w", cm.Namespace, cm.Name, err)
		}
	}
	groups := make(groupSet, len(doc.Groups))
	for _, g := range doc.Groups {
		groups[g.ID] = g
		doc.NextID = max(doc.NextID, g.ID+1)
	}
	return doc, groups, nil
}
