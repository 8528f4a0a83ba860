package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kubedeck/kubedeck/internal/permission"
)

func TestConfigMapStore_CreatesConfigMapOnFirstUse(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewClientset()
	s := NewConfigMapStore(clientset, "kubedeck", "groups")

	if err := s.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}

	cm, err := clientset.CoreV1().ConfigMaps("kubedeck").Get(ctx, "groups", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("ConfigMap was not created: %v", err)
	}
	if cm.Labels["app.kubernetes.io/managed-by"] != "kubedeck" {
		t.Errorf("Labels = %v, want managed-by kubedeck", cm.Labels)
	}
}

func TestConfigMapStore_CRUD(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewClientset()
	s := NewConfigMapStore(clientset, "kubedeck", "groups")

	created, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{
		Name: "devs",
		RoleFilters: []permission.APIRoleFilter{
			{Entity: permission.EntityDirect, Team: "team-a", Environment: "dev", EntityName: "app", Action: "view"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 1 {
		t.Errorf("ID = %d, want 1", created.ID)
	}
	if _, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "Ops"}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	cm, err := clientset.CoreV1().ConfigMaps("kubedeck").Get(ctx, "groups", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("get ConfigMap: %v", err)
	}
	var doc configMapDocument
	if err := json.Unmarshal([]byte(cm.Data[configMapKey]), &doc); err != nil {
		t.Fatalf("stored document is not JSON: %v", err)
	}
	if doc.NextID != 3 || len(doc.Groups) != 2 {
		t.Errorf("document = nextId %d with %d groups, want 3 and 2", doc.NextID, len(doc.Groups))
	}

	got, err := s.GetPermissionGroup(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.RoleFilters) != 1 || got.RoleFilters[0].Team != "team-a" {
		t.Errorf("RoleFilters = %+v", got.RoleFilters)
	}

	got.Description = "developers"
	updated, err := s.CreateOrUpdatePermissionGroup(ctx, got.PermissionGroupDTO)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != "developers" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("update lost data: %+v", updated)
	}

	res, err := s.ListPermissionGroups(ctx, QueryFilters{Search: "o"}, PaginationParams{}, SortOrderAsc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 || res.Groups[0].Name != "Ops" {
		t.Errorf("list = %+v, want only Ops", res)
	}

	if err := s.DeletePermissionGroup(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetPermissionGroup(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.DeletePermissionGroup(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestConfigMapStore_DuplicateName(t *testing.T) {
	ctx := context.Background()
	s := NewConfigMapStore(fake.NewClientset(), "kubedeck", "groups")
	if _, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "Admins"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "ADMINS"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("err = %v, want ErrDuplicateName", err)
	}
}

func TestConfigMapStore_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewClientset()
	conflicts := 0
	clientset.PrependReactor("update", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		if conflicts == 0 {
			conflicts++
			return true, nil, apierrors.NewConflict(schema.GroupResource{Resource: "configmaps"}, "groups", errors.New("stale"))
		}
		return false, nil, nil
	})
	s := NewConfigMapStore(clientset, "kubedeck", "groups")

	if _, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "devs"}); err != nil {
		t.Fatalf("create should succeed after retry: %v", err)
	}
	if conflicts != 1 {
		t.Errorf("conflicts = %d, want 1", conflicts)
	}
	res, err := s.ListPermissionGroups(ctx, QueryFilters{}, PaginationParams{}, SortOrderAsc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Total = %d, want 1", res.Total)
	}
}

func TestConfigMapStore_ConfigMapCreatedConcurrently(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewClientset()
	other, err := json.Marshal(configMapDocument{
		NextID: 2,
		Groups: []*PermissionGroup{{PermissionGroupDTO: permission.PermissionGroupDTO{ID: 1, Name: "ops"}}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	clientset.PrependReactor("create", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
		existing := &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: "groups", Namespace: "kubedeck"},
			Data:       map[string]string{configMapKey: string(other)},
		}
		if err := clientset.Tracker().Add(existing); err != nil {
			return true, nil, err
		}
		return true, nil, apierrors.NewAlreadyExists(schema.GroupResource{Resource: "configmaps"}, "groups")
	})
	s := NewConfigMapStore(clientset, "kubedeck", "groups")

	saved, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "devs"})
	if err != nil {
		t.Fatalf("create should use the ConfigMap another writer created: %v", err)
	}
	if saved.ID != 2 {
		t.Errorf("ID = %d, want 2", saved.ID)
	}
	res, err := s.ListPermissionGroups(ctx, QueryFilters{}, PaginationParams{}, SortOrderAsc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
}

func TestConfigMapStore_CorruptData(t *testing.T) {
	ctx := context.Background()
	clientset := fake.NewClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "groups", Namespace: "kubedeck"},
		Data:       map[string]string{configMapKey: "{not json"},
	})
	s := NewConfigMapStore(clientset, "kubedeck", "groups")

	if _, err := s.ListPermissionGroups(ctx, QueryFilters{}, PaginationParams{}, SortOrderAsc); err == nil {
		t.Error("expected an error for a corrupt document")
	}
	if _, err := s.CreateOrUpdatePermissionGroup(ctx, permission.PermissionGroupPayload{Name: "x"}); err == nil {
		t.Error("writes must not overwrite a corrupt document")
	}
}
