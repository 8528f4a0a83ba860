package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubedeck/kubedeck/internal/kube"
	"github.com/kubedeck/kubedeck/internal/tabs"
)

type mockClusters struct {
	clusters []kube.Cluster
	err      error
}

func (m *mockClusters) ListClusters(ctx context.Context) ([]kube.Cluster, error) {
	return m.clusters, m.err
}

type mockResourceGroups struct {
	calls atomic.Int32
	err   error
}

func (m *mockResourceGroups) ListResourceGroups(ctx context.Context, clusterID string) ([]kube.ResourceGroup, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []kube.ResourceGroup{{GVK: kube.NodeGVK}}, nil
}

type testPage struct {
	*Page
	groups *mockResourceGroups
	roles  *atomic.Int32
	clock  *time.Time
}

func newTestPage(t *testing.T, cfg Config, superAdmin bool) testPage {
	t.Helper()
	groups := &mockResourceGroups{}
	roleCalls := &atomic.Int32{}
	deps := Deps{
		Clusters: &mockClusters{clusters: []kube.Cluster{
			{ID: 1, Name: "default_cluster"},
			{ID: 2, Name: "prod"},
		}},
		ResourceGroups: groups,
		Roles: UserRoleFunc(func(ctx context.Context) (UserRole, error) {
			roleCalls.Add(1)
			return UserRole{SuperAdmin: superAdmin}, nil
		}),
	}
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPage(cfg, deps)
	p.now = func() time.Time { return clock }
	return testPage{Page: p, groups: groups, roles: roleCalls, clock: &clock}
}

func selectedTab(t *testing.T, v View) tabs.Tab {
	t.Helper()
	var out []tabs.Tab
	for _, tab := range v.Tabs {
		if tab.IsSelected {
			out = append(out, tab)
		}
	}
	require.Len(t, out, 1)
	return out[0]
}

func TestPageLoad(t *testing.T) {
	p := newTestPage(t, Config{}, true)

	require.NoError(t, p.Load(context.Background(), "/resource-browser/1/all/node/k8sEmptyGroup"))

	v := p.View()
	require.Len(t, v.Tabs, 3)
	assert.Equal(t, TabK8sResources, selectedTab(t, v).Name)
	assert.False(t, v.Tabs[2].IsAlive)
	assert.True(t, v.SuperAdmin)
	assert.Equal(t, "default_cluster", v.SelectedCluster.Label)
	assert.Len(t, v.Clusters, 2)
	assert.Len(t, v.ResourceGroups, 1)
	assert.Equal(t, int32(1), p.roles.Load())
}

func TestPageLoadWithResource(t *testing.T) {
	p := newTestPage(t, Config{}, true)

	require.NoError(t, p.Load(context.Background(), "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod"))

	v := p.View()
	require.Len(t, v.Tabs, 4)
	sel := selectedTab(t, v)
	assert.True(t, sel.IsDynamic())
	assert.Equal(t, "k8sEmptyGroup_default", sel.Identity.IDPrefix)
	assert.Equal(t, "pod/my-pod", sel.Name)
}

func TestPageLoadDesktopModeSkipsRole(t *testing.T) {
	p := newTestPage(t, Config{K8sClient: true}, true)

	require.NoError(t, p.Load(context.Background(), "/resource-browser/1/all/node/k8sEmptyGroup"))

	v := p.View()
	assert.False(t, v.SuperAdmin)
	assert.Len(t, v.Tabs, 2)
	assert.Zero(t, p.roles.Load())
}

func TestPageLoadErrors(t *testing.T) {
	t.Run("cluster list failure fails the load", func(t *testing.T) {
		p := NewPage(Config{}, Deps{Clusters: &mockClusters{err: errors.New("boom")}})
		err := p.Load(context.Background(), "/resource-browser/1/all/node/k8sEmptyGroup")
		assert.ErrorContains(t, err, "failed to list clusters")
	})

	t.Run("resource group failure is reported in the view", func(t *testing.T) {
		p := newTestPage(t, Config{}, false)
		p.groups.err = errors.New("discovery failed")
		require.NoError(t, p.Load(context.Background(), "/resource-browser/1/all/node/k8sEmptyGroup"))
		v := p.View()
		assert.Equal(t, "discovery failed", v.ResourceGroupsError)
		assert.Empty(t, v.ResourceGroups)
	})

	t.Run("invalid path", func(t *testing.T) {
		p := newTestPage(t, Config{}, false)
		assert.ErrorIs(t, p.Load(context.Background(), "/apps"), ErrInvalidRoute)
	})
}

func TestPageNavigate(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, false)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))

	require.NoError(t, p.Navigate(ctx, "/resource-browser/1/all/overview/k8sEmptyGroup"))
	assert.Equal(t, TabOverview, selectedTab(t, p.View()).Name)

	require.NoError(t, p.Navigate(ctx, "/resource-browser/1/prod/deployment/apps/web"))
	v := p.View()
	require.Len(t, v.Tabs, 3)
	assert.Equal(t, "apps_prod", selectedTab(t, v).Identity.IDPrefix)

	require.NoError(t, p.Navigate(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))
	assert.Equal(t, TabK8sResources, selectedTab(t, p.View()).Name)

	require.NoError(t, p.Navigate(ctx, "/resource-browser/1/prod/deployment/apps/web"))
	v = p.View()
	assert.Len(t, v.Tabs, 3)
	assert.Equal(t, "deployment/web", selectedTab(t, v).Name)
	assert.Equal(t, int32(1), p.groups.calls.Load())

	require.NoError(t, p.Navigate(ctx, "/resource-browser/2/all/node/k8sEmptyGroup"))
	v = p.View()
	assert.Len(t, v.Tabs, 2)
	assert.Equal(t, "prod", v.SelectedCluster.Label)
	assert.Equal(t, int32(2), p.groups.calls.Load())

	assert.ErrorIs(t, p.Navigate(ctx, "/resource-browser"), ErrInvalidRoute)
}

func TestPageChangeCluster(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		cfg       Config
		clusterID string
		want      string
		wantErr   error
	}{
		{name: "same cluster", clusterID: "2", want: ""},
		{name: "other cluster", clusterID: "1", want: "/resource-browser/1/all/node/k8sEmptyGroup"},
		{name: "hidden default cluster", cfg: Config{HideDefaultCluster: true}, clusterID: "1", want: BasePath},
		{name: "unknown cluster", clusterID: "9", wantErr: kube.ErrClusterNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPage(t, tt.cfg, false)
			require.NoError(t, p.Load(ctx, "/resource-browser/2/all/node/k8sEmptyGroup"))

			got, err := p.ChangeCluster(ctx, tt.clusterID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.want != "" && tt.want != BasePath {
				assert.Equal(t, tt.clusterID, p.View().Route.ClusterID)
			}
		})
	}
}

func TestPageRoleChangeKeepsResourceTabs(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, false)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod"))
	require.Len(t, p.View().Tabs, 3)

	p.SetSuperAdmin(true)

	v := p.View()
	require.Len(t, v.Tabs, 4)
	assert.Equal(t, TabAdminTerminal, v.Tabs[2].Name)
	assert.Equal(t, "pod/my-pod", selectedTab(t, v).Name)
}

func TestPageTerminal(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, true)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))

	ok, err := p.UpdateTerminalTabURL("node=n1")
	require.NoError(t, err)
	assert.False(t, ok)

	v := p.View()
	url, err := p.SelectTab(v.Tabs[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "/resource-browser/1/all/terminal/k8sEmptyGroup", url)

	ok, err = p.UpdateTerminalTabURL("?node=n1&shell=bash")
	require.NoError(t, err)
	assert.True(t, ok)
	v = p.View()
	assert.Equal(t, "/resource-browser/1/all/terminal/k8sEmptyGroup?node=n1&shell=bash", v.Tabs[2].URL)
	assert.True(t, v.Tabs[2].IsAlive)

	redirect, err := p.StopTerminal()
	require.NoError(t, err)
	assert.Equal(t, "/resource-browser/1/all/node/k8sEmptyGroup", redirect)
	v = p.View()
	assert.False(t, v.Tabs[2].IsAlive)
	assert.Equal(t, TabK8sResources, selectedTab(t, v).Name)
}

func TestPageDemotionLeavesTerminal(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, true)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))
	_, err := p.SelectTab(p.View().Tabs[2].ID)
	require.NoError(t, err)
	require.Equal(t, NodeTypeTerminal, p.View().Route.NodeType)

	p.SetSuperAdmin(false)

	v := p.View()
	require.Len(t, v.Tabs, 2)
	assert.Equal(t, TabK8sResources, selectedTab(t, v).Name)
	assert.Equal(t, "/resource-browser/1/all/node/k8sEmptyGroup", v.Route.Path())
}

func TestPageSelectTabByIdentifier(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, false)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))
	podURL := "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod"
	require.NoError(t, p.AddTab("k8sEmptyGroup_default", "pod", "my-pod", podURL))
	_, err := p.SelectTab(p.View().Tabs[0].ID)
	require.NoError(t, err)

	url, err := p.SelectTabByIdentifier("k8sEmptyGroup_default", "Pod", "my-pod")
	require.NoError(t, err)
	assert.Equal(t, podURL, url)
	v := p.View()
	assert.Equal(t, "pod/my-pod", selectedTab(t, v).Name)
	assert.Equal(t, "my-pod", v.Route.Node)

	url, err = p.SelectTabByIdentifier("k8sEmptyGroup_default", "pod", "missing")
	require.NoError(t, err)
	assert.Empty(t, url)
	assert.Equal(t, "pod/my-pod", selectedTab(t, p.View()).Name)
}

func TestPageCloseTab(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{}, false)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))
	require.NoError(t, p.AddTab("k8sEmptyGroup_default", "pod", "my-pod", "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod"))

	redirect, err := p.CloseTab("k8sEmptyGroup_default", "pod", "my-pod")
	require.NoError(t, err)
	assert.Equal(t, "/resource-browser/1/all/node/k8sEmptyGroup", redirect)
	v := p.View()
	assert.Len(t, v.Tabs, 2)
	assert.Equal(t, "node", v.Route.NodeType)
}

func TestPageStaleness(t *testing.T) {
	ctx := context.Background()
	p := newTestPage(t, Config{Staleness: StalenessPolicy{Threshold: 15 * time.Minute, IdleThreshold: 5 * time.Minute}}, false)
	require.NoError(t, p.Load(ctx, "/resource-browser/1/all/node/k8sEmptyGroup"))
	start := *p.clock
	before := selectedTab(t, p.View())
	assert.False(t, p.View().IsDataStale)

	*p.clock = start.Add(6 * time.Minute)
	assert.True(t, p.View().IsDataStale)

	p.Touch()
	assert.False(t, p.View().IsDataStale)

	*p.clock = start.Add(16 * time.Minute)
	p.Touch()
	assert.True(t, p.View().IsDataStale)

	require.NoError(t, p.RefreshData())
	v := p.View()
	assert.False(t, v.IsDataStale)
	after := selectedTab(t, v)
	assert.NotEqual(t, before.ComponentKey, after.ComponentKey)
	assert.Equal(t, *p.clock, after.LastSyncMoment)
}

func TestStalenessPolicy(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := StalenessPolicy{Threshold: 10 * time.Minute, IdleThreshold: 2 * time.Minute}
	tests := []struct {
		name     string
		lastSync time.Time
		activity time.Time
		want     bool
	}{
		{name: "never synced", want: false},
		{name: "fresh", lastSync: now.Add(-time.Minute), activity: now.Add(-time.Minute), want: false},
		{name: "old data, active user", lastSync: now.Add(-3 * time.Minute), activity: now, want: false},
		{name: "old data, idle user", lastSync: now.Add(-3 * time.Minute), activity: now.Add(-3 * time.Minute), want: true},
		{name: "past threshold", lastSync: now.Add(-10 * time.Minute), activity: now, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.IsDataStale(tt.lastSync, tt.activity, now))
		})
	}
}
