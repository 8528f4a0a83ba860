package tabs

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSpecs() []Spec {
	return []Spec{
		{Identity: Identity{IDPrefix: "cluster_overview", Name: "Overview"}, URL: "/resource-browser/1/overview", Position: PositionOverview},
		{Identity: Identity{IDPrefix: "k8s_resources", Name: "K8s Resources"}, URL: "/resource-browser/1/all/pod/k8sEmptyGroup", Position: PositionResourceList, Selected: true},
		{Identity: Identity{IDPrefix: "terminal", Name: "Admin Terminal"}, URL: "/resource-browser/1/all/terminal/k8sEmptyGroup", Position: PositionAdminTerminal},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	n := 0
	r := NewRegistry(WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	r.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	r.Initialize(fixedSpecs(), true)
	return r
}

func selectedCount(r *Registry) int {
	n := 0
	for _, t := range r.Tabs() {
		if t.IsSelected {
			n++
		}
	}
	return n
}

func TestMutationsBeforeInitialize(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Initialized())
	assert.ErrorIs(t, r.AddTab("default", "Pod", "p", "/x"), ErrNotInitialized)
	assert.ErrorIs(t, r.MarkTabActiveByID("x"), ErrNotInitialized)
	_, err := r.RemoveTabByIdentifier("default", "Pod", "p")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.StopTabByIdentifier("default", "Pod", "p")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, r.UpdateTabURL("x", "/y", ""), ErrNotInitialized)
}

func TestInitialize(t *testing.T) {
	r := newTestRegistry(t)
	tabs := r.Tabs()
	require.Len(t, tabs, 3)
	assert.Equal(t, "Overview", tabs[0].Name)
	assert.Equal(t, "K8s Resources", tabs[1].Name)
	assert.Equal(t, "Admin Terminal", tabs[2].Name)
	assert.True(t, tabs[1].IsSelected)
	assert.True(t, tabs[1].IsAlive)
	assert.False(t, tabs[2].IsAlive)
	assert.Equal(t, 1, selectedCount(r))
}

func TestInitializeSelectsFirstWhenNothingSelected(t *testing.T) {
	specs := fixedSpecs()
	specs[1].Selected = false
	r := NewRegistry()
	r.Initialize(specs, true)

	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, "Overview", sel.Name)
	assert.True(t, sel.IsAlive)
}

func TestAddTab(t *testing.T) {
	r := newTestRegistry(t)

	err := r.AddTab("default", "Pod", "my-pod", "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod")
	require.NoError(t, err)

	tabs := r.Tabs()
	require.Len(t, tabs, 4)
	added := tabs[3]
	assert.True(t, added.IsSelected)
	assert.True(t, added.IsAlive)
	assert.True(t, added.IsDynamic())
	assert.Equal(t, "default", added.Identity.IDPrefix)
	assert.Equal(t, "Pod/my-pod", added.Name)
	for _, tab := range tabs[:3] {
		assert.False(t, tab.IsSelected, tab.Name)
	}
}

func TestAddTabExistingIdentity(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddTab("default", "Pod", "my-pod", "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod"))
	require.NoError(t, r.MarkTabActiveByID("cluster_overview-Overview"))

	require.NoError(t, r.AddTab("default", "pod", "my-pod", "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod/logs"))

	require.Equal(t, 4, r.Len())
	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, "/resource-browser/1/default/pod/k8sEmptyGroup/my-pod/logs", sel.URL)
	assert.Equal(t, 1, selectedCount(r))
}

func TestMarkTabActiveByID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		wantName string
	}{
		{name: "known id", id: "terminal-Admin Terminal", wantName: "Admin Terminal"},
		{name: "unknown id keeps selection", id: "missing", wantName: "K8s Resources"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(t)
			require.NoError(t, r.MarkTabActiveByID(tt.id))
			sel, ok := r.Selected()
			require.True(t, ok)
			assert.Equal(t, tt.wantName, sel.Name)
			assert.True(t, sel.IsAlive)
			assert.Equal(t, 1, selectedCount(r))
		})
	}
}

func TestMarkTabActiveByIdentifier(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddTab("default", "Pod", "my-pod", "/a"))
	require.NoError(t, r.MarkTabActiveByID("cluster_overview-Overview"))

	found, err := r.MarkTabActiveByIdentifier("default", "POD", "my-pod", "/b")
	require.NoError(t, err)
	assert.True(t, found)
	sel, _ := r.Selected()
	assert.Equal(t, "/b", sel.URL)

	found, err = r.MarkTabActiveByIdentifier("default", "Pod", "other", "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemoveTabByIdentifier(t *testing.T) {
	t.Run("selected tab falls back to resource list", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.AddTab("default", "Pod", "my-pod", "/pod"))

		redirect, err := r.RemoveTabByIdentifier("default", "Pod", "my-pod")
		require.NoError(t, err)
		assert.Equal(t, "/resource-browser/1/all/pod/k8sEmptyGroup", redirect)
		assert.Equal(t, 3, r.Len())
		sel, _ := r.Selected()
		assert.Equal(t, PositionResourceList, sel.Position)
		assert.Equal(t, 1, selectedCount(r))
	})

	t.Run("unselected tab keeps selection", func(t *testing.T) {
		r := newTestRegistry(t)
		require.NoError(t, r.AddTab("default", "Pod", "my-pod", "/pod"))
		require.NoError(t, r.MarkTabActiveByID("cluster_overview-Overview"))

		redirect, err := r.RemoveTabByIdentifier("default", "Pod", "my-pod")
		require.NoError(t, err)
		assert.Empty(t, redirect)
		sel, _ := r.Selected()
		assert.Equal(t, "Overview", sel.Name)
	})

	t.Run("fixed tabs are not removable", func(t *testing.T) {
		r := newTestRegistry(t)
		redirect, err := r.RemoveTabByIdentifier("terminal", "", "Admin Terminal")
		require.NoError(t, err)
		assert.Empty(t, redirect)
		assert.Equal(t, 3, r.Len())
	})
}

func TestStopTabByIdentifier(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.UpdateTabURL("terminal-Admin Terminal", "/resource-browser/1/all/terminal/k8sEmptyGroup?node=n1", ""))
	require.NoError(t, r.MarkTabActiveByID("terminal-Admin Terminal"))

	redirect, err := r.StopTabByIdentifier("terminal", "", "Admin Terminal")
	require.NoError(t, err)
	assert.Equal(t, "/resource-browser/1/all/pod/k8sEmptyGroup", redirect)

	term, ok := r.Fixed(PositionAdminTerminal)
	require.True(t, ok)
	assert.False(t, term.IsAlive)
	assert.False(t, term.IsSelected)
	assert.Equal(t, "/resource-browser/1/all/terminal/k8sEmptyGroup", term.URL)
	assert.Equal(t, 1, selectedCount(r))
}

func TestUpdateTabComponentKeyAndSync(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := NewRegistry(WithClock(func() time.Time { return now }))
	r.Initialize(fixedSpecs(), true)
	id := "k8s_resources-K8s Resources"
	before, _ := r.Find(id)

	require.NoError(t, r.UpdateTabComponentKey(id))
	now = now.Add(time.Minute)
	require.NoError(t, r.UpdateTabLastSyncMoment(id))

	after, _ := r.Find(id)
	assert.NotEqual(t, before.ComponentKey, after.ComponentKey)
	assert.Equal(t, before.LastSyncMoment.Add(time.Minute), after.LastSyncMoment)
}

func TestReinitializeKeepsDynamicTabs(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.AddTab("default", "Pod", "my-pod", "/pod"))

	specs := fixedSpecs()[:2]
	r.Initialize(specs, false)

	require.Equal(t, 3, r.Len())
	_, ok := r.Fixed(PositionAdminTerminal)
	assert.False(t, ok)
	sel, _ := r.Selected()
	assert.Equal(t, "Pod/my-pod", sel.Name)

	r.Initialize(fixedSpecs(), true)
	assert.Equal(t, 3, r.Len())
	_, ok = r.DynamicActive()
	assert.False(t, ok)
}

func TestInitializeFallsBackWhenSelectedTabDropped(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.MarkTabActiveByID("terminal-Admin Terminal"))

	specs := fixedSpecs()[:2]
	specs[1].Selected = false
	redirect := r.Initialize(specs, false)

	assert.Equal(t, "/resource-browser/1/all/pod/k8sEmptyGroup", redirect)
	require.Equal(t, 2, r.Len())
	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, "K8s Resources", sel.Name)
	assert.Equal(t, 1, selectedCount(r))

	assert.Empty(t, r.Initialize(fixedSpecs(), false), "kept selection needs no redirect")
	sel, _ = r.Selected()
	assert.Equal(t, "K8s Resources", sel.Name)
}

func TestSyncWithPath(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.SyncWithPath("/resource-browser/1/overview/", nil))
	sel, _ := r.Selected()
	assert.Equal(t, "Overview", sel.Name)

	dyn := DynamicSpec(Identity{IDPrefix: "apps_default", Kind: "deployment", Name: "web"}, "/resource-browser/1/default/deployment/apps/web")
	require.NoError(t, r.SyncWithPath(dyn.URL, &dyn))
	sel, _ = r.Selected()
	assert.Equal(t, "deployment/web", sel.Name)
	assert.Equal(t, 4, r.Len())

	require.NoError(t, r.SyncWithPath(dyn.URL+"?tab=yaml", &dyn))
	assert.Equal(t, 4, r.Len())
}

func TestSelectionInvariantAcrossOperations(t *testing.T) {
	r := newTestRegistry(t)
	steps := []func() error{
		func() error { return r.AddTab("default", "Pod", "a", "/a") },
		func() error { return r.AddTab("default", "Pod", "b", "/b") },
		func() error { return r.MarkTabActiveByID("cluster_overview-Overview") },
		func() error { _, err := r.RemoveTabByIdentifier("default", "Pod", "a"); return err },
		func() error { return r.AddTab("kube-system", "Pod", "a", "/c") },
		func() error { _, err := r.RemoveTabByIdentifier("kube-system", "Pod", "a"); return err },
		func() error { _, err := r.StopTabByIdentifier("k8s_resources", "", "K8s Resources"); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, 1, selectedCount(r), "step %d", i)
		positions := r.Tabs()
		for j := 1; j < len(positions); j++ {
			assert.LessOrEqual(t, positions[j-1].Position, positions[j].Position, "step %d", i)
		}
	}
}
