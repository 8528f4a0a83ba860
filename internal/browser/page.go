package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/kubedeck/kubedeck/internal/kube"
	"github.com/kubedeck/kubedeck/internal/option"
	"github.com/kubedeck/kubedeck/internal/tabs"
)

// ClusterLister lists the clusters a user can browse.
type ClusterLister interface {
	ListClusters(ctx context.Context) ([]kube.Cluster, error)
}

// ResourceGroupLister lists the kinds served by a cluster.
type ResourceGroupLister interface {
	ListResourceGroups(ctx context.Context, clusterID string) ([]kube.ResourceGroup, error)
}

// UserRole is what the page needs to know about the current user.
type UserRole struct {
	Roles      []string `json:"roles"`
	SuperAdmin bool     `json:"superAdmin"`
}

// UserRoleSource resolves the role of the current user.
type UserRoleSource interface {
	UserRole(ctx context.Context) (UserRole, error)
}

// UserRoleFunc adapts a function to UserRoleSource.
type UserRoleFunc func(ctx context.Context) (UserRole, error)

// UserRole calls f.
func (f UserRoleFunc) UserRole(ctx context.Context) (UserRole, error) {
	return f(ctx)
}

// ClusterOption is one entry of the cluster selector.
type ClusterOption struct {
	option.Option
	ErrorInConnecting string `json:"errorInConnecting,omitempty"`
}

// Config holds the page settings that come from the environment.
type Config struct {
	// HideDefaultCluster keeps users from switching to the default cluster.
	HideDefaultCluster bool

	// K8sClient is desktop mode: there is no user-role service and the user
	// is treated as a regular user.
	K8sClient bool
	Staleness StalenessPolicy
}

// Deps are the collaborators a page loads its data from. Roles may be nil.
type Deps struct {
	Clusters       ClusterLister
	ResourceGroups ResourceGroupLister
	Roles          UserRoleSource
}

// View is the state of a page as shown to a client.
type View struct {
	Route               Route                `json:"route"`
	SelectedCluster     ClusterOption        `json:"selectedCluster"`
	Clusters            []ClusterOption      `json:"clusters"`
	SuperAdmin          bool                 `json:"superAdmin"`
	Tabs                []tabs.Tab           `json:"tabs"`
	IsDataStale         bool                 `json:"isDataStale"`
	ResourceGroups      []kube.ResourceGroup `json:"resourceGroups"`
	ResourceGroupsError string               `json:"resourceGroupsError,omitempty"`
}

// Page is one open resource browser. It owns its tab registry, so all
// access goes through the page lock.
type Page struct {
	mu       sync.Mutex
	cfg      Config
	deps     Deps
	registry *tabs.Registry
	now      func() time.Time

	route             Route
	clusters          []ClusterOption
	superAdmin        bool
	resourceGroups    []kube.ResourceGroup
	resourceGroupsErr error
	lastActivity      time.Time
}

// NewPage returns a page that has not loaded any data yet.
func NewPage(cfg Config, deps Deps, opts ...tabs.Option) *Page {
	p := &Page{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
	}
	opts = append([]tabs.Option{tabs.WithClock(func() time.Time { return p.now() })}, opts...)
	p.registry = tabs.NewRegistry(opts...)
	return p
}

// Load fetches the cluster list and user role concurrently, then the
// resource groups of the routed cluster, and builds the tabs for path.
// A failed resource-group fetch is recorded in the view instead of failing
// the load.
func (p *Page) Load(ctx context.Context, path string) error {
	route, err := ParseRoute(path)
	if err != nil {
		return err
	}

	var (
		clusters []kube.Cluster
		role     UserRole
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := p.deps.Clusters.ListClusters(gctx)
		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}
		clusters = c
		return nil
	})
	if !p.cfg.K8sClient && p.deps.Roles != nil {
		g.Go(func() error {
			r, err := p.deps.Roles.UserRole(gctx)
			if err != nil {
				return fmt.Errorf("failed to get user role: %w", err)
			}
			role = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var groups []kube.ResourceGroup
	var groupsErr error
	if route.ClusterID != "" {
		groups, groupsErr = p.fetchResourceGroups(ctx, route.ClusterID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
	p.clusters = clusterOptions(clusters)
	p.superAdmin = role.SuperAdmin
	p.resourceGroups, p.resourceGroupsErr = groups, groupsErr
	p.lastActivity = p.now()
	if route.ClusterID != "" {
		p.initTabs(false)
	}
	klog.V(2).Infof("Loaded resource browser for cluster %q with %d tab(s)", route.ClusterID, p.registry.Len())
	return nil
}

func clusterOptions(clusters []kube.Cluster) []ClusterOption {
	opts := option.ConvertToOptionsList(clusters,
		func(c kube.Cluster) string { return c.Name },
		func(c kube.Cluster) string { return strconv.Itoa(c.ID) })
	out := make([]ClusterOption, len(opts))
	for i, o := range opts {
		out[i] = ClusterOption{Option: o, ErrorInConnecting: clusters[i].ErrorInConnecting}
	}
	return out
}

func (p *Page) fetchResourceGroups(ctx context.Context, clusterID string) ([]kube.ResourceGroup, error) {
	if p.deps.ResourceGroups == nil {
		return nil, nil
	}
	groups, err := p.deps.ResourceGroups.ListResourceGroups(ctx, clusterID)
	if err != nil {
		klog.Warningf("Failed to list resource groups of cluster %s: %v", clusterID, err)
		return nil, err
	}
	return groups, nil
}

// initTabs rebuilds the tab set from the current route and role. Callers
// hold p.mu.
func (p *Page) initTabs(reinit bool) {
	var dynamic *tabs.Spec
	if d, ok := DynamicTabData(p.route, p.route.Path()); ok {
		dynamic = &d
	}
	redirect := p.registry.Initialize(TabsBasedOnRole(p.route.ClusterID, p.route.Namespace, p.superAdmin, dynamic, p.route), reinit)
	p.followURL(redirect)
}

// SetSuperAdmin applies a role change. Tabs are rebuilt without dropping
// open resource tabs. Losing the selected Admin Terminal moves the page to
// the Resource List.
func (p *Page) SetSuperAdmin(superAdmin bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.superAdmin == superAdmin {
		return
	}
	p.superAdmin = superAdmin
	if p.registry.Initialized() {
		p.initTabs(false)
	}
}

// Navigate brings the page in line with path. Switching clusters rebuilds
// every tab. Otherwise the tab owning path is selected, and a resource tab
// is opened if none does.
func (p *Page) Navigate(ctx context.Context, path string) error {
	route, err := ParseRoute(path)
	if err != nil {
		return err
	}
	if route.ClusterID == "" {
		return fmt.Errorf("%w: missing cluster id", ErrInvalidRoute)
	}

	p.mu.Lock()
	changed := route.ClusterID != p.route.ClusterID || !p.registry.Initialized()
	p.mu.Unlock()

	var groups []kube.ResourceGroup
	var groupsErr error
	if changed {
		groups, groupsErr = p.fetchResourceGroups(ctx, route.ClusterID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.route = route
	p.lastActivity = p.now()
	if changed {
		p.resourceGroups, p.resourceGroupsErr = groups, groupsErr
		p.initTabs(true)
		return nil
	}
	var dynamic *tabs.Spec
	if d, ok := DynamicTabData(route, route.Path()); ok {
		dynamic = &d
	}
	return p.registry.SyncWithPath(route.Path(), dynamic)
}

// ChangeCluster switches to the cluster with the given id and returns the
// path the client should show. Picking the current cluster is a no-op that
// returns "". The default cluster is refused when hidden and the bare
// browser path is returned instead.
func (p *Page) ChangeCluster(ctx context.Context, clusterID string) (string, error) {
	p.mu.Lock()
	current := p.route.ClusterID
	known := false
	for _, c := range p.clusters {
		if c.Value == clusterID {
			known = true
			break
		}
	}
	p.mu.Unlock()

	if clusterID == current {
		return "", nil
	}
	if p.cfg.HideDefaultCluster && clusterID == strconv.Itoa(kube.DefaultClusterID) {
		return BasePath, nil
	}
	if !known {
		return "", fmt.Errorf("%w: %s", kube.ErrClusterNotFound, clusterID)
	}
	path := ClusterEntryPath(clusterID)
	if err := p.Navigate(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// AddTab opens or focuses the tab of a resource.
func (p *Page) AddTab(idPrefix, kind, name, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
	return p.registry.AddTab(idPrefix, kind, name, url)
}

// SelectTab selects a tab by id and returns its URL, or "" for an unknown id.
func (p *Page) SelectTab(id string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
	if err := p.registry.MarkTabActiveByID(id); err != nil {
		return "", err
	}
	t, ok := p.registry.Find(id)
	if !ok {
		return "", nil
	}
	p.followURL(t.URL)
	return t.URL, nil
}

// SelectTabByIdentifier selects the tab of a resource and returns its URL.
// An unknown resource leaves the selection as it is and returns "".
func (p *Page) SelectTabByIdentifier(idPrefix, kind, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
	found, err := p.registry.MarkTabActiveByIdentifier(idPrefix, kind, name, "")
	if err != nil || !found {
		return "", err
	}
	t, _ := p.registry.Selected()
	p.followURL(t.URL)
	return t.URL, nil
}

// UpdateTabURL records where a tab has navigated to.
func (p *Page) UpdateTabURL(id, url, title string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.UpdateTabURL(id, url, title)
}

// CloseTab removes a resource tab and returns the path to show if the
// selection moved.
func (p *Page) CloseTab(idPrefix, kind, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
	redirect, err := p.registry.RemoveTabByIdentifier(idPrefix, kind, name)
	if err != nil {
		return "", err
	}
	p.followURL(redirect)
	return redirect, nil
}

// StopTerminal unmounts the admin terminal and returns the path to show if
// the selection moved.
func (p *Page) StopTerminal() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	redirect, err := p.registry.StopTabByIdentifier(PrefixAdminTerminal, "", TabAdminTerminal)
	if err != nil {
		return "", err
	}
	p.followURL(redirect)
	return redirect, nil
}

// UpdateTerminalTabURL stores the terminal session query on the terminal tab
// so it survives tab switches. It only applies while that tab is selected
// and reports whether it did.
func (p *Page) UpdateTerminalTabURL(query string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.registry.Fixed(tabs.PositionAdminTerminal)
	if !ok || t.Name != TabAdminTerminal || !t.IsSelected {
		return false, nil
	}
	base, _, _ := strings.Cut(t.URL, "?")
	if err := p.registry.UpdateTabURL(t.ID, base+"?"+strings.TrimPrefix(query, "?"), ""); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshData remounts the selected tab and marks its data fresh.
func (p *Page) RefreshData() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
	t, ok := p.registry.Selected()
	if !ok {
		return tabs.ErrNotInitialized
	}
	if err := p.registry.UpdateTabComponentKey(t.ID); err != nil {
		return err
	}
	return p.registry.UpdateTabLastSyncMoment(t.ID)
}

// MarkResourceListSynced records that the resource list fetched new data.
func (p *Page) MarkResourceListSynced() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.registry.Fixed(tabs.PositionResourceList)
	if !ok {
		return tabs.ErrNotInitialized
	}
	return p.registry.UpdateTabLastSyncMoment(t.ID)
}

// Touch records user activity.
func (p *Page) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActivity = p.now()
}

// TabCount returns the number of open tabs.
func (p *Page) TabCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.Len()
}

// View returns a snapshot of the page.
func (p *Page) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()

	v := View{
		Route:           p.route,
		SelectedCluster: ClusterOption{Option: option.Option{Value: p.route.ClusterID}},
		Clusters:        append([]ClusterOption(nil), p.clusters...),
		SuperAdmin:      p.superAdmin,
		Tabs:            p.registry.Tabs(),
		ResourceGroups:  append([]kube.ResourceGroup(nil), p.resourceGroups...),
	}
	for _, c := range p.clusters {
		if c.Value == p.route.ClusterID {
			v.SelectedCluster = c
			break
		}
	}
	if p.resourceGroupsErr != nil {
		v.ResourceGroupsError = p.resourceGroupsErr.Error()
	}
	if t, ok := p.registry.Selected(); ok {
		v.IsDataStale = p.cfg.Staleness.IsDataStale(t.LastSyncMoment, p.lastActivity, p.now())
	}
	return v
}

// followURL keeps the route in step with a selection change. Callers hold p.mu.
func (p *Page) followURL(url string) {
	if url == "" {
		return
	}
	if r, err := ParseRoute(url); err == nil && r.ClusterID == p.route.ClusterID {
		p.route = r
	}
}
