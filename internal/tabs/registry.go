package tabs

import (
	"cmp"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotInitialized is returned by mutations issued before Initialize.
var ErrNotInitialized = errors.New("tab registry not initialized")

// Registry is the ordered tab list of one browser page. At most one tab is
// selected at a time. Fixed tabs stay in position order and dynamic tabs
// follow in insertion order.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	tabs        []Tab
	initialized bool
	now         func() time.Time
	newID       func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for sync moments.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns an empty, uninitialized registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialized reports whether Initialize has run.
func (r *Registry) Initialized() bool {
	return r.initialized
}

// Initialize installs specs. With reinit, every existing tab is discarded.
// Without it, existing dynamic tabs survive and existing fixed tabs keep
// their state when a spec with the same identity is supplied again. Fixed
// tabs without a spec are dropped.
//
// When the dropped tabs include the selected one, the Resource List tab
// takes over and its URL is returned for navigation. Otherwise the result is
// "" and, if no tab asked to be selected, the first one is.
func (r *Registry) Initialize(specs []Spec, reinit bool) string {
	var fixedSpecs, dynamicSpecs []Spec
	for _, s := range specs {
		if s.Position == DynamicTabPosition {
			dynamicSpecs = append(dynamicSpecs, s)
		} else {
			fixedSpecs = append(fixedSpecs, s)
		}
	}
	slices.SortStableFunc(fixedSpecs, func(a, b Spec) int { return cmp.Compare(a.Position, b.Position) })

	previous := r.tabs
	if reinit {
		previous = nil
	}
	lostSelection := false
	for _, old := range previous {
		if old.IsSelected {
			lostSelection = true
		}
	}

	selectedID := ""
	next := make([]Tab, 0, len(specs)+len(previous))
	for _, s := range fixedSpecs {
		if old, ok := findIn(previous, s.Identity); ok && !old.IsDynamic() {
			old.Position = s.Position
			if old.IsSelected {
				selectedID = old.ID
			}
			next = append(next, old)
			continue
		}
		next = append(next, r.newTab(s))
	}
	for _, old := range previous {
		if !old.IsDynamic() {
			continue
		}
		if old.IsSelected {
			selectedID = old.ID
		}
		next = append(next, old)
	}
	for _, s := range dynamicSpecs {
		if _, ok := findIn(next, s.Identity); ok {
			continue
		}
		next = append(next, r.newTab(s))
	}

	r.tabs = next
	r.initialized = true
	if lostSelection && selectedID == "" {
		return r.selectFallback()
	}
	r.normalizeSelection(selectedID)
	return ""
}

// normalizeSelection keeps exactly one tab selected. preferredID wins when it
// is present, otherwise the last tab that asked to be selected wins, and
// failing that the first tab.
func (r *Registry) normalizeSelection(preferredID string) {
	if len(r.tabs) == 0 {
		return
	}
	pick := -1
	for i, t := range r.tabs {
		if preferredID != "" && t.ID == preferredID {
			pick = i
			break
		}
		if t.IsSelected {
			pick = i
		}
	}
	if pick < 0 {
		pick = 0
	}
	r.selectIndex(pick)
}

func (r *Registry) newTab(s Spec) Tab {
	id := s.Identity.String()
	if s.Position == DynamicTabPosition {
		id = r.newID()
	}
	return Tab{
		ID:             id,
		Identity:       s.Identity,
		Name:           s.title(),
		URL:            s.URL,
		IsSelected:     s.Selected,
		IsAlive:        s.Alive || s.Selected,
		Position:       s.Position,
		ComponentKey:   r.newID(),
		LastSyncMoment: r.now(),
	}
}

func (r *Registry) selectIndex(i int) {
	for j := range r.tabs {
		r.tabs[j].IsSelected = j == i
	}
	r.tabs[i].IsAlive = true
}

// AddTab opens a dynamic tab for the resource and selects it. If a tab with
// the same identity exists it is selected and its URL replaced instead.
func (r *Registry) AddTab(idPrefix, kind, name, tabURL string) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	id := Identity{IDPrefix: idPrefix, Kind: kind, Name: name}
	if i := r.indexOf(id); i >= 0 {
		r.tabs[i].URL = tabURL
		r.selectIndex(i)
		return nil
	}
	r.tabs = append(r.tabs, r.newTab(DynamicSpec(id, tabURL)))
	r.selectIndex(len(r.tabs) - 1)
	return nil
}

// MarkTabActiveByID selects the tab with the given id. An unknown id leaves
// the registry untouched.
func (r *Registry) MarkTabActiveByID(id string) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if i := r.indexOfID(id); i >= 0 {
		r.selectIndex(i)
	}
	return nil
}

// MarkTabActiveByIdentifier selects the tab matching the identity and
// optionally replaces its URL. It reports whether a tab matched.
func (r *Registry) MarkTabActiveByIdentifier(idPrefix, kind, name, tabURL string) (bool, error) {
	if !r.initialized {
		return false, ErrNotInitialized
	}
	i := r.indexOf(Identity{IDPrefix: idPrefix, Kind: kind, Name: name})
	if i < 0 {
		return false, nil
	}
	if tabURL != "" {
		r.tabs[i].URL = tabURL
	}
	r.selectIndex(i)
	return true, nil
}

// RemoveTabByIdentifier closes the matching dynamic tab. Fixed tabs cannot
// be removed. When the closed tab was selected the Resource List tab takes
// over and its URL is returned for navigation; otherwise the result is "".
func (r *Registry) RemoveTabByIdentifier(idPrefix, kind, name string) (string, error) {
	if !r.initialized {
		return "", ErrNotInitialized
	}
	i := r.indexOf(Identity{IDPrefix: idPrefix, Kind: kind, Name: name})
	if i < 0 || !r.tabs[i].IsDynamic() {
		return "", nil
	}
	wasSelected := r.tabs[i].IsSelected
	r.tabs = slices.Delete(r.tabs, i, i+1)
	if !wasSelected {
		return "", nil
	}
	return r.selectFallback(), nil
}

// StopTabByIdentifier unmounts the matching tab without removing it. The
// query string of its URL is dropped. When it was selected the Resource List
// tab takes over and its URL is returned.
func (r *Registry) StopTabByIdentifier(idPrefix, kind, name string) (string, error) {
	if !r.initialized {
		return "", ErrNotInitialized
	}
	i := r.indexOf(Identity{IDPrefix: idPrefix, Kind: kind, Name: name})
	if i < 0 {
		return "", nil
	}
	t := &r.tabs[i]
	wasSelected := t.IsSelected
	t.URL, _, _ = strings.Cut(t.URL, "?")
	t.IsAlive = false
	t.IsSelected = false
	if !wasSelected {
		return "", nil
	}
	return r.selectFallback(), nil
}

func (r *Registry) selectFallback() string {
	if len(r.tabs) == 0 {
		return ""
	}
	pick := 0
	for i, t := range r.tabs {
		if t.Position == PositionResourceList {
			pick = i
			break
		}
	}
	r.selectIndex(pick)
	return r.tabs[pick].URL
}

// UpdateTabURL replaces the URL of a tab and, when title is not empty, its
// display name.
func (r *Registry) UpdateTabURL(id, tabURL, title string) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if i := r.indexOfID(id); i >= 0 {
		r.tabs[i].URL = tabURL
		if title != "" {
			r.tabs[i].Name = title
		}
	}
	return nil
}

// UpdateTabComponentKey forces a remount of the tab's content.
func (r *Registry) UpdateTabComponentKey(id string) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if i := r.indexOfID(id); i >= 0 {
		r.tabs[i].ComponentKey = r.newID()
	}
	return nil
}

// UpdateTabLastSyncMoment records that the tab's data was just refreshed.
func (r *Registry) UpdateTabLastSyncMoment(id string) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if i := r.indexOfID(id); i >= 0 {
		r.tabs[i].LastSyncMoment = r.now()
	}
	return nil
}

// SyncWithPath selects the tab whose URL matches path. When none matches
// and dynamic is not nil a tab is opened from it.
func (r *Registry) SyncWithPath(path string, dynamic *Spec) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if t, ok := r.FindByURL(path); ok {
		if !t.IsSelected {
			return r.MarkTabActiveByID(t.ID)
		}
		return nil
	}
	if dynamic == nil {
		return nil
	}
	return r.AddTab(dynamic.Identity.IDPrefix, dynamic.Identity.Kind, dynamic.Identity.Name, dynamic.URL)
}

// FindByURL returns the first tab whose URL contains path. The query string
// and trailing slash of path are ignored.
func (r *Registry) FindByURL(path string) (Tab, bool) {
	want := cleanPath(path)
	if want == "" {
		return Tab{}, false
	}
	for _, t := range r.tabs {
		if strings.Contains(t.URL, want) {
			return t, true
		}
	}
	return Tab{}, false
}

// Find returns the tab with the given id.
func (r *Registry) Find(id string) (Tab, bool) {
	if i := r.indexOfID(id); i >= 0 {
		return r.tabs[i], true
	}
	return Tab{}, false
}

// FindByIdentifier returns the tab matching the identity.
func (r *Registry) FindByIdentifier(idPrefix, kind, name string) (Tab, bool) {
	if i := r.indexOf(Identity{IDPrefix: idPrefix, Kind: kind, Name: name}); i >= 0 {
		return r.tabs[i], true
	}
	return Tab{}, false
}

// Fixed returns the fixed tab at position.
func (r *Registry) Fixed(position int) (Tab, bool) {
	for _, t := range r.tabs {
		if t.Position == position {
			return t, true
		}
	}
	return Tab{}, false
}

// Selected returns the selected tab.
func (r *Registry) Selected() (Tab, bool) {
	for _, t := range r.tabs {
		if t.IsSelected {
			return t, true
		}
	}
	return Tab{}, false
}

// DynamicActive returns the selected tab if it is dynamic.
func (r *Registry) DynamicActive() (Tab, bool) {
	t, ok := r.Selected()
	if !ok || !t.IsDynamic() {
		return Tab{}, false
	}
	return t, true
}

// Tabs returns a copy of the tab list in display order.
func (r *Registry) Tabs() []Tab {
	return slices.Clone(r.tabs)
}

// Len returns the number of tabs.
func (r *Registry) Len() int {
	return len(r.tabs)
}

func (r *Registry) indexOf(id Identity) int {
	return slices.IndexFunc(r.tabs, func(t Tab) bool { return t.Identity.matches(id) })
}

func (r *Registry) indexOfID(id string) int {
	return slices.IndexFunc(r.tabs, func(t Tab) bool { return t.ID == id })
}

func findIn(list []Tab, id Identity) (Tab, bool) {
	for _, t := range list {
		if t.Identity.matches(id) {
			return t, true
		}
	}
	return Tab{}, false
}

func cleanPath(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	return strings.TrimSuffix(p, "/")
}
