// Package tabs keeps the ordered set of navigational tabs of the resource
// browser: a few fixed tabs that are always present and dynamic tabs opened
// for individual resources.
package tabs

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DynamicTabPosition is the position shared by every dynamic tab.
const DynamicTabPosition = math.MaxInt

// Positions of the fixed tabs.
const (
	PositionOverview      = 0
	PositionResourceList  = 1
	PositionAdminTerminal = 2
)

// Identity re-finds a tab when only URL context is known. Kind compares
// case-insensitively because URLs carry lower-cased kinds.
type Identity struct {
	IDPrefix string `json:"idPrefix"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
}

func (i Identity) matches(o Identity) bool {
	return i.IDPrefix == o.IDPrefix && strings.EqualFold(i.Kind, o.Kind) && i.Name == o.Name
}

func (i Identity) String() string {
	if i.Kind == "" {
		return fmt.Sprintf("%s-%s", i.IDPrefix, i.Name)
	}
	return fmt.Sprintf("%s-%s/%s", i.IDPrefix, strings.ToLower(i.Kind), i.Name)
}

// Tab is one navigable view.
type Tab struct {
	ID             string    `json:"id"`
	Identity       Identity  `json:"identity"`
	Name           string    `json:"name"`
	URL            string    `json:"url"`
	IsSelected     bool      `json:"isSelected"`
	IsAlive        bool      `json:"isAlive"`
	Position       int       `json:"position"`
	ComponentKey   string    `json:"componentKey"`
	LastSyncMoment time.Time `json:"lastSyncMoment"`
}

// IsDynamic reports whether t was opened for a single resource.
func (t Tab) IsDynamic() bool {
	return t.Position == DynamicTabPosition
}

// Spec describes a tab to create during initialization.
type Spec struct {
	Identity Identity

	// Title is the display name. Fixed tabs default to Identity.Name and
	// dynamic tabs to "kind/name".
	Title    string
	URL      string
	Selected bool
	Alive    bool
	Position int
}

// DynamicSpec describes a dynamic tab for the resource identified by id.
func DynamicSpec(id Identity, url string) Spec {
	return Spec{Identity: id, URL: url, Selected: true, Alive: true, Position: DynamicTabPosition}
}

func (s Spec) title() string {
	if s.Title != "" {
		return s.Title
	}
	if s.Position == DynamicTabPosition && s.Identity.Kind != "" {
		return fmt.Sprintf("%s/%s", s.Identity.Kind, s.Identity.Name)
	}
	return s.Identity.Name
}
