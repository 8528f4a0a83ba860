package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubedeck/kubedeck/internal/kube"
)

func newTestSessionManager(ttl time.Duration) (*SessionManager, *time.Time) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewSessionManager(ttl, func() *Page {
		return NewPage(Config{}, Deps{
			Clusters: &mockClusters{clusters: []kube.Cluster{{ID: 1, Name: "default_cluster"}}},
		})
	})
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestSessionManagerLifecycle(t *testing.T) {
	m, _ := newTestSessionManager(time.Minute)

	id, page, err := m.Create(context.Background(), "/resource-browser/1/all/node/k8sEmptyGroup")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, m.OpenTabs())

	got, err := m.Get(id)
	require.NoError(t, err)
	assert.Same(t, page, got)

	assert.True(t, m.Delete(id))
	assert.False(t, m.Delete(id))
	_, err = m.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManagerCreateFails(t *testing.T) {
	m, _ := newTestSessionManager(time.Minute)

	_, _, err := m.Create(context.Background(), "/not-the-browser")
	assert.ErrorIs(t, err, ErrInvalidRoute)
	assert.Zero(t, m.Len())
}

func TestSessionManagerEvictIdle(t *testing.T) {
	m, clock := newTestSessionManager(10 * time.Minute)
	ctx := context.Background()
	start := *clock

	idle, _, err := m.Create(ctx, "/resource-browser/1/all/node/k8sEmptyGroup")
	require.NoError(t, err)
	*clock = start.Add(8 * time.Minute)
	active, _, err := m.Create(ctx, "/resource-browser/1/all/node/k8sEmptyGroup")
	require.NoError(t, err)

	*clock = start.Add(11 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle())

	_, err = m.Get(idle)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get(active)
	assert.NoError(t, err)
}

func TestNewSessionManagerDefaultTTL(t *testing.T) {
	m := NewSessionManager(0, nil)
	assert.Equal(t, DefaultSessionTTL, m.ttl)
}

func TestSessionManagerRunWithTinyTTL(t *testing.T) {
	m := NewSessionManager(time.Nanosecond, nil)
	assert.Equal(t, minEvictInterval, m.evictInterval())
	assert.Equal(t, 15*time.Minute, NewSessionManager(DefaultSessionTTL, nil).evictInterval())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
