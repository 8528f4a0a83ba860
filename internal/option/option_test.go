package option

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasWildcard(t *testing.T) {
	assert.False(t, HasWildcard(nil))
	assert.False(t, HasWildcard([]Option{New("a"), New("b")}))
	assert.True(t, HasWildcard([]Option{New("a"), {Label: "All", Value: Wildcard}}))
}

func TestJoinAndSplit(t *testing.T) {
	opts := []Option{New("env-a"), New("env-b")}
	assert.Equal(t, "env-a,env-b", Join(opts))
	assert.Equal(t, "", Join(nil))

	assert.Equal(t, []string{"env-a", "env-b"}, Split("env-a, env-b,"))
	assert.Nil(t, Split(""))
}

func TestConvertToOptionsList(t *testing.T) {
	type cluster struct {
		ID   int
		Name string
	}
	opts := ConvertToOptionsList([]cluster{{1, "default_cluster"}, {2, "prod"}},
		func(c cluster) string { return c.Name },
		func(c cluster) string { return strconv.Itoa(c.ID) })

	assert.Equal(t, []Option{
		{Label: "default_cluster", Value: "1"},
		{Label: "prod", Value: "2"},
	}, opts)
}

func TestSortAlphabetically(t *testing.T) {
	names := []string{"gamma", "Beta", "alpha", "beta-2"}
	SortAlphabetically(names, func(s string) string { return s })
	assert.Equal(t, []string{"alpha", "Beta", "beta-2", "gamma"}, names)
}
