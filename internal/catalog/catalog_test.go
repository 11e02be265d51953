package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	require.Len(t, c.Providers, 12)
	assert.Len(t, c.Regional(), 10)

	nw := c.Nationwide()
	require.Len(t, nw, 2)
	assert.Equal(t, "EarthLink", nw[0].Name)
	assert.Equal(t, "DirecTV", nw[1].Name)

	defaults := c.DefaultProviders()
	assert.Equal(t, "xfinity", defaults[0].ID)
	assert.Equal(t, 1, defaults[0].DisplayOrder)
	assert.Equal(t, 12, defaults[11].DisplayOrder)
	for _, p := range defaults {
		assert.True(t, p.Enabled, p.ID)
	}

	assert.True(t, c.ClosedOn(time.Sunday))
	assert.False(t, c.ClosedOn(time.Saturday))
	assert.Equal(t, 14, c.Install.MaxDaysAhead)
}

func TestLookups(t *testing.T) {
	c := Default()

	p, ok := c.ProviderByName("frontier fiber")
	require.True(t, ok)
	assert.Equal(t, "frontier-fiber", p.ID)

	pkg, ok := c.Package("Frontier Fiber", "frontier-fiber-500")
	require.True(t, ok)
	assert.Equal(t, "Fiber 500 - 500 Mbps - $70/mo", pkg.Describe())

	_, ok = c.Package("Frontier Fiber", "xfinity-fast")
	assert.False(t, ok)

	_, ok = c.AddOn("static-ip")
	assert.True(t, ok)
	_, ok = c.TimeWindow("flexible")
	assert.True(t, ok)
	_, ok = c.DirectvPackage("none")
	assert.True(t, ok)
}

func TestOptionDescribe_SkipsSpeedEqualToLabel(t *testing.T) {
	o := Option{Label: "100 Mbps", Speed: "100 Mbps", Price: "$50/mo"}
	assert.Equal(t, "100 Mbps - $50/mo", o.Describe())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("providers: []"))
	require.Error(t, err)

	_, err = Parse([]byte(`
providers:
  - {id: a, name: A}
  - {id: a, name: B}
`))
	require.Error(t, err)

	_, err = Parse([]byte(`
providers:
  - {id: a, name: A}
install:
  closedWeekdays: [Caturday]
`))
	require.Error(t, err)
}
