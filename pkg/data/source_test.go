package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridplan/gridplan/pkg/common"
	"github.com/gridplan/gridplan/pkg/types"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"plants.csv": {Data: []byte(plantsCSV)},
		"costs.csv":  {Data: []byte("category,year,fuel,value\nfuel,2007,BIT,30\n")},
		"load.csv":   {Data: []byte("year,month,day,hour,load_mw\n2007,7,1,0,60\n")},
		"sensitivity/point/bowen_7.csv": {
			Data: []byte("month,day,hour,sensitivity,generation,emissions\n7,1,0,0.002,1500,900\n"),
		},
		"sensitivity/unit/6124.csv": {
			Data: []byte("month,day,hour,sensitivity,aggregate_emissions\n7,1,0,0.1,5000\n"),
		},
		"sensitivity/regional/north.csv": {
			Data: []byte("month,day,hour,sensitivity,aggregate_emissions\n7,1,0,0.5,90000\n"),
		},
		"sensitivity/regional/broken.csv": {
			Data: []byte("month,day\n"),
		},
	}
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	plants, err := s.Plants(ctx)
	require.NoError(t, err)
	assert.Len(t, plants, 2)

	costs, err := s.Costs(ctx)
	require.NoError(t, err)
	v, err := costs.Fuel.Lookup(2007, "BIT")
	require.NoError(t, err)
	assert.Equal(t, 30.0, v)

	load, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, load, 1)

	d, ok, err := s.PointSource(ctx, "Bowen", 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "point/bowen_7", d.Name)

	_, ok, err = s.PointSource(ctx, "bowen", 8)
	require.NoError(t, err)
	assert.False(t, ok)

	d, ok, err = s.Unit(ctx, "6124")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, d.Rows, 1)

	_, ok, err = s.Unit(ctx, "703")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Regional(ctx, RegionNorth)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = s.Regional(ctx, RegionSouth)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Regional(ctx, "broken")
	assert.ErrorIs(t, err, types.ErrMalformedData)

	_, _, err = s.Unit(ctx, "../plants")
	assert.ErrorIs(t, err, types.ErrMalformedData)
}

func TestDirSource(t *testing.T) {
	testStore(t, NewFSSource(testFS()))

	_, err := NewFSSource(fstest.MapFS{}).Plants(context.Background())
	assert.ErrorIs(t, err, types.ErrMissingData)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.StripPrefix("/gridplan", http.FileServerFS(testFS())))
	defer srv.Close()

	s, err := NewHTTPSource(srv.URL+"/gridplan", common.HTTPClient(5*time.Second))
	require.NoError(t, err)
	testStore(t, s)

	t.Run("server error", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer bad.Close()
		s, err := NewHTTPSource(bad.URL, http.DefaultClient)
		require.NoError(t, err)
		_, _, err = s.Unit(context.Background(), "703")
		assert.Error(t, err)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := NewHTTPSource("ftp://example.com", http.DefaultClient)
		assert.Error(t, err)
	})
}

func TestMemorySource(t *testing.T) {
	m := NewMemorySource()
	m.Points[PointKey("Bowen", 7)] = Dataset{Name: "point/bowen_7"}
	ctx := context.Background()

	_, ok, err := m.PointSource(ctx, "BOWEN", 7)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = m.Unit(ctx, "703")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, []string{"point/bowen_7", "unit/703"}, m.Lookups())

	_, err = m.Plants(ctx)
	assert.ErrorIs(t, err, types.ErrMissingData)
}
