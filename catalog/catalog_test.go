package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucaspons9/TelBot/catalog"
	"github.com/lucaspons9/TelBot/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCSV = `register_id,name,addresses_road_name,addresses_start_street_number,addresses_neighborhood_name,addresses_district_name,addresses_zip_code,values_value,geo_epgs_4326_x,geo_epgs_4326_y
1,The Good Burger,Rambla,12,el Raval,Ciutat Vella,08002,933000000,41.3809,2.1735
2,Burger Garden,Carrer de Mallorca,200,la Dreta de l'Eixample,Eixample,08008,,41.3947,2.1610
3,Crep Barcelona,Carrer Gran de Gràcia,4,Vila de Gràcia,Gràcia,08012,,41.4000,2.1560
4,Sense posició,Carrer Fals,1,el Raval,Ciutat Vella,08001,,,
5,Bar Raval,Carrer del Carme,3,el Raval,Ciutat Vella,08001,,41.3820,2.1700
`

func testCatalog(t *testing.T) *catalog.Catalog {
	c, err := catalog.Read(strings.NewReader(testCSV))
	require.NoError(t, err)
	return c
}

func names(places []catalog.Place) []string {
	out := make([]string, 0, len(places))
	for _, p := range places {
		out = append(out, p.Name)
	}
	return out
}

func TestRead(t *testing.T) {
	c := testCatalog(t)
	// 无坐标的行被跳过
	require.Equal(t, 4, c.Len())
	p := c.Places()[0]
	assert.Equal(t, "The Good Burger", p.Name)
	assert.Equal(t, "Rambla", p.Street)
	assert.Equal(t, "933000000", p.Phone)
	assert.Equal(t, network.Coord{Lon: 2.1735, Lat: 41.3809}, p.Pos)
}

func TestFind(t *testing.T) {
	c := testCatalog(t)
	assert.Equal(t, []string{"The Good Burger", "Burger Garden"}, names(c.Find("burger")))
	assert.Equal(t, []string{"The Good Burger"}, names(c.Find("BURGER", "good")))
	assert.Equal(t, []string{"The Good Burger", "Bar Raval"}, names(c.Find("raval")))
	// 多个字段同时匹配只返回一次
	assert.Equal(t, []string{"Bar Raval"}, names(c.Find("bar", "raval", "carme")))
	assert.Equal(t, []string{"Crep Barcelona"}, names(c.Find("gràcia")))
	assert.Empty(t, c.Find("sushi"))
	assert.Len(t, c.Find(), 4)
	assert.Len(t, c.Find(" ", ""), 4)
}

func TestSearch(t *testing.T) {
	c := testCatalog(t)
	assert.Equal(t, []string{"The Good Burger"}, names(c.Search("good burger", 0)))
	assert.Len(t, c.Search("", 2), 2)
	assert.Len(t, c.Search("", 0), 4)
}

func TestSelect(t *testing.T) {
	results := testCatalog(t).Find("burger")

	p, err := catalog.Select(results, 1)
	require.NoError(t, err)
	assert.Equal(t, "The Good Burger", p.Name)
	p, err = catalog.Select(results, 2)
	require.NoError(t, err)
	assert.Equal(t, "Burger Garden", p.Name)

	for _, i := range []int{0, -1, 3, 13} {
		_, err := catalog.Select(results, i)
		assert.ErrorIs(t, err, catalog.ErrIndexOutOfRange)
	}
	_, err = catalog.Select(results, 3)
	assert.ErrorContains(t, err, "index 3 not in [1, 2]")
	_, err = catalog.Select(nil, 1)
	assert.ErrorContains(t, err, "no results")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restaurants.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0644))
	c, err := catalog.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Len())

	_, err = catalog.Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, network.ErrSourceUnavailable)

	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0644))
	_, err = catalog.Load(path)
	assert.ErrorIs(t, err, network.ErrSourceUnavailable)
}
