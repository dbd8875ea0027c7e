package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lucaspons9/TelBot/cache"
	"github.com/lucaspons9/TelBot/network"
	"github.com/lucaspons9/TelBot/street"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 一条东西向的街道(1-5)和一段孤立的街道(6-7)
const testExtract = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
 <node id="1" lat="41.385" lon="2.150"/>
 <node id="2" lat="41.385" lon="2.160"/>
 <node id="3" lat="41.385" lon="2.170"/>
 <node id="4" lat="41.385" lon="2.180"/>
 <node id="5" lat="41.385" lon="2.190"/>
 <node id="6" lat="41.385" lon="2.300"/>
 <node id="7" lat="41.385" lon="2.301"/>
 <way id="10"><nd ref="1"/><nd ref="2"/><tag k="highway" v="footway"/></way>
 <way id="11"><nd ref="2"/><nd ref="3"/><tag k="highway" v="residential"/></way>
 <way id="12"><nd ref="3"/><nd ref="4"/><tag k="highway" v="pedestrian"/></way>
 <way id="13"><nd ref="4"/><nd ref="5"/><tag k="highway" v="footway"/></way>
 <way id="14"><nd ref="6"/><nd ref="7"/><tag k="highway" v="footway"/></way>
</osm>
`

// 两个车站，各有一个出入口，由一条线路连接
var testFeed = map[string]string{
	"stops.txt": `stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station
PA,Oest,41.3855,2.1505,1,
SA,Oest L1,41.3855,2.1505,0,PA
EA,Accés Oest,41.3851,2.1501,2,PA
PB,Est,41.3855,2.1895,1,
SB,Est L1,41.3855,2.1895,0,PB
EB,Accés Est,41.3851,2.1899,2,PB
`,
	"routes.txt": `route_id,route_short_name,route_color,route_type
L1,L1,e32a2c,1
`,
	"trips.txt": `route_id,service_id,trip_id
L1,WD,T1
`,
	"stop_times.txt": `trip_id,arrival_time,departure_time,stop_id,stop_sequence
T1,08:00:00,08:00:00,SA,1
T1,08:07:00,08:07:00,SB,2
`,
}

const testCatalog = `register_id,name,addresses_road_name,addresses_start_street_number,addresses_neighborhood_name,addresses_district_name,addresses_zip_code,values_value,geo_epgs_4326_x,geo_epgs_4326_y
1,Bar Est,Carrer Llarg,1,el Poblenou,Sant Martí,08005,,41.3851,2.1899
2,Bar Oest,Carrer Llarg,99,Sants,Sants-Montjuïc,08014,,41.3850,2.1500
3,Forn del Mig,Carrer Llarg,50,Sants,Sants-Montjuïc,08014,,41.3850,2.1700
`

const (
	WEST = "2.150,41.385"
	EAST = "2.190,41.385"
)

func writeFixtures(t testing.TB) *Config {
	dir := t.TempDir()
	osmFile := filepath.Join(dir, "test.osm")
	require.NoError(t, os.WriteFile(osmFile, []byte(testExtract), 0644))
	catalogFile := filepath.Join(dir, "places.csv")
	require.NoError(t, os.WriteFile(catalogFile, []byte(testCatalog), 0644))

	gtfsFile := filepath.Join(dir, "gtfs.zip")
	f, err := os.Create(gtfsFile)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, content := range testFeed {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return &Config{
		Region:      street.Region{Name: "test", File: osmFile},
		GTFS:        gtfsFile,
		Catalog:     catalogFile,
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
	}
}

func newTestServer(t testing.TB, cfg *Config) (*RoutingServer, *cache.MemoryStore) {
	gin.SetMode(gin.TestMode)
	store := cache.NewMemoryStore()
	server, err := NewRoutingServer(context.Background(), cfg, store)
	require.NoError(t, err)
	return server, store
}

func do(t testing.TB, h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func routeURL(path, from, to string) string {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)
	return path + "?" + q.Encode()
}

func TestLoadCityGraph(t *testing.T) {
	cfg := writeFixtures(t)
	store := cache.NewMemoryStore()
	g, err := LoadCityGraph(context.Background(), store, cfg.Region, cfg.GTFS)
	require.NoError(t, err)
	// 7个路口，2个车站，2个出入口
	assert.Equal(t, 11, g.NodeCount())
	// 5条街道，1条乘车，2条上车，2条出入口连接
	assert.Equal(t, 10, g.EdgeCount())
	for _, name := range []string{"test.street", "test.transit", "test.city"} {
		_, err := store.Load(context.Background(), name)
		assert.NoError(t, err, name)
	}

	// 源文件删除后从缓存加载
	require.NoError(t, os.Remove(cfg.Region.File))
	cached, err := LoadCityGraph(context.Background(), store, cfg.Region, cfg.GTFS)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes(), cached.Nodes())
	assert.Equal(t, g.Edges(), cached.Edges())

	_, err = LoadCityGraph(context.Background(), cache.NewMemoryStore(), cfg.Region, cfg.GTFS)
	assert.ErrorIs(t, err, network.ErrSourceUnavailable)
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	rec := do(t, server.Handler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 11, body["nodes"])
	assert.EqualValues(t, 10, body["edges"])
}

func TestRoute(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	rec := do(t, server.Handler(), http.MethodGet, routeURL("/v1/route", WEST, EAST))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[RouteResponse](t, rec)

	ids := make([]network.NodeID, 0, len(res.Path))
	for _, n := range res.Path {
		ids = append(ids, n.ID)
	}
	// 乘车比步行快
	assert.Equal(t, []network.NodeID{
		"street:1", "access:EA", "station:SA", "station:SB", "access:EB", "street:5",
	}, ids)
	assert.Equal(t, "street", res.Path[0].Kind)
	assert.Equal(t, "station", res.Path[2].Kind)
	assert.Equal(t, "Oest L1", res.Path[2].Name)
	assert.Equal(t, network.Coord{Lon: 2.150, Lat: 41.385}, res.From)
	assert.Equal(t, network.Coord{Lon: 2.190, Lat: 41.385}, res.To)
	assert.Greater(t, res.Seconds, 0.0)
	assert.Equal(t, int(res.Seconds/60), res.Minutes)
	// 全程步行约37分钟
	assert.Less(t, res.Minutes, 15)

	// 同一位置
	rec = do(t, server.Handler(), http.MethodGet, routeURL("/v1/route", WEST, WEST))
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode[RouteResponse](t, rec)
	require.Len(t, res.Path, 1)
	assert.Equal(t, 0, res.Minutes)
}

func TestRouteErrors(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	h := server.Handler()

	rec := do(t, h, http.MethodGet, "/v1/route?to="+EAST)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, routeURL("/v1/route", "abc", EAST))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, routeURL("/v1/route", WEST, "2.19,100"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["error"], "invalid coordinate")
	// 孤立的街道
	rec = do(t, h, http.MethodGet, routeURL("/v1/route", WEST, "2.3005,41.385"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodGet, routeURL("/v1/route/map", WEST, "2.3005,41.385"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouteMap(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	rec := do(t, server.Handler(), http.MethodGet, routeURL("/v1/route/map", WEST, EAST))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG\r\n\x1a\n", rec.Body.String()[:8])
	assert.NotEmpty(t, rec.Header().Get("X-Route-Minutes"))
}

func TestGraphMap(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	rec := do(t, server.Handler(), http.MethodGet, "/v1/graph/map")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG\r\n\x1a\n", rec.Body.String()[:8])
}

type destinationsResponse struct {
	Results []Destination `json:"results"`
}

func TestDestinations(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	h := server.Handler()

	rec := do(t, h, http.MethodGet, "/v1/destinations?q=BAR")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[destinationsResponse](t, rec)
	require.Len(t, res.Results, 2)
	assert.Equal(t, 1, res.Results[0].Index)
	assert.Equal(t, "Bar Est", res.Results[0].Name)
	assert.Equal(t, 2, res.Results[1].Index)
	assert.Equal(t, network.Coord{Lon: 2.1899, Lat: 41.3851}, res.Results[0].Pos)

	// 多个关键词同时匹配
	rec = do(t, h, http.MethodGet, "/v1/destinations?q=bar+sants")
	res = decode[destinationsResponse](t, rec)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Bar Oest", res.Results[0].Name)

	rec = do(t, h, http.MethodGet, "/v1/destinations?q=llarg&limit=1")
	res = decode[destinationsResponse](t, rec)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Bar Est", res.Results[0].Name)

	rec = do(t, h, http.MethodGet, "/v1/destinations?q=pizza")
	res = decode[destinationsResponse](t, rec)
	assert.Empty(t, res.Results)

	rec = do(t, h, http.MethodGet, "/v1/destinations?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDestinationRoute(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	h := server.Handler()

	rec := do(t, h, http.MethodGet, "/v1/destinations/1/route?q=bar&from="+WEST)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[DestinationRouteResponse](t, rec)
	assert.Equal(t, 1, res.Destination.Index)
	assert.Equal(t, "Bar Est", res.Destination.Name)
	require.NotEmpty(t, res.Route.Path)
	assert.Equal(t, network.NodeID("street:1"), res.Route.Path[0].ID)
	assert.Equal(t, network.NodeID("street:5"), res.Route.Path[len(res.Route.Path)-1].ID)

	for _, index := range []string{"0", "3", "-1"} {
		rec = do(t, h, http.MethodGet, fmt.Sprintf("/v1/destinations/%s/route?q=bar&from=%s", index, WEST))
		assert.Equal(t, http.StatusBadRequest, rec.Code, index)
	}
	rec = do(t, h, http.MethodGet, "/v1/destinations/one/route?q=bar&from="+WEST)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/v1/destinations/1/route?q=pizza&from="+WEST)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[map[string]any](t, rec)["error"], "no results")
	rec = do(t, h, http.MethodGet, "/v1/destinations/1/route?q=bar")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoCatalog(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.Catalog = ""
	server, _ := newTestServer(t, cfg)
	rec := do(t, server.Handler(), http.MethodGet, "/v1/destinations?q=bar")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = do(t, server.Handler(), http.MethodGet, "/v1/destinations/1/route?q=bar&from="+WEST)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReload(t *testing.T) {
	cfg := writeFixtures(t)
	server, store := newTestServer(t, cfg)
	before := server.Router()

	rec := do(t, server.Handler(), http.MethodPost, "/v1/graph/reload")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 11, decode[map[string]any](t, rec)["nodes"])
	assert.NotSame(t, before, server.Router())
	cached := make(map[string][]byte)
	for _, name := range []string{"test.street", "test.transit", "test.city"} {
		data, err := store.Load(context.Background(), name)
		require.NoError(t, err, name)
		cached[name] = data
	}

	// 源文件缺失时重载失败，缓存和旧图都保持不变
	current := server.Router()
	require.NoError(t, os.Remove(cfg.GTFS))
	rec = do(t, server.Handler(), http.MethodPost, "/v1/graph/reload")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Same(t, current, server.Router())
	for name, want := range cached {
		data, err := store.Load(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, want, data, name)
	}
	rec = do(t, server.Handler(), http.MethodGet, routeURL("/v1/route", WEST, EAST))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 重启后仍可从缓存加载
	restarted, err := NewRoutingServer(context.Background(), cfg, store)
	require.NoError(t, err)
	assert.Equal(t, 11, restarted.Router().Graph().NodeCount())
}

func TestReloadIgnoresCancellation(t *testing.T) {
	server, store := newTestServer(t, writeFixtures(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := server.Reload(ctx)
	require.NoError(t, err)
	assert.Same(t, r, server.Router())
	_, err = store.Load(context.Background(), "test.city")
	assert.NoError(t, err)
}

func TestMiddleware(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	server, _ := newTestServer(t, cfg)
	h := server.Handler()

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := uuid.Parse(rec.Header().Get(REQUEST_ID_HEADER))
	assert.NoError(t, err)

	rec = do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// 合法的请求编号原样返回
	server, _ = newTestServer(t, writeFixtures(t))
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(REQUEST_ID_HEADER, id)
	req.Header.Set("Origin", "http://client.test")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(REQUEST_ID_HEADER))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
region:
  name: bcn
  file: /data/bcn.osm.pbf
gtfs: /data/tmb.zip
listen: ":8080"
log_level: debug
rate_limit: 10
rate_burst: 20
cors_origins: ["https://example.com"]
`), 0644))

	cfg, err := LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-config", path, "-listen", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, street.Region{Name: "bcn", File: "/data/bcn.osm.pbf"}, cfg.Region)
	assert.Equal(t, "/data/tmb.zip", cfg.GTFS)
	// 命令行优先
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10.0, cfg.RateLimit)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.Equal(t, []string{"https://example.com"}, cfg.CORSOrigins)

	cfg, err = LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-osm", "a.osm", "-gtfs", "b.zip"})
	require.NoError(t, err)
	assert.Equal(t, "barcelona", cfg.Region.Name)
	assert.Equal(t, "localhost:52101", cfg.Listen)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)

	_, err = LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-osm", "a.osm"})
	assert.Error(t, err)
	_, err = LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-osm", "a.osm", "-gtfs", "b.zip", "-log-level", "loud"})
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("unknown: 1\n"), 0644))
	_, err = LoadConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-config", path})
	assert.Error(t, err)
}

func TestCachePath(t *testing.T) {
	p, err := NewCachePath("")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, "memory", p.String())

	p, err = NewCachePath("redis://localhost:6379/0")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", p.RedisURL)

	p, err = NewCachePath("telbot.graphs")
	require.NoError(t, err)
	assert.Equal(t, &CachePath{DB: "telbot", Coll: "graphs"}, p)
	assert.Equal(t, "telbot.graphs", p.String())

	dir := t.TempDir()
	p, err = NewCachePath(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, p.Dir)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = NewCachePath(file)
	assert.Error(t, err)

	p, err = NewCachePath("./data/cache")
	require.NoError(t, err)
	assert.Equal(t, "./data/cache", p.Dir)

	var nilPath *CachePath
	store, closeStore, err := nilPath.Open(context.Background(), "")
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &cache.MemoryStore{}, store)

	store, closeStore, err = (&CachePath{Dir: dir}).Open(context.Background(), "")
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &cache.FileStore{}, store)

	_, _, err = (&CachePath{DB: "telbot", Coll: "graphs"}).Open(context.Background(), "")
	assert.Error(t, err)
}

func TestBenchmarkQueries(t *testing.T) {
	server, _ := newTestServer(t, writeFixtures(t))
	r := server.Router()
	queries := randomQueries(r, 50, 1)
	require.Len(t, queries, 50)
	sw, ne := r.Graph().Bound()
	for _, q := range queries {
		for _, c := range q {
			assert.True(t, c.Lon >= sw.Lon && c.Lon <= ne.Lon && c.Lat >= sw.Lat && c.Lat <= ne.Lat)
		}
	}
	assert.Equal(t, queries, randomQueries(r, 50, 1))

	serial := runQueries(r, queries, 1)
	assert.LessOrEqual(t, serial, int32(50))
	assert.Equal(t, serial, runQueries(r, queries, 4))
}

func FuzzRoute(f *testing.F) {
	server, _ := newTestServer(f, writeFixtures(f))
	r := server.Router()
	f.Add(2.150, 41.385, 2.190, 41.385)
	f.Add(2.3005, 41.385, 2.150, 41.385)
	f.Add(200.0, 0.0, 0.0, 0.0)

	f.Fuzz(func(t *testing.T, srcLon, srcLat, dstLon, dstLat float64) {
		res, err := r.Route(network.Coord{Lon: srcLon, Lat: srcLat}, network.Coord{Lon: dstLon, Lat: dstLat})
		// 有且只有一个是nil
		assert.True(t, (res == nil) != (err == nil))
		if err == nil {
			assert.NotEmpty(t, res.Path)
			assert.Equal(t, int(res.Seconds/60), res.Minutes)
		}
	})
}
