package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lucaspons9/TelBot/cache"
	"github.com/lucaspons9/TelBot/catalog"
	"github.com/lucaspons9/TelBot/network"
	"github.com/lucaspons9/TelBot/render"
	"github.com/lucaspons9/TelBot/router"
	"github.com/lucaspons9/TelBot/router/algo"
	"github.com/lucaspons9/TelBot/street"
	"github.com/lucaspons9/TelBot/transit"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const REQUEST_ID_HEADER = "X-Request-ID"

// 持久化的图名称
func graphNames(region string) (streetName, transitName, cityName string) {
	return region + ".street", region + ".transit", region + ".city"
}

// LoadCityGraph loads the fused graph of cfg.Region from store, building the
// street, transit and city graphs that are missing.
func LoadCityGraph(ctx context.Context, store cache.Store, region street.Region, gtfs string) (*algo.CityGraph, error) {
	streetName, transitName, cityName := graphNames(region.Name)
	return cache.LoadOrBuild(ctx, store, cityName, cache.BSONCodec[*algo.CityGraph]{},
		func(ctx context.Context) (*algo.CityGraph, error) {
			streetGraph, err := cache.LoadOrBuild(ctx, store, streetName, cache.BSONCodec[*network.StreetGraph]{},
				func(ctx context.Context) (*network.StreetGraph, error) {
					return street.NewProvider().Load(ctx, region)
				},
			)
			if err != nil {
				return nil, err
			}
			transitGraph, err := cache.LoadOrBuild(ctx, store, transitName, cache.BSONCodec[*network.TransitGraph]{},
				transit.NewBuilder(gtfs).Build,
			)
			if err != nil {
				return nil, err
			}
			return router.Fuse(streetGraph, transitGraph)
		},
	)
}

type RoutingServer struct {
	cfg      *Config
	store    cache.Store
	catalog  *catalog.Catalog
	renderer *render.Renderer
	overview *render.Renderer

	// 当前路由器，仅在显式重载时替换
	mu     *xsync.RBMutex
	router *router.Router
	// 串行化重载
	reloadMu sync.Mutex
}

func NewRoutingServer(ctx context.Context, cfg *Config, store cache.Store) (*RoutingServer, error) {
	g, err := LoadCityGraph(ctx, store, cfg.Region, cfg.GTFS)
	if err != nil {
		return nil, fmt.Errorf("load city graph: %w", err)
	}
	var places *catalog.Catalog
	if cfg.Catalog != "" {
		if places, err = catalog.Load(cfg.Catalog); err != nil {
			return nil, err
		}
	}
	return &RoutingServer{
		cfg:      cfg,
		store:    store,
		catalog:  places,
		renderer: render.NewRenderer(),
		overview: render.NewGraphRenderer(),
		mu:       xsync.NewRBMutex(),
		router:   router.New(g),
	}, nil
}

// Router returns the router serving requests right now.
func (s *RoutingServer) Router() *router.Router {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.router
}

// Reload rebuilds the graphs of the region from the sources and swaps the
// router. The graphs are built into a scratch store and replace the cached
// ones only after the whole build succeeded; on failure the cache and the
// current router are left untouched. The rebuild is not cancelled with ctx.
func (s *RoutingServer) Reload(ctx context.Context) (*router.Router, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	ctx = context.WithoutCancel(ctx)
	scratch := cache.NewMemoryStore()
	g, err := LoadCityGraph(ctx, scratch, s.cfg.Region, s.cfg.GTFS)
	if err != nil {
		return nil, err
	}
	streetName, transitName, cityName := graphNames(s.cfg.Region.Name)
	if err := cache.Copy(ctx, s.store, scratch, streetName, transitName, cityName); err != nil {
		// 与LoadOrBuild一致：保存失败只记录日志
		log.Errorf("failed to replace cached graphs: %v", err)
	}
	r := router.New(g)
	s.mu.Lock()
	s.router = r
	s.mu.Unlock()
	log.Infof("graph reloaded: %d nodes, %d edges", g.NodeCount(), g.EdgeCount())
	return r, nil
}

// Handler returns the HTTP API.
func (s *RoutingServer) Handler() http.Handler {
	r := gin.New()
	r.Use(requestID(), accessLog(), gin.Recovery())
	config := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 || (len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.cfg.CORSOrigins
	}
	config.AddExposeHeaders(REQUEST_ID_HEADER)
	r.Use(cors.New(config))
	if s.cfg.RateLimit > 0 {
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.RateLimit), max(s.cfg.RateBurst, 1))))
	}

	r.GET("/healthz", s.handleHealth)
	v1 := r.Group("/v1")
	v1.GET("/route", s.handleRoute)
	v1.GET("/route/map", s.handleRouteMap)
	v1.GET("/destinations", s.handleDestinations)
	v1.GET("/destinations/:index/route", s.handleDestinationRoute)
	v1.GET("/graph/map", s.handleGraphMap)
	v1.POST("/graph/reload", s.handleReload)
	return r
}

// middleware

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(REQUEST_ID_HEADER)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(REQUEST_ID_HEADER, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "rate limit exceeded",
				"request_id": c.GetString("request_id"),
			})
			return
		}
		c.Next()
	}
}

var errBadRequest = errors.New("bad request")

// writeError maps errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, network.ErrInvalidCoordinate),
		errors.Is(err, catalog.ErrIndexOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, algo.ErrNoPathFound):
		status = http.StatusNotFound
	case errors.Is(err, errNoCatalog):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		log.WithField("request_id", c.GetString("request_id")).Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "request_id": c.GetString("request_id")})
}

// response

type RouteNode struct {
	ID   network.NodeID `json:"id"`
	Kind string         `json:"kind"`
	Lon  float64        `json:"lon"`
	Lat  float64        `json:"lat"`
	Name string         `json:"name,omitempty"`
}

type RouteResponse struct {
	From    network.Coord `json:"from"`
	To      network.Coord `json:"to"`
	Path    []RouteNode   `json:"path"`
	Seconds float64       `json:"seconds"`
	Minutes int           `json:"minutes"`
}

func newRouteResponse(g *algo.CityGraph, route *router.Route) RouteResponse {
	path := make([]RouteNode, 0, len(route.Path))
	for _, id := range route.Path {
		n, _ := g.Node(id)
		path = append(path, RouteNode{ID: id, Kind: n.Kind.String(), Lon: n.Pos.Lon, Lat: n.Pos.Lat, Name: n.Name})
	}
	return RouteResponse{From: route.Src, To: route.Dst, Path: path, Seconds: route.Seconds, Minutes: route.Minutes}
}

type Destination struct {
	// 从1开始
	Index int `json:"index"`
	catalog.Place
}

type DestinationRouteResponse struct {
	Destination Destination   `json:"destination"`
	Route       RouteResponse `json:"route"`
}

// handlers

func (s *RoutingServer) handleHealth(c *gin.Context) {
	g := s.Router().Graph()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "nodes": g.NodeCount(), "edges": g.EdgeCount()})
}

func coordParam(c *gin.Context, name string) (network.Coord, error) {
	v, ok := c.GetQuery(name)
	if !ok {
		return network.Coord{}, fmt.Errorf("%w: missing query parameter %q", errBadRequest, name)
	}
	coord, err := network.ParseCoord(v)
	if err != nil {
		return network.Coord{}, fmt.Errorf("%s: %w", name, err)
	}
	return coord, nil
}

func (s *RoutingServer) route(c *gin.Context, r *router.Router, from, to network.Coord) (*router.Route, bool) {
	route, err := r.Route(from, to)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	trace.SpanFromContext(c.Request.Context()).SetAttributes(
		attribute.Int("route.nodes", len(route.Path)),
		attribute.Int("route.minutes", route.Minutes),
	)
	return route, true
}

func (s *RoutingServer) handleRoute(c *gin.Context) {
	from, err := coordParam(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := coordParam(c, "to")
	if err != nil {
		writeError(c, err)
		return
	}
	r := s.Router()
	route, ok := s.route(c, r, from, to)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newRouteResponse(r.Graph(), route))
}

func (s *RoutingServer) handleRouteMap(c *gin.Context) {
	from, err := coordParam(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := coordParam(c, "to")
	if err != nil {
		writeError(c, err)
		return
	}
	r := s.Router()
	route, ok := s.route(c, r, from, to)
	if !ok {
		return
	}
	img, err := s.renderer.Render(r.Graph(), route.Path, route.Src, route.Dst)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Route-Minutes", strconv.Itoa(route.Minutes))
	c.Data(http.StatusOK, "image/png", img)
}

var errNoCatalog = errors.New("no destination catalog configured")

func (s *RoutingServer) search(c *gin.Context) ([]catalog.Place, error) {
	if s.catalog == nil {
		return nil, errNoCatalog
	}
	limit := catalog.DEFAULT_LIMIT
	if v, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: invalid limit %q", errBadRequest, v)
		}
		limit = n
	}
	return s.catalog.Search(c.Query("q"), limit), nil
}

func (s *RoutingServer) handleDestinations(c *gin.Context) {
	results, err := s.search(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]Destination, 0, len(results))
	for i, p := range results {
		out = append(out, Destination{Index: i + 1, Place: p})
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (s *RoutingServer) handleDestinationRoute(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: index %q is not a number", errBadRequest, c.Param("index")))
		return
	}
	from, err := coordParam(c, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	results, err := s.search(c)
	if err != nil {
		writeError(c, err)
		return
	}
	place, err := catalog.Select(results, index)
	if err != nil {
		writeError(c, err)
		return
	}
	r := s.Router()
	route, ok := s.route(c, r, from, place.Pos)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, DestinationRouteResponse{
		Destination: Destination{Index: index, Place: place},
		Route:       newRouteResponse(r.Graph(), route),
	})
}

func (s *RoutingServer) handleGraphMap(c *gin.Context) {
	img, err := s.overview.RenderGraph(s.Router().Graph())
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", img)
}

func (s *RoutingServer) handleReload(c *gin.Context) {
	r, err := s.Reload(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	g := r.Graph()
	c.JSON(http.StatusOK, gin.H{"nodes": g.NodeCount(), "edges": g.EdgeCount()})
}
