package transit

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/lucaspons9/TelBot/network"
	"github.com/sirupsen/logrus"
)

type Stop struct {
	ID           string
	Name         string
	Pos          network.Coord
	LocationType int
	Parent       string
}

type Route struct {
	ID        string
	ShortName string
	Color     string
	Type      int
}

type Trip struct {
	ID      string
	RouteID string
}

type StopTime struct {
	TripID   string
	StopID   string
	Sequence int
}

type Transfer struct {
	From string
	To   string
}

// Feed is the subset of a GTFS feed needed to build the transit network.
// Slices keep the order of the source files.
type Feed struct {
	Stops     []Stop
	Routes    map[string]Route
	Trips     map[string]Trip
	StopTimes []StopTime
	Transfers []Transfer

	// 缺少可用坐标而跳过的站点数
	skippedStops int
}

// LoadFeed opens a GTFS zip archive and parses it.
func LoadFeed(ctx context.Context, path string) (*Feed, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open gtfs %s: %v", network.ErrSourceUnavailable, path, err)
	}
	defer rc.Close()
	return ParseFeed(ctx, &rc.Reader)
}

// ParseFeed reads stops.txt (required), routes.txt, trips.txt,
// stop_times.txt and transfers.txt from reader.
func ParseFeed(ctx context.Context, reader *zip.Reader) (*Feed, error) {
	start := time.Now()
	feed := &Feed{
		Stops:     make([]Stop, 0),
		Routes:    make(map[string]Route),
		Trips:     make(map[string]Trip),
		StopTimes: make([]StopTime, 0),
		Transfers: make([]Transfer, 0),
	}
	fileMap := make(map[string]*zip.File)
	for _, file := range reader.File {
		fileMap[file.Name] = file
	}
	if _, ok := fileMap["stops.txt"]; !ok {
		return nil, fmt.Errorf("%w: gtfs archive has no stops.txt", network.ErrSourceUnavailable)
	}

	parsers := []struct {
		name  string
		parse func(record []string, idx map[string]int) error
	}{
		{"stops.txt", feed.parseStop},
		{"routes.txt", feed.parseRoute},
		{"trips.txt", feed.parseTrip},
		{"stop_times.txt", feed.parseStopTime},
		{"transfers.txt", feed.parseTransfer},
	}
	for _, p := range parsers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, ok := fileMap[p.name]
		if !ok {
			log.Debugf("%s not found in archive", p.name)
			continue
		}
		n, err := readCSV(file, p.parse)
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", network.ErrSourceUnavailable, p.name, err)
		}
		log.WithField("count", n).Debugf("parsed %s", p.name)
	}
	if feed.skippedStops > 0 {
		log.Warnf("%d stops without a usable position skipped", feed.skippedStops)
	}
	log.WithFields(logrus.Fields{
		"stops":      len(feed.Stops),
		"routes":     len(feed.Routes),
		"trips":      len(feed.Trips),
		"stop_times": len(feed.StopTimes),
		"transfers":  len(feed.Transfers),
		"duration":   time.Since(start),
	}).Info("GTFS parsing completed")
	return feed, nil
}

func readCSV(file *zip.File, parse func(record []string, idx map[string]int) error) (int, error) {
	rc, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return 0, err
	}
	if len(header) > 0 {
		// 去掉UTF-8 BOM
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	idx := makeIndex(header)

	n := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if err := parse(record, idx); err != nil {
			return n, fmt.Errorf("line %d: %w", n+2, err)
		}
		n++
	}
	return n, nil
}

// parseStop keeps stops, stations and entrances with a valid position.
// Generic nodes and boarding areas, and rows whose position is missing or
// out of range, are skipped and counted.
func (f *Feed) parseStop(record []string, idx map[string]int) error {
	locationType := LOCATION_STOP
	if v := getField(record, idx, "location_type"); v != "" {
		var err error
		if locationType, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("location_type: %w", err)
		}
	}
	if locationType >= LOCATION_GENERIC_NODE {
		f.skippedStops++
		return nil
	}
	id := getField(record, idx, "stop_id")
	lat, errLat := strconv.ParseFloat(getField(record, idx, "stop_lat"), 64)
	lon, errLon := strconv.ParseFloat(getField(record, idx, "stop_lon"), 64)
	pos := network.Coord{Lon: lon, Lat: lat}
	if err := errors.Join(errLat, errLon, pos.Validate()); err != nil {
		log.Debugf("stop %s skipped: %v", id, err)
		f.skippedStops++
		return nil
	}
	f.Stops = append(f.Stops, Stop{
		ID:           id,
		Name:         getField(record, idx, "stop_name"),
		Pos:          pos,
		LocationType: locationType,
		Parent:       getField(record, idx, "parent_station"),
	})
	return nil
}

func (f *Feed) parseRoute(record []string, idx map[string]int) error {
	routeType := 3
	if v := getField(record, idx, "route_type"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			routeType = parsed
		}
	}
	route := Route{
		ID:        getField(record, idx, "route_id"),
		ShortName: getField(record, idx, "route_short_name"),
		Color:     getField(record, idx, "route_color"),
		Type:      routeType,
	}
	f.Routes[route.ID] = route
	return nil
}

func (f *Feed) parseTrip(record []string, idx map[string]int) error {
	trip := Trip{
		ID:      getField(record, idx, "trip_id"),
		RouteID: getField(record, idx, "route_id"),
	}
	f.Trips[trip.ID] = trip
	return nil
}

func (f *Feed) parseStopTime(record []string, idx map[string]int) error {
	seq, err := strconv.Atoi(getField(record, idx, "stop_sequence"))
	if err != nil {
		return fmt.Errorf("stop_sequence: %w", err)
	}
	f.StopTimes = append(f.StopTimes, StopTime{
		TripID:   getField(record, idx, "trip_id"),
		StopID:   getField(record, idx, "stop_id"),
		Sequence: seq,
	})
	return nil
}

func (f *Feed) parseTransfer(record []string, idx map[string]int) error {
	f.Transfers = append(f.Transfers, Transfer{
		From: getField(record, idx, "from_stop_id"),
		To:   getField(record, idx, "to_stop_id"),
	})
	return nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
