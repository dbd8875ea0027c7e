package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucaspons9/TelBot/network"
	"github.com/samber/lo"
)

// Place is a named destination.
type Place struct {
	Name         string        `json:"name"`
	Street       string        `json:"street,omitempty"`
	Number       string        `json:"number,omitempty"`
	Neighborhood string        `json:"neighborhood,omitempty"`
	District     string        `json:"district,omitempty"`
	Zip          string        `json:"zip,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Pos          network.Coord `json:"pos"`
}

// Catalog is an immutable list of places in file order.
type Catalog struct {
	places []Place
}

func New(places []Place) *Catalog {
	return &Catalog{places: places}
}

func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", network.ErrSourceUnavailable, err)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", network.ErrSourceUnavailable, path, err)
	}
	log.Infof("loaded %d places from %s", c.Len(), path)
	return c, nil
}

// Read parses the Barcelona open data restaurant CSV. Rows without a valid
// position are skipped.
func Read(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	idx := makeIndex(header)
	for _, col := range []string{"name", "geo_epgs_4326_x", "geo_epgs_4326_y"} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	places := make([]Place, 0)
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		// 数据集中x列为纬度，y列为经度
		lat, errLat := strconv.ParseFloat(getField(record, idx, "geo_epgs_4326_x"), 64)
		lon, errLon := strconv.ParseFloat(getField(record, idx, "geo_epgs_4326_y"), 64)
		pos := network.Coord{Lon: lon, Lat: lat}
		if errLat != nil || errLon != nil || pos.Validate() != nil {
			skipped++
			continue
		}
		places = append(places, Place{
			Name:         getField(record, idx, "name"),
			Street:       getField(record, idx, "addresses_road_name"),
			Number:       getField(record, idx, "addresses_start_street_number"),
			Neighborhood: getField(record, idx, "addresses_neighborhood_name"),
			District:     getField(record, idx, "addresses_district_name"),
			Zip:          getField(record, idx, "addresses_zip_code"),
			Phone:        getField(record, idx, "values_value"),
			Pos:          pos,
		})
	}
	if skipped > 0 {
		log.Warnf("%d places without a valid position skipped", skipped)
	}
	return New(places), nil
}

func (c *Catalog) Len() int {
	return len(c.places)
}

func (c *Catalog) Places() []Place {
	return c.places
}

// Find returns the places matching every term. A term matches when it is a
// case-insensitive substring of the name, street, neighborhood or district.
func (c *Catalog) Find(terms ...string) []Place {
	terms = lo.FilterMap(terms, func(t string, _ int) (string, bool) {
		t = strings.ToLower(strings.TrimSpace(t))
		return t, t != ""
	})
	return lo.Filter(c.places, func(p Place, _ int) bool {
		fields := strings.ToLower(strings.Join([]string{p.Name, p.Street, p.Neighborhood, p.District}, "\x00"))
		return lo.EveryBy(terms, func(t string) bool {
			return strings.Contains(fields, t)
		})
	})
}

// Search splits query on white space and returns at most limit matches.
// A non-positive limit means DEFAULT_LIMIT.
func (c *Catalog) Search(query string, limit int) []Place {
	if limit <= 0 {
		limit = DEFAULT_LIMIT
	}
	results := c.Find(strings.Fields(query)...)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Select returns results[index-1]. Indices are 1-based; anything outside
// [1, len(results)] is ErrIndexOutOfRange.
func Select(results []Place, index int) (Place, error) {
	if index < 1 || index > len(results) {
		if len(results) == 0 {
			return Place{}, fmt.Errorf("%w: index %d, no results", ErrIndexOutOfRange, index)
		}
		return Place{}, fmt.Errorf("%w: index %d not in [1, %d]", ErrIndexOutOfRange, index, len(results))
	}
	return results[index-1], nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
