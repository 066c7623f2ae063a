package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
)

// SpiderProfile is a named spider fixture, loaded from a spider sheet or a JSON profile.
type SpiderProfile struct {
	SpiderID           string  `json:"spider_id"`
	Name               string  `json:"name"`
	SpiderType         string  `json:"spider_type"`
	AttachmentSites    int     `json:"attachment_sites"`
	Volume             float64 `json:"volume"`
	Weight             float64 `json:"weight"`
	AttachmentDistance float64 `json:"attachment_distance"`
}

func (p SpiderProfile) Spider() molding.Spider {
	return molding.Spider{
		SpiderType:         p.SpiderType,
		AttachmentSites:    p.AttachmentSites,
		Volume:             p.Volume,
		Weight:             p.Weight,
		AttachmentDistance: p.AttachmentDistance,
	}
}

var spiderColumns = []string{
	"spider_id", "spider_name", "spider_type", "weight",
	"major_dimension_mm", "secondary_dimension_mm", "height_mm",
	"attachment_sites_each_side", "attachment_distance",
}

// LoadSpidersCSV reads a spider sheet. Sites are counted on both sides of the
// spider, the envelope volume is major x secondary x height, and lengths are in mm.
func LoadSpidersCSV(r io.Reader) ([]SpiderProfile, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range spiderColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing %q column", col)
		}
	}

	profiles := make([]SpiderProfile, 0)
	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		p, err := spiderFromRow(index, fields)
		if err != nil {
			return nil, RowError{Line: line, Err: err}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func spiderFromRow(index map[string]int, fields []string) (SpiderProfile, error) {
	get := func(col string) string { return strings.TrimSpace(fields[index[col]]) }
	num := func(col string) (float64, error) {
		f, err := strconv.ParseFloat(get(col), 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", col, err)
		}
		return f, nil
	}

	p := SpiderProfile{
		SpiderID:   get("spider_id"),
		Name:       get("spider_name"),
		SpiderType: get("spider_type"),
	}
	if p.SpiderID == "" {
		return p, errors.New("empty spider_id")
	}

	nums := make(map[string]float64, len(spiderColumns))
	for _, col := range spiderColumns[3:] {
		v, err := num(col)
		if err != nil {
			return p, err
		}
		nums[col] = v
	}

	p.Weight = nums["weight"]
	p.AttachmentSites = int(nums["attachment_sites_each_side"]) * 2
	p.Volume = nums["major_dimension_mm"] / 1000 * nums["secondary_dimension_mm"] / 1000 * nums["height_mm"] / 1000
	p.AttachmentDistance = nums["attachment_distance"] / 1000
	return p, nil
}
