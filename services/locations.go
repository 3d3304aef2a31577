package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"liquorbot/models"
)

// ParseLocations reads a "101:Fort Street,102:James Bay" list.
func ParseLocations(raw string) ([]models.Location, error) {
	var locations []models.Location
	seen := make(map[int]bool)

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, name, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("locations: entry %q: want id:name", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("locations: entry %q: bad id: %w", part, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("locations: duplicate id %d", id)
		}
		seen[id] = true
		locations = append(locations, models.Location{ID: id, Name: strings.TrimSpace(name)})
	}
	return locations, nil
}

// LocationDirectory maps shopper-facing store names to location ids.
type LocationDirectory struct {
	locations []models.Location
	byID      map[int]string
}

func NewLocationDirectory(locations []models.Location) *LocationDirectory {
	d := &LocationDirectory{
		locations: append([]models.Location(nil), locations...),
		byID:      make(map[int]string, len(locations)),
	}
	for _, loc := range locations {
		d.byID[loc.ID] = loc.Name
	}
	return d
}

func (d *LocationDirectory) All() []models.Location {
	return append([]models.Location(nil), d.locations...)
}

func (d *LocationDirectory) IDs() []int {
	ids := make([]int, 0, len(d.locations))
	for _, loc := range d.locations {
		ids = append(ids, loc.ID)
	}
	return ids
}

// Name returns the configured name, or the id itself for unknown locations.
func (d *LocationDirectory) Name(id int) string {
	if name, ok := d.byID[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// Resolve turns search terms into location ids, in directory order.
// No terms (or "all") selects every location. Numeric terms are taken as
// ids. Names match by case-insensitive substring first; a term with no
// substring hit falls back to the closest fuzzy match.
func (d *LocationDirectory) Resolve(terms []string) []int {
	if len(terms) == 0 {
		return d.IDs()
	}

	names := make([]string, len(d.locations))
	for i, loc := range d.locations {
		names[i] = loc.Name
	}

	selected := make(map[int]bool)
	var extra []int
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if strings.EqualFold(term, "all") {
			return d.IDs()
		}
		if id, err := strconv.Atoi(term); err == nil {
			if _, known := d.byID[id]; !known && !selected[id] {
				extra = append(extra, id)
			}
			selected[id] = true
			continue
		}

		matched := false
		lower := strings.ToLower(term)
		for _, loc := range d.locations {
			if strings.Contains(strings.ToLower(loc.Name), lower) {
				selected[loc.ID] = true
				matched = true
			}
		}
		if matched {
			continue
		}

		ranks := fuzzy.RankFindNormalizedFold(term, names)
		if len(ranks) > 0 {
			sort.Sort(ranks)
			selected[d.locations[ranks[0].OriginalIndex].ID] = true
		}
	}

	ids := make([]int, 0, len(selected))
	for _, loc := range d.locations {
		if selected[loc.ID] {
			ids = append(ids, loc.ID)
		}
	}
	return append(ids, extra...)
}
