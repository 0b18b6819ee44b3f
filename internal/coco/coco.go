// Package coco reads HumanSignal COCO exports and prepares them for import
// into CVAT.
package coco

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/errors"
	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// Image is a COCO image entry
type Image struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Annotation is a COCO object annotation. Bbox is [x, y, width, height].
type Annotation struct {
	ID           int             `json:"id"`
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	Bbox         []float64       `json:"bbox"`
	Area         float64         `json:"area"`
	IsCrowd      int             `json:"iscrowd"`
	Segmentation json.RawMessage `json:"segmentation,omitempty"`
	Attributes   map[string]any  `json:"attributes,omitempty"`
}

// Category is a COCO category
type Category struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// Dataset is a COCO document
type Dataset struct {
	Info        json.RawMessage `json:"info,omitempty"`
	Licenses    json.RawMessage `json:"licenses,omitempty"`
	Images      []Image         `json:"images"`
	Annotations []Annotation    `json:"annotations"`
	Categories  []Category      `json:"categories"`
}

// Decode reads a dataset from r
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, errors.Newf("failed to parse COCO dataset: %w", err).
			Category(errors.CategoryFileParsing).
			Component("coco").
			Build()
	}
	return &ds, nil
}

// LoadFile reads a dataset from disk
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return nil, errors.Newf("failed to open COCO dataset: %w", err).
			Category(errors.CategoryFileIO).
			Component("coco").
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// SortedCategories returns the categories ordered by id
func (d *Dataset) SortedCategories() []Category {
	cats := make([]Category, len(d.Categories))
	copy(cats, d.Categories)
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	return cats
}

// LabelNames returns category names in id order; task labels are created in
// this order so that remapped category ids line up with them.
func (d *Dataset) LabelNames() []string {
	cats := d.SortedCategories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

// Group is the part of a dataset that belongs to one session
type Group struct {
	Images      []Image
	Annotations []Annotation
}

// GroupBySession splits a dataset by the session in each image's basename.
// Images without a session are left out; annotations follow their image.
func GroupBySession(d *Dataset, parts int) map[string]*Group {
	groups := make(map[string]*Group)
	imageSession := make(map[int]string, len(d.Images))

	for _, img := range d.Images {
		id, ok := session.FromBasename(img.FileName, parts)
		if !ok {
			continue
		}
		g, exists := groups[id]
		if !exists {
			g = &Group{}
			groups[id] = g
		}
		g.Images = append(g.Images, img)
		if _, seen := imageSession[img.ID]; !seen {
			imageSession[img.ID] = id
		}
	}

	for _, ann := range d.Annotations {
		if id, ok := imageSession[ann.ImageID]; ok {
			groups[id].Annotations = append(groups[id].Annotations, ann)
		}
	}
	return groups
}

// ServerPath maps a HumanSignal file name to its path in cloud storage
func ServerPath(prefix, fileName string) string {
	base := session.Basename(fileName)
	if prefix == "" {
		return base
	}
	return strings.TrimRight(prefix, "/") + "/" + base
}

// CategoryMap maps original category ids to CVAT's 1-based ids
type CategoryMap map[int]int

// Lookup returns the new id; ids missing from the dataset shift by one
func (m CategoryMap) Lookup(old int) int {
	if id, ok := m[old]; ok {
		return id
	}
	return old + 1
}

// RemapCategories renumbers categories 1..n in original id order
func RemapCategories(cats []Category) ([]Category, CategoryMap) {
	sorted := make([]Category, len(cats))
	copy(sorted, cats)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	mapping := make(CategoryMap, len(sorted))
	out := make([]Category, len(sorted))
	for i, c := range sorted {
		mapping[c.ID] = i + 1
		out[i] = Category{ID: i + 1, Name: c.Name, Supercategory: c.Supercategory}
	}
	return out, mapping
}

// ConvertStats reports what Convert kept
type ConvertStats struct {
	Images      int
	Annotations int
	Skipped     int
	Categories  CategoryMap
}

// Convert rewrites image file names to server paths and remaps category ids.
// When loaded is non-nil only images whose server path is in loaded are
// kept, together with their annotations.
func Convert(d *Dataset, prefix string, loaded map[string]struct{}) (*Dataset, ConvertStats) {
	cats, mapping := RemapCategories(d.Categories)
	out := &Dataset{
		Info:       d.Info,
		Licenses:   d.Licenses,
		Categories: cats,
	}
	stats := ConvertStats{Categories: mapping}

	kept := make(map[int]struct{}, len(d.Images))
	for _, img := range d.Images {
		p := ServerPath(prefix, img.FileName)
		if loaded != nil {
			if _, ok := loaded[p]; !ok {
				stats.Skipped++
				continue
			}
		}
		img.FileName = p
		out.Images = append(out.Images, img)
		kept[img.ID] = struct{}{}
	}

	for _, ann := range d.Annotations {
		if _, ok := kept[ann.ImageID]; !ok {
			continue
		}
		ann.CategoryID = mapping.Lookup(ann.CategoryID)
		out.Annotations = append(out.Annotations, ann)
	}

	stats.Images = len(out.Images)
	stats.Annotations = len(out.Annotations)
	return out, stats
}
