package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// sheet names seen in the exported provider spreadsheets, in lookup order
var sheetKeys = []string{"Sheet1", "Sheet 1", "Headend - City Level 10+ Hps", "2-27-25 SEM"}

// Dataset is one provider's ZIP coverage set.
type Dataset struct {
	ProviderID string
	Name       string
	City       string
	State      string
	Service    string
	Sheet      string
	zips       map[string]struct{}
}

func (d *Dataset) Has(zip string) bool {
	if d == nil {
		return false
	}
	_, ok := d.zips[zip]
	return ok
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.zips)
}

// NewDataset builds a dataset from an explicit ZIP list.
func NewDataset(providerID, name, city, state string, zips ...string) *Dataset {
	d := &Dataset{ProviderID: providerID, Name: name, City: city, State: state, zips: make(map[string]struct{}, len(zips))}
	for _, z := range zips {
		d.zips[z] = struct{}{}
	}
	return d
}

func readDataset(fsys fs.FS, file string) (*Dataset, error) {
	raw, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}

	sheet, rowsRaw := pickSheet(doc)
	if rowsRaw == nil {
		keys := make([]string, 0, len(doc))
		for k := range doc {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: no sheet found, keys %v", file, keys)
	}

	var rows []map[string]any
	dec = json.NewDecoder(bytes.NewReader(rowsRaw))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", file, err)
	}

	d := &Dataset{Sheet: sheet, zips: make(map[string]struct{}, len(rows))}
	for _, row := range rows {
		if zip, ok := normalizeZip(row["ZIP_Code"]); ok {
			d.zips[zip] = struct{}{}
		}
		if d.City == "" {
			d.City = cell(row["CITY_NAME"])
		}
		if d.State == "" {
			d.State = cell(row["ST_ABBREV"])
		}
		if d.Service == "" {
			d.Service = cell(row["SERVICE_Avail"])
		}
	}
	return d, nil
}

func pickSheet(doc map[string]json.RawMessage) (string, json.RawMessage) {
	for _, k := range sheetKeys {
		if v, ok := doc[k]; ok {
			return k, v
		}
	}
	// unknown export: take the first array-valued key, alphabetically
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := bytes.TrimSpace(doc[k])
		if len(v) > 0 && v[0] == '[' {
			return k, doc[k]
		}
	}
	return "", nil
}

// normalizeZip accepts string or numeric cells. Numeric cells lost their leading
// zeros in the spreadsheet export, so they are padded back to five digits.
func normalizeZip(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil || n < 0 || n > 99999 {
			return "", false
		}
		s = fmt.Sprintf("%05d", n)
	default:
		return "", false
	}
	if len(s) != 5 {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}

func cell(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
