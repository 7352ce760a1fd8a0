package dictionary

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind distinguishes the two disjoint entity tables.
type Kind string

const (
	KindStock    Kind = "STOCK"
	KindIndustry Kind = "INDUSTRY"
)

// Entity is one dictionary entry. Code is set for stocks only.
type Entity struct {
	Name string
	Kind Kind
	Code string
}

// Dictionary is the immutable set of known entities. It is loaded once at
// process start; a reload requires a restart.
type Dictionary struct {
	stocks     []Entity
	industries []Entity

	stockByName    map[string]Entity
	industryByName map[string]Entity
}

// New builds a dictionary from stock entries and industry labels. Blank
// names and duplicates are dropped; entries keep their canonical spelling,
// no normalization is applied.
func New(stocks []Entity, industries []string) *Dictionary {
	d := &Dictionary{
		stockByName:    map[string]Entity{},
		industryByName: map[string]Entity{},
	}
	for _, s := range stocks {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			continue
		}
		if _, ok := d.stockByName[name]; ok {
			continue
		}
		e := Entity{Name: name, Kind: KindStock, Code: strings.TrimSpace(s.Code)}
		d.stockByName[name] = e
		d.stocks = append(d.stocks, e)
	}
	for _, label := range industries {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, ok := d.industryByName[label]; ok {
			continue
		}
		e := Entity{Name: label, Kind: KindIndustry}
		d.industryByName[label] = e
		d.industries = append(d.industries, e)
	}
	return d
}

// Load reads the stock CSV (header row `name,code`) and the industry list
// (one label per line).
func Load(stocksPath, industriesPath string) (*Dictionary, error) {
	stocks, err := loadStocks(stocksPath)
	if err != nil {
		return nil, fmt.Errorf("load stocks: %w", err)
	}
	industries, err := loadIndustries(industriesPath)
	if err != nil {
		return nil, fmt.Errorf("load industries: %w", err)
	}
	return New(stocks, industries), nil
}

func (d *Dictionary) Stocks() []Entity     { return d.stocks }
func (d *Dictionary) Industries() []Entity { return d.industries }

// StockByName resolves an exact token against the stock table.
func (d *Dictionary) StockByName(name string) (Entity, bool) {
	e, ok := d.stockByName[name]
	return e, ok
}

// IndustryByName resolves an exact token against the industry table.
func (d *Dictionary) IndustryByName(label string) (Entity, bool) {
	e, ok := d.industryByName[label]
	return e, ok
}

func loadStocks(path string) ([]Entity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var (
		out    []Entity
		header = true
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			if len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
				continue
			}
		}
		if len(rec) == 0 {
			continue
		}
		e := Entity{Name: strings.TrimSpace(rec[0]), Kind: KindStock}
		if len(rec) > 1 {
			e.Code = strings.TrimSpace(rec[1])
		}
		out = append(out, e)
	}
	return out, nil
}

func loadIndustries(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(raw), "\n"), nil
}
