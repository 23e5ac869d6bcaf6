package routes

import (
	"sync"

	"fleet-tracking-system/models"
)

// FilterPanel is the state behind the route search box: a free-text query
// over the catalog and an optional selected route. Nothing is persisted.
type FilterPanel struct {
	catalog *Catalog

	mu       sync.Mutex
	query    string
	selected string
}

func NewFilterPanel(c *Catalog) *FilterPanel {
	return &FilterPanel{catalog: c}
}

func (p *FilterPanel) SetQuery(q string) {
	p.mu.Lock()
	p.query = q
	p.mu.Unlock()
}

func (p *FilterPanel) Query() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Visible returns the routes matching the current query.
func (p *FilterPanel) Visible() []models.Route {
	return p.catalog.Search(p.Query())
}

// Select makes id the selected route and returns it. Unknown ids leave the
// selection unchanged.
func (p *FilterPanel) Select(id string) (string, error) {
	if _, err := p.catalog.Get(id); err != nil {
		return "", err
	}
	p.mu.Lock()
	p.selected = id
	p.mu.Unlock()
	return id, nil
}

// Clear goes back to showing all routes.
func (p *FilterPanel) Clear() {
	p.mu.Lock()
	p.selected = ""
	p.mu.Unlock()
}

func (p *FilterPanel) Selected() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.selected, p.selected != ""
}

// SelectedRoute returns the selected route, if any.
func (p *FilterPanel) SelectedRoute() (*models.Route, bool) {
	id, ok := p.Selected()
	if !ok {
		return nil, false
	}
	r, err := p.catalog.Get(id)
	if err != nil {
		return nil, false
	}
	return &r, true
}
