package routes

import (
	"errors"
	"testing"
	"time"

	"fleet-tracking-system/fixtures"
	"fleet-tracking-system/models"
)

func testCatalog() *Catalog {
	return NewCatalog(fixtures.Default(time.Now()).Routes)
}

func names(rs []models.Route) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Name)
	}
	return out
}

func TestCatalogSearch(t *testing.T) {
	c := testCatalog()
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Downtown Express", "University Line"}},
		{"express", []string{"Downtown Express"}},
		{"LINE", []string{"University Line"}},
		{"n", []string{"Downtown Express", "University Line"}},
		{"airport", nil},
		{" downtown", nil},
		{" express", []string{"Downtown Express"}},
	}
	for _, tt := range tests {
		got := names(c.Search(tt.query))
		if len(got) != len(tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			}
		}
	}
}

func TestCatalogGet(t *testing.T) {
	c := testCatalog()
	r, err := c.Get("route-2")
	if err != nil || r.Name != "University Line" || len(r.Stops) != 3 {
		t.Errorf("Get(route-2) = %+v, %v", r, err)
	}
	if _, err := c.Get("route-9"); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("Get(route-9) err = %v", err)
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	routes := fixtures.Default(time.Now()).Routes
	c := NewCatalog(routes)
	routes[0].Stops[0].Name = "changed"
	all := c.All()
	all[0].Name = "changed"

	r, _ := c.Get("route-1")
	if r.Name != "Downtown Express" || r.Stops[0].Name != "Central Station" {
		t.Errorf("catalog changed through caller slices: %+v", r)
	}
}

func TestFilterPanel(t *testing.T) {
	p := NewFilterPanel(testCatalog())

	if _, ok := p.Selected(); ok {
		t.Fatal("new panel should show all routes")
	}
	p.SetQuery("univ")
	if got := names(p.Visible()); len(got) != 1 || got[0] != "University Line" {
		t.Errorf("Visible = %v", got)
	}

	id, err := p.Select("route-2")
	if err != nil || id != "route-2" {
		t.Fatalf("Select = %q, %v", id, err)
	}
	if r, ok := p.SelectedRoute(); !ok || r.ID != "route-2" {
		t.Errorf("SelectedRoute = %+v, %v", r, ok)
	}

	if _, err := p.Select("route-9"); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("Select(route-9) err = %v", err)
	}
	if id, _ := p.Selected(); id != "route-2" {
		t.Errorf("failed select changed selection to %q", id)
	}

	p.Clear()
	if _, ok := p.Selected(); ok {
		t.Error("Clear should reset to all routes")
	}
	if p.Query() != "univ" {
		t.Error("Clear should keep the query")
	}
}

type fixedEstimator time.Duration

func (f fixedEstimator) NextArrival(models.Route, []models.Vehicle) (time.Duration, bool) {
	return time.Duration(f), true
}

func TestSummaries(t *testing.T) {
	f := fixtures.Default(time.Now())
	got := Summaries(f.Routes, f.Vehicles, fixedEstimator(150*time.Second))
	if len(got) != 2 {
		t.Fatalf("summaries = %+v", got)
	}
	if got[0].ActiveVehicles != 2 || got[0].NextArrival != "3 min" || got[0].Frequency != "5-10 min" {
		t.Errorf("route-1 = %+v", got[0])
	}
	// route-2 only has offline and maintenance buses.
	if got[1].ActiveVehicles != 0 || got[1].NextArrival != "" {
		t.Errorf("route-2 = %+v", got[1])
	}
}

func TestFormatETA(t *testing.T) {
	tests := map[time.Duration]string{
		20 * time.Second: "Due",
		time.Minute:      "1 min",
		61 * time.Second: "2 min",
		10 * time.Minute: "10 min",
	}
	for d, want := range tests {
		if got := FormatETA(d); got != want {
			t.Errorf("FormatETA(%v) = %q, want %q", d, got, want)
		}
	}
}
