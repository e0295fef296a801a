package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"walter-bot/internal/config"
	"walter-bot/internal/model"
)

const listPageHTML = `<html><body><ul>
<li onclick="show_obstina('SOF43','SOF')"><i class="ico"></i>община Столична</li>
<li onclick="show_obstina('SOF46','SOF')">Община Банкя</li>
<li onclick="show_obstina('PER01','PER')">община Перник</li>
<li onclick="toggle_menu()">not a municipality</li>
<li>plain item</li>
</ul></body></html>`

func TestParseMunicipalities(t *testing.T) {
	munis, err := parseMunicipalities(listPageHTML, "SOF")
	if err != nil {
		t.Fatal(err)
	}
	if len(munis) != 2 {
		t.Fatalf("expected 2 SOF municipalities, got %d: %v", len(munis), munis)
	}
	if munis[0].id != "SOF43" || munis[0].name != "Столична" {
		t.Fatalf("label prefix not stripped: %+v", munis[0])
	}
	if munis[1].id != "SOF46" || munis[1].name != "Банкя" {
		t.Fatalf("case-insensitive prefix not stripped: %+v", munis[1])
	}
	if munis[0].region != "София-град" {
		t.Fatalf("region name not mapped: %q", munis[0].region)
	}
}

func TestParseMunicipalitiesFiltersRegion(t *testing.T) {
	munis, err := parseMunicipalities(listPageHTML, "PER")
	if err != nil {
		t.Fatal(err)
	}
	if len(munis) != 1 || munis[0].id != "PER01" {
		t.Fatalf("region filter broken: %v", munis)
	}
}

func TestParseDetails(t *testing.T) {
	m := municipality{id: "SOF43", name: "Столична", region: "София-град"}

	body := "\uFEFF" + `{
		"cnt": 3,
		"17": {"typedist": "планирано прекъсване", "city_name": "кв. Драгалевци", "begin_event": "03.11 08:00", "end_event": "03.11 16:00"},
		"18": {"typedist": "авария", "cities": "с. Бистрица", "begin_event": "03.11 09:30"},
		"19": "not an object",
		"20": {"typedist": ""}
	}`

	stops, err := parseDetails(body, m)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(stops), stops)
	}

	planned := stops[0]
	if planned.Category != model.CategoryPlanned {
		t.Fatalf("typedist containing планиран must classify planned, got %s", planned.Category)
	}
	if planned.Location != "кв. Драгалевци" || planned.Type != "Планирано прекъсване" {
		t.Fatalf("unexpected planned record: %+v", planned)
	}

	unplanned := stops[1]
	if unplanned.Category != model.CategoryUnplanned {
		t.Fatalf("expected unplanned, got %s", unplanned.Category)
	}
	if unplanned.Location != "с. Бистрица" {
		t.Fatalf("cities fallback not used: %q", unplanned.Location)
	}
	if unplanned.End != "Не е указано" {
		t.Fatalf("missing end must default, got %q", unplanned.End)
	}

	empty := stops[2]
	if empty.Location != "Столична" {
		t.Fatalf("municipality name fallback not used: %q", empty.Location)
	}
	if empty.Type != "Неизвестно" {
		t.Fatalf("empty typedist must default, got %q", empty.Type)
	}
	if empty.Municipality != "Столична" || empty.Region != "София-град" {
		t.Fatalf("municipality context missing: %+v", empty)
	}
}

func TestParseDetailsEmptyBodies(t *testing.T) {
	m := municipality{id: "SOF43", name: "Столична"}
	for _, body := range []string{"", "[]", "{}", "\uFEFF{}", "  "} {
		stops, err := parseDetails(body, m)
		if err != nil {
			t.Fatalf("body %q: %v", body, err)
		}
		if len(stops) != 0 {
			t.Fatalf("body %q: expected no records, got %v", body, stops)
		}
	}
}

func TestParseDetailsMalformed(t *testing.T) {
	if _, err := parseDetails("<html>error page</html>", municipality{}); err == nil {
		t.Fatal("expected decode error for non-JSON body")
	}
}

func TestDedupKeepsFirstSeen(t *testing.T) {
	a := model.OutageRecord{Location: "кв. Драгалевци", Start: "08:00", End: "16:00", Category: model.CategoryPlanned, Municipality: "Столична"}
	b := a
	b.Municipality = "Витоша" // same identity tuple, different municipality
	c := model.OutageRecord{Location: "с. Бистрица", Start: "09:00", End: "12:00", Category: model.CategoryUnplanned}

	out := dedup([]model.OutageRecord{a, c, b})
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	if out[0].Municipality != "Столична" {
		t.Fatal("first occurrence must win")
	}
	if out[1].Location != "с. Бистрица" {
		t.Fatal("order not preserved")
	}
}

func testElectricity(t *testing.T, baseURL string) *Electricity {
	t.Helper()
	return NewElectricity(config.ElectricityConfig{
		BaseURL:    baseURL,
		RegionCode: "SOF",
		CacheTTL:   30 * time.Minute,
		MaxRetries: 1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetStopsCachesAndSurvivesNetworkLoss(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<li onclick="show_obstina('SOF43','SOF')">община Столична</li>`)
			return
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("gm_obstina") != "SOF43" {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"1": {"typedist": "авария", "city_name": "кв. Бояна", "begin_event": "08:00", "end_event": "12:00"}}`)
	}))

	e := testElectricity(t, srv.URL)

	first := e.GetStops(context.Background())
	if len(first) != 1 || first[0].Location != "кв. Бояна" {
		t.Fatalf("unexpected first fetch: %v", first)
	}

	// Kill the network; a fresh cache must still answer.
	srv.Close()
	second := e.GetStops(context.Background())
	if len(second) != 1 || second[0] != first[0] {
		t.Fatalf("cache miss after network loss: %v", second)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests (list + detail), got %d", got)
	}
}

func TestGetStopsListFailureDoesNotCache(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<li onclick="show_obstina('SOF43','SOF')">община Столична</li>`)
			return
		}
		fmt.Fprint(w, `{"1": {"typedist": "авария", "city_name": "кв. Бояна"}}`)
	}))
	defer srv.Close()

	e := testElectricity(t, srv.URL)

	if stops := e.GetStops(context.Background()); len(stops) != 0 {
		t.Fatalf("failed fetch must return empty, got %v", stops)
	}

	// Failure must not be cached: the next call goes back to the network.
	failing.Store(false)
	stops := e.GetStops(context.Background())
	if len(stops) != 1 {
		t.Fatalf("retry after failure did not fetch: %v", stops)
	}
}

func TestGetStopsEntityFailureIsIsolated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, `<li onclick="show_obstina('SOF01','SOF')">община Банкя</li>`+
				`<li onclick="show_obstina('SOF02','SOF')">община Витоша</li>`)
			return
		}
		_ = r.ParseForm()
		if r.Form.Get("gm_obstina") == "SOF01" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"1": {"typedist": "планиран ремонт", "city_name": "кв. Симеоново", "begin_event": "08:00", "end_event": "17:00"}}`)
	}))
	defer srv.Close()

	e := testElectricity(t, srv.URL)
	stops := e.GetStops(context.Background())
	if len(stops) != 1 || stops[0].Location != "кв. Симеоново" {
		t.Fatalf("partial results expected despite entity failure, got %v", stops)
	}
}

func TestGetStopsEmptyListIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `<ul><li>nothing here</li></ul>`)
	}))
	defer srv.Close()

	e := testElectricity(t, srv.URL)
	if stops := e.GetStops(context.Background()); len(stops) != 0 {
		t.Fatalf("expected empty, got %v", stops)
	}
	if stops := e.GetStops(context.Background()); len(stops) != 0 {
		t.Fatalf("expected empty, got %v", stops)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("empty success must be cached, got %d requests", got)
	}
}
