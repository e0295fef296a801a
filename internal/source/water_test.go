package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"walter-bot/internal/config"
	"walter-bot/internal/model"
)

const waterPageHTML = `<html><body>
<div id="infrastructureAlertsContent">
  <table class="tableWaterStopInfo">
    <tr class="trRowDefault"><td>
      <b>Местоположение:</b> ж.к. Люлин 5<br>
      <b>Тип:</b> Авария<br>
      <b>Описание:</b> Спукан водопровод<br>
      <b>Начало:</b> 01.09.2026 07:30<br>
      <b>Край:</b> 01.09.2026 18:00
    </td></tr>
    <tr class="trRowDefault"><td>
      <b>Описание:</b> служебна бележка без адрес
    </td></tr>
    <tr class="trRowDefault"><td>
      <b>Местоположение:</b> кв. Орландовци<br>
      <b>Начало:</b> 01.09.2026 10:00
    </td></tr>
  </table>
</div>
<div id="sanitaryBackupContent">
  <table class="tableWaterStopInfo">
    <tr class="trRowOther"><td>header row, not an announcement</td></tr>
    <tr class="trRowDefault"><td>
      <b>Местоположение:</b> кв. Лозенец<br>
      <b>Тип:</b> Планирано прекъсване<br>
      <b>Начало:</b> 02.09.2026 08:00<br>
      <b>Край:</b> 02.09.2026 16:00
    </td></tr>
  </table>
</div>
</body></html>`

func testWater(t *testing.T, render func(context.Context) (string, error)) *Water {
	t.Helper()
	w := NewWater(config.WaterConfig{CacheTTL: 30 * time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.render = render
	return w
}

func TestParseStops(t *testing.T) {
	w := testWater(t, nil)
	stops, err := w.parseStops(waterPageHTML)
	if err != nil {
		t.Fatal(err)
	}
	if len(stops) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(stops), stops)
	}

	first := stops[0]
	want := model.OutageRecord{
		Location:    "ж.к. Люлин 5",
		Type:        "Авария",
		Description: "Спукан водопровод",
		Start:       "01.09.2026 07:30",
		End:         "01.09.2026 18:00",
		Category:    model.CategoryCurrent,
	}
	if first != want {
		t.Fatalf("first record mismatch:\n got %+v\nwant %+v", first, want)
	}

	// Description-only row is dropped; the partial row gets fallbacks.
	partial := stops[1]
	if partial.Location != "кв. Орландовци" {
		t.Fatalf("noise row not dropped, got %+v", partial)
	}
	if partial.Type != "Unknown" || partial.End != "Time not specified" {
		t.Fatalf("fallbacks not applied: %+v", partial)
	}
	if partial.Category != model.CategoryCurrent {
		t.Fatalf("section category not applied: %+v", partial)
	}

	planned := stops[2]
	if planned.Location != "кв. Лозенец" || planned.Category != model.CategoryPlanned {
		t.Fatalf("planned section record wrong: %+v", planned)
	}
}

func TestParseStopsToleratesMissingSections(t *testing.T) {
	w := testWater(t, nil)
	for name, markup := range map[string]string{
		"no sections":  `<html><body><p>maintenance page</p></body></html>`,
		"empty table":  `<div id="infrastructureAlertsContent"><table class="tableWaterStopInfo"></table></div>`,
		"no table":     `<div id="infrastructureAlertsContent"><p>Няма въведени аварии</p></div>`,
		"cell-less tr": `<div id="sanitaryBackupContent"><table class="tableWaterStopInfo"><tr class="trRowDefault"></tr></table></div>`,
	} {
		stops, err := w.parseStops(markup)
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if len(stops) != 0 {
			t.Errorf("%s: expected no records, got %v", name, stops)
		}
	}
}

func TestParseWaterRowFallbacks(t *testing.T) {
	text := "Местоположение: ул. Врабча 1\nНачало: 08:00"
	rec, ok := parseWaterRow(text, model.CategoryCurrent)
	if !ok {
		t.Fatal("row with location and start must be kept")
	}
	if rec.Type != "Unknown" {
		t.Errorf("Type fallback: got %q", rec.Type)
	}
	if rec.Description != "" {
		t.Errorf("missing description must stay empty, got %q", rec.Description)
	}
	if rec.End != "Time not specified" {
		t.Errorf("End fallback: got %q", rec.End)
	}

	if _, ok := parseWaterRow("Описание: only noise", model.CategoryCurrent); ok {
		t.Error("row without location, start and end must be dropped")
	}
	if rec, ok := parseWaterRow("Начало: 09:00", model.CategoryCurrent); !ok {
		t.Error("row with only a start time must be kept")
	} else if rec.Location != "Location not specified" {
		t.Errorf("Location fallback: got %q", rec.Location)
	}
}

func TestCellTextPreservesLineBreaks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<td>  <b>Местоположение:</b> <span>кв. Гео Милев</span> <br> <b>Тип:</b> Авария </td>`))
	if err != nil {
		t.Fatal(err)
	}
	got := cellText(doc.Find("td"))
	want := "Местоположение:\nкв. Гео Милев\nТип:\nАвария"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWaterGetStopsCachesSuccess(t *testing.T) {
	calls := 0
	w := testWater(t, func(context.Context) (string, error) {
		calls++
		return waterPageHTML, nil
	})

	first := w.GetStops(context.Background())
	if len(first) != 3 {
		t.Fatalf("unexpected first fetch: %v", first)
	}

	// Poison the renderer; a fresh cache must still answer.
	w.render = func(context.Context) (string, error) {
		return "", errors.New("browser crashed")
	}
	second := w.GetStops(context.Background())
	if len(second) != 3 {
		t.Fatalf("cache miss: %v", second)
	}
	if calls != 1 {
		t.Fatalf("expected a single render, got %d", calls)
	}
}

func TestWaterGetStopsFailureDoesNotCache(t *testing.T) {
	fail := true
	w := testWater(t, func(context.Context) (string, error) {
		if fail {
			return "", errors.New("timeout waiting for page")
		}
		return waterPageHTML, nil
	})

	if stops := w.GetStops(context.Background()); stops != nil {
		t.Fatalf("failed render must yield nil, got %v", stops)
	}

	fail = false
	if stops := w.GetStops(context.Background()); len(stops) != 3 {
		t.Fatalf("retry after failure did not fetch: %v", stops)
	}
}

func TestWaterGetStopsEmptyPageIsCached(t *testing.T) {
	calls := 0
	w := testWater(t, func(context.Context) (string, error) {
		calls++
		return `<div id="infrastructureAlertsContent"></div><div id="sanitaryBackupContent"></div>`, nil
	})

	if stops := w.GetStops(context.Background()); len(stops) != 0 {
		t.Fatalf("expected empty, got %v", stops)
	}
	if stops := w.GetStops(context.Background()); len(stops) != 0 {
		t.Fatalf("expected empty, got %v", stops)
	}
	if calls != 1 {
		t.Fatalf("empty success must be cached, got %d renders", calls)
	}
}
