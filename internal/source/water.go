package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"walter-bot/internal/cache"
	"walter-bot/internal/config"
	"walter-bot/internal/metrics"
	"walter-bot/internal/model"
	"walter-bot/internal/util"
)

// Field labels as they appear in the rendered announcement cells.
const (
	labelLocation    = "Местоположение:"
	labelType        = "Тип:"
	labelDescription = "Описание:"
	labelStart       = "Начало:"
	labelEnd         = "Край:"
)

var waterLabels = []string{labelLocation, labelType, labelDescription, labelStart, labelEnd}

// Per-field fallbacks. Deliberately not a shared sentinel: the formatter
// renders them as-is and an empty description is simply omitted.
const (
	fallbackLocation = "Location not specified"
	fallbackType     = "Unknown"
	fallbackTime     = "Time not specified"
)

type waterSection struct {
	id       string
	name     string
	category model.Category
}

var waterSections = []waterSection{
	{id: "infrastructureAlertsContent", name: "current stops", category: model.CategoryCurrent},
	{id: "sanitaryBackupContent", name: "planned stops", category: model.CategoryPlanned},
}

// Water fetches stop announcements from the Sofia Water info center. The page
// is JavaScript-rendered, so a headless browser session loads it, waits out
// the splash screen, expands the planned-stops accordion and captures the
// resulting markup for parsing.
type Water struct {
	cfg   config.WaterConfig
	log   *slog.Logger
	cache *cache.Cache[[]model.OutageRecord]

	// render captures the fully rendered page markup. Swappable in tests so
	// parse and cache behavior are exercised without a browser.
	render func(ctx context.Context) (string, error)
}

func NewWater(cfg config.WaterConfig, log *slog.Logger) *Water {
	w := &Water{
		cfg:   cfg,
		log:   log.With("source", "water"),
		cache: cache.New[[]model.OutageRecord](cfg.CacheTTL),
	}
	w.render = w.renderPage
	return w
}

func (w *Water) Name() string { return "water" }

// GetStops returns current announcements, served from cache when fresh. Any
// failure in the browser or parse sequence leaves the cache untouched.
func (w *Water) GetStops(ctx context.Context) []model.OutageRecord {
	if v, ok := w.cache.Get(); ok {
		w.log.Info("returning cached water stops", "stops", len(v))
		metrics.FetchTotal.WithLabelValues(w.Name(), "cached").Inc()
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, util.DefaultDuration(w.cfg.FetchTimeout, 60*time.Second))
	defer cancel()

	markup, err := w.render(ctx)
	if err != nil {
		w.log.Error("water page render failed", "error", err)
		metrics.FetchTotal.WithLabelValues(w.Name(), "error").Inc()
		return nil
	}

	stops, err := w.parseStops(markup)
	if err != nil {
		w.log.Error("water page parse failed", "error", err)
		metrics.FetchTotal.WithLabelValues(w.Name(), "error").Inc()
		return nil
	}

	w.cache.Put(stops)
	metrics.MarkSuccess(w.Name(), len(stops))
	w.log.Info("fetched water stops", "stops", len(stops))
	return stops
}

// renderPage drives the headless browser session. The browser context is torn
// down on every exit path via the deferred cancels.
func (w *Water) renderPage(ctx context.Context) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	settle := util.DefaultDuration(w.cfg.SettleDelay, 2*time.Second)

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(w.cfg.URL),
		chromedp.Sleep(settle),
	); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}

	// The splash overlay can outlive the load event. Give it a bounded window
	// and carry on either way; it may already be gone.
	waitCtx, cancelWait := context.WithTimeout(browserCtx, util.DefaultDuration(w.cfg.OverlayTimeout, 10*time.Second))
	if err := chromedp.Run(waitCtx,
		chromedp.WaitNotVisible("#divSplashScreenContainer", chromedp.ByQuery),
	); err != nil {
		w.log.Warn("splash screen wait timed out, continuing", "error", err)
	}
	cancelWait()

	// Planned stops live behind a collapsed accordion.
	const expandJS = `(() => {
		const el = document.getElementById('divAccordianImagesanitaryBackup');
		if (el) { el.click(); return true; }
		return false;
	})()`
	var expanded bool
	if err := chromedp.Run(browserCtx,
		chromedp.Evaluate(expandJS, &expanded),
		chromedp.Sleep(settle),
	); err != nil {
		w.log.Warn("could not expand planned stops accordion", "error", err)
	} else if !expanded {
		w.log.Warn("planned stops accordion not found")
	}

	var markup string
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("capture page: %w", err)
	}
	return markup, nil
}

// parseStops walks both announcement sections of the rendered markup. A
// missing section or table is normal (no announcements of that kind), not an
// error.
func (w *Water) parseStops(markup string) ([]model.OutageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var stops []model.OutageRecord
	for _, sec := range waterSections {
		div := doc.Find("div#" + sec.id)
		if div.Length() == 0 {
			w.log.Warn("section missing from page", "section", sec.id)
			continue
		}
		table := div.Find("table.tableWaterStopInfo").First()
		if table.Length() == 0 {
			w.log.Info("no announcements table", "section", sec.name)
			continue
		}

		table.Find("tr.trRowDefault").Each(func(_ int, row *goquery.Selection) {
			cell := row.Find("td").First()
			if cell.Length() == 0 {
				return
			}
			if rec, ok := parseWaterRow(cellText(cell), sec.category); ok {
				stops = append(stops, rec)
			}
		})
	}
	return stops, nil
}

// parseWaterRow extracts the five labelled fields from one cell's text. A row
// with neither location nor start nor end is dropped as noise.
func parseWaterRow(text string, cat model.Category) (model.OutageRecord, bool) {
	location, hasLoc := ExtractField(text, labelLocation, others(labelLocation))
	stopType, _ := ExtractField(text, labelType, others(labelType))
	description, _ := ExtractField(text, labelDescription, others(labelDescription))
	start, hasStart := ExtractField(text, labelStart, others(labelStart))
	end, hasEnd := ExtractField(text, labelEnd, others(labelEnd))

	if !hasLoc && !hasStart && !hasEnd {
		return model.OutageRecord{}, false
	}

	if !hasLoc {
		location = fallbackLocation
	}
	if stopType == "" {
		stopType = fallbackType
	}
	if !hasStart {
		start = fallbackTime
	}
	if !hasEnd {
		end = fallbackTime
	}

	return model.OutageRecord{
		Location:    location,
		Type:        stopType,
		Description: description,
		Start:       start,
		End:         end,
		Category:    cat,
	}, true
}

// others returns the four labels that terminate the value of label.
func others(label string) []string {
	out := make([]string, 0, len(waterLabels)-1)
	for _, l := range waterLabels {
		if l != label {
			out = append(out, l)
		}
	}
	return out
}

// cellText flattens a cell into text with one fragment per line, preserving
// the markup's line breaks as field separators the way the labels expect.
func cellText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, "\n")
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
