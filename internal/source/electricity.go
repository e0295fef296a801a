package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"walter-bot/internal/cache"
	"walter-bot/internal/config"
	"walter-bot/internal/metrics"
	"walter-bot/internal/model"
	"walter-bot/internal/util"
)

// The list page embeds one li per affected municipality with an inline
// click handler like show_obstina('SOF43','SOF').
var obstinaPattern = regexp.MustCompile(`show_obstina\('([A-Z]+\d+)','([A-Z]+)'\)`)

var muniLabelPrefix = regexp.MustCompile(`(?i)^община\s*`)

// ERM Zapad region codes as shown on the portal.
var regionNames = map[string]string{
	"SOF": "София-град",
	"SFO": "Софийска област",
	"PER": "Перник",
	"LOV": "Ловеч",
	"VID": "Видин",
	"KNL": "Кюстендил",
	"BLG": "Благоевград",
	"PVN": "Плевен",
	"VRC": "Враца",
	"MON": "Монтана",
}

const (
	unspecifiedTime = "Не е указано"
	unknownType     = "Неизвестно"

	// Ceiling on a full fetch sequence; the per-municipality round-trips are
	// sequential and otherwise unbounded.
	electricityFetchCeiling = 60 * time.Second
)

type municipality struct {
	id     string // e.g. SOF43
	name   string
	region string
}

// Electricity fetches outage announcements from the ERM Zapad portal: one GET
// for the list of affected municipalities, then one form POST per
// municipality for its outage details.
type Electricity struct {
	cfg    config.ElectricityConfig
	client *http.Client
	log    *slog.Logger
	cache  *cache.Cache[[]model.OutageRecord]
}

func NewElectricity(cfg config.ElectricityConfig, log *slog.Logger) *Electricity {
	to := util.DefaultDuration(cfg.HTTP.Timeout, 15*time.Second)
	return &Electricity{
		cfg:    cfg,
		client: util.NewHTTPClient(to),
		log:    log.With("source", "electricity"),
		cache:  cache.New[[]model.OutageRecord](cfg.CacheTTL),
	}
}

func (e *Electricity) Name() string { return "electricity" }

// GetStops returns current announcements, served from cache when fresh.
// A failure before any municipality work leaves the cache untouched so the
// next call retries immediately.
func (e *Electricity) GetStops(ctx context.Context) []model.OutageRecord {
	if v, ok := e.cache.Get(); ok {
		e.log.Info("returning cached electricity stops", "stops", len(v))
		metrics.FetchTotal.WithLabelValues(e.Name(), "cached").Inc()
		return v
	}

	ctx, cancel := context.WithTimeout(ctx, electricityFetchCeiling)
	defer cancel()

	stops, err := e.fetch(ctx)
	if err != nil {
		e.log.Error("electricity fetch failed", "error", err)
		metrics.FetchTotal.WithLabelValues(e.Name(), "error").Inc()
		return nil
	}

	e.cache.Put(stops)
	metrics.MarkSuccess(e.Name(), len(stops))
	e.log.Info("fetched electricity stops", "stops", len(stops))
	return stops
}

func (e *Electricity) fetch(ctx context.Context) ([]model.OutageRecord, error) {
	munis, err := e.fetchMunicipalities(ctx)
	if err != nil {
		return nil, err
	}
	if len(munis) == 0 {
		// Genuinely clear: cacheable empty result.
		return []model.OutageRecord{}, nil
	}
	e.log.Info("found affected municipalities", "count", len(munis))

	// Sequential on purpose: one municipality's failure is dropped without
	// disturbing the rest, and first-seen dedup order stays deterministic.
	var stops []model.OutageRecord
	for _, m := range munis {
		details, err := e.fetchDetails(ctx, m)
		if err != nil {
			e.log.Error("municipality fetch failed", "municipality", m.id, "error", err)
			metrics.EntityErrors.WithLabelValues(e.Name()).Inc()
			continue
		}
		stops = append(stops, details...)
	}

	return dedup(stops), nil
}

// fetchMunicipalities GETs the list page and extracts the municipalities of
// the configured region.
func (e *Electricity) fetchMunicipalities(ctx context.Context) ([]municipality, error) {
	var body []byte
	attempts := e.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	err := util.Retry(ctx, attempts,
		util.DefaultDuration(e.cfg.Backoff, 500*time.Millisecond),
		util.DefaultDuration(e.cfg.MaxBackoff, 5*time.Second),
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL, nil)
			if err != nil {
				return err
			}
			if ua := e.cfg.HTTP.UserAgent; ua != "" {
				req.Header.Set("User-Agent", ua)
			}
			resp, err := e.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("list page status %d", resp.StatusCode)
			}
			body, err = io.ReadAll(resp.Body)
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("fetch list page: %w", err)
	}
	return parseMunicipalities(string(body), e.cfg.RegionCode)
}

func parseMunicipalities(html, regionCode string) ([]municipality, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse list page: %w", err)
	}

	var munis []municipality
	doc.Find("li[onclick]").Each(func(_ int, li *goquery.Selection) {
		onclick, _ := li.Attr("onclick")
		m := obstinaPattern.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		id, code := m[1], m[2]
		if code != regionCode {
			return
		}
		name := muniLabelPrefix.ReplaceAllString(strings.TrimSpace(li.Text()), "")
		region := regionNames[code]
		if region == "" {
			region = code
		}
		munis = append(munis, municipality{id: id, name: strings.TrimSpace(name), region: region})
	})
	return munis, nil
}

// fetchDetails POSTs the draw action for one municipality and decodes its
// outage objects.
func (e *Electricity) fetchDetails(ctx context.Context, m municipality) ([]model.OutageRecord, error) {
	form := url.Values{
		"action":     {"draw"},
		"gm_obstina": {m.id},
		"lat":        {"0"},
		"lon":        {"0"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if ua := e.cfg.HTTP.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("details status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseDetails(string(body), m)
}

// outageDetail is one value of the details response. The response maps
// arbitrary keys to these objects, plus a "cnt" bookkeeping entry that is not
// an outage.
type outageDetail struct {
	TypeDist   string `json:"typedist"`
	CityName   string `json:"city_name"`
	Cities     string `json:"cities"`
	BeginEvent string `json:"begin_event"`
	EndEvent   string `json:"end_event"`
}

func parseDetails(body string, m municipality) ([]model.OutageRecord, error) {
	// The portal occasionally prepends a BOM.
	body = strings.TrimPrefix(strings.TrimSpace(body), "\uFEFF")
	if body == "" || body == "[]" || body == "{}" {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}

	// Map iteration order is random; keep output stable.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		if k == "cnt" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var stops []model.OutageRecord
	for _, k := range keys {
		var d outageDetail
		if err := json.Unmarshal(raw[k], &d); err != nil {
			// Non-object padding values are expected; skip them.
			continue
		}

		typeDist := strings.ToLower(strings.TrimSpace(d.TypeDist))
		cat := model.CategoryUnplanned
		if strings.Contains(typeDist, "планиран") {
			cat = model.CategoryPlanned
		}

		location := firstNonEmpty(d.CityName, d.Cities, m.name)
		stops = append(stops, model.OutageRecord{
			Location:     location,
			Municipality: m.name,
			Region:       m.region,
			Type:         capitalizeOr(typeDist, unknownType),
			Start:        firstNonEmpty(d.BeginEvent, unspecifiedTime),
			End:          firstNonEmpty(d.EndEvent, unspecifiedTime),
			Category:     cat,
		})
	}
	return stops, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func capitalizeOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
