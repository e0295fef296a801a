package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"walter-bot/internal/config"
	"walter-bot/internal/model"
	"walter-bot/internal/util"
)

// Client fetches on-this-day events from the history API. Failures degrade to
// a fixed fallback set so the daily post always has material.
type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
	now     func() time.Time
}

func New(cfg config.HistoryConfig, log *slog.Logger) *Client {
	to := util.DefaultDuration(cfg.HTTP.Timeout, 15*time.Second)
	return &Client{
		baseURL: cfg.BaseURL,
		client:  util.NewHTTPClient(to),
		log:     log.With("component", "history"),
		now:     time.Now,
	}
}

type apiEvent struct {
	Year string `json:"year"`
	Text string `json:"text"`
}

type apiResponse struct {
	Data struct {
		Events []apiEvent `json:"Events"`
		Births []apiEvent `json:"Births"`
		Deaths []apiEvent `json:"Deaths"`
	} `json:"data"`
}

// EventsForDate returns the merged events, births and deaths for month/day.
// Never fails: any error is logged and the fallback set is returned.
func (c *Client) EventsForDate(ctx context.Context, month, day int) []model.HistoryEvent {
	url := fmt.Sprintf("%s/%d/%d", c.baseURL, month, day)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.log.Error("build history request", "error", err)
		return fallbackEvents()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("fetch history events", "error", err)
		return fallbackEvents()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Error("history API status", "status", resp.StatusCode)
		return fallbackEvents()
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.log.Error("decode history response", "error", err)
		return fallbackEvents()
	}

	events := make([]model.HistoryEvent, 0,
		len(payload.Data.Events)+len(payload.Data.Births)+len(payload.Data.Deaths))
	for _, e := range payload.Data.Events {
		events = append(events, model.HistoryEvent{Kind: "event", Year: e.Year, Description: e.Text})
	}
	for _, b := range payload.Data.Births {
		events = append(events, model.HistoryEvent{Kind: "birth", Year: b.Year, Description: b.Text + " was born"})
	}
	for _, d := range payload.Data.Deaths {
		events = append(events, model.HistoryEvent{Kind: "death", Year: d.Year, Description: d.Text + " died"})
	}

	c.log.Info("fetched history events", "month", month, "day", day, "events", len(events))
	return events
}

// Keywords that make an event worth commenting on.
var interestingKeywords = []string{
	"invented", "discovered", "war", "revolution", "expedition",
	"founded", "abolished", "assassinated", "crowned", "treaty",
	"exploration", "scientific", "disaster", "miracle", "scandal",
}

// SelectBest scores events and returns the top n. Events older than fifty
// years are preferred (recent ones make poor Victorian material); when none
// qualify the full set is scored instead.
func (c *Client) SelectBest(events []model.HistoryEvent, n int) []model.HistoryEvent {
	if len(events) == 0 {
		return []model.HistoryEvent{fallbackEvent()}
	}

	cutoff := c.now().Year() - 50
	old := make([]model.HistoryEvent, 0, len(events))
	for _, e := range events {
		if y, err := strconv.Atoi(e.Year); err == nil && y < cutoff {
			old = append(old, e)
		}
	}
	if len(old) == 0 {
		old = events
	}

	type scored struct {
		score int
		ev    model.HistoryEvent
	}
	ranked := make([]scored, 0, len(old))
	for _, e := range old {
		s := 0
		desc := strings.ToLower(e.Description)
		for _, kw := range interestingKeywords {
			if strings.Contains(desc, kw) {
				s += 10
			}
		}
		if e.Kind == "event" {
			s += 5
		}
		if len(desc) > 50 {
			s += 3
		}
		ranked = append(ranked, scored{score: s, ev: e})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]model.HistoryEvent, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.ev)
	}
	if len(out) == 0 {
		out = append(out, fallbackEvent())
	}
	return out
}

// Pick chooses one of n random top candidates, for variety in single-event use.
func (c *Client) Pick(events []model.HistoryEvent) model.HistoryEvent {
	top := c.SelectBest(events, 3)
	return top[rand.Intn(len(top))]
}

func fallbackEvents() []model.HistoryEvent {
	return []model.HistoryEvent{
		{Kind: "event", Year: "1666", Description: "The Great Fire of London began in a bakery on Pudding Lane"},
		{Kind: "event", Year: "1851", Description: "The Great Exhibition opened in Hyde Park, London"},
		{Kind: "event", Year: "1837", Description: "Queen Victoria ascended to the throne"},
		{Kind: "event", Year: "1605", Description: "The Gunpowder Plot to blow up Parliament was discovered"},
		{Kind: "birth", Year: "1564", Description: "William Shakespeare was born"},
		{Kind: "event", Year: "1825", Description: "The first passenger railway opened between Stockton and Darlington"},
	}
}

func fallbackEvent() model.HistoryEvent {
	return model.HistoryEvent{
		Kind: "event",
		Year: "1843",
		Description: "Charles Dickens published \"A Christmas Carol\", forever ruining December " +
			"for those of us who prefer our spirits in bottles rather than chains",
	}
}
