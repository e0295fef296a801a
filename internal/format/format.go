package format

import (
	"fmt"
	"math/rand"
	"strings"

	"walter-bot/internal/model"
)

// chunkLimit is the soft per-message limit. Discord's hard cap is 2000
// characters; 1900 leaves headroom for the footer.
const chunkLimit = 1900

// section is one category group of a source's digest, rendered in order.
type section struct {
	category model.Category
	banner   string
	detail   string // fmt verb pattern for the start/end line
}

// Profile carries everything source-specific about a digest: banner text,
// section order (urgent first), location cap and the message pools.
type Profile struct {
	header        string
	sections      []section
	locationLimit int
	// entryContext returns extra inline context for the title line, or "".
	entryContext func(model.OutageRecord) string
	footers      []string
	noStops      []string
	apology      string
}

// Water renders Sofia Water stops: current before planned.
func Water() Profile {
	return Profile{
		header: "💧 **Water Supply Interruptions**\n\n_Sofia Water announces the following interruptions:_\n\n",
		sections: []section{
			{category: model.CategoryCurrent, banner: "⚡ **CURRENT STOPS**", detail: "   ⏰ %s → %s\n\n"},
			{category: model.CategoryPlanned, banner: "📋 **PLANNED STOPS**", detail: "   📅 %s → %s\n\n"},
		},
		locationLimit: 100,
		entryContext:  func(model.OutageRecord) string { return "" },
		footers: []string{
			"\n_Do fill your kettle beforehand._",
			"\n_The Victorians managed with pumps._",
			"\n_Municipal inconvenience, as scheduled._",
			"\n_Mustn't grumble._",
		},
		noStops: []string{
			"💧 **Jolly Good News!** 🎉\n\n_No water stoppages scheduled at present. The taps remain reliably operational, as nature intended. One can make tea without strategic planning for once._",
			"💧 **All Clear!** ✨\n\n_I'm delighted to report that Sofia Water is behaving itself today. No interruptions to the water supply. Carry on with your ablutions without concern._",
			"💧 **Water Status: Flowing Splendidly** 🚰\n\n_Not a single planned interruption in sight. The pipes are performing their duty admirably. How refreshingly civilised._",
			"💧 **Excellent News!** 🎊\n\n_The waterworks are in fine fettle today. No stoppages to report. One might even dare to schedule a lengthy bath without military-grade planning._",
		},
		apology: "_Apologies, couldn't fetch water stop information. Do check manually._",
	}
}

// Electricity renders ERM Zapad outages: unplanned before planned maintenance.
func Electricity() Profile {
	return Profile{
		header: "**Electricity Supply Interruptions**\n\n_ERM Zapad announces the following interruptions:_\n\n",
		sections: []section{
			{category: model.CategoryUnplanned, banner: "**CURRENT OUTAGES**", detail: "   %s - %s\n\n"},
			{category: model.CategoryPlanned, banner: "**PLANNED MAINTENANCE**", detail: "   %s - %s\n\n"},
		},
		locationLimit: 80,
		entryContext:  electricityContext,
		footers: []string{
			"\n_Do charge your devices beforehand._",
			"\n_The Victorians managed with gas lamps._",
			"\n_Modern inconvenience, as scheduled._",
			"\n_Best locate the candles._",
		},
		noStops: []string{
			"**Splendid News!**\n\n_No electricity interruptions scheduled at present. The grid hums along reliably. One can enjoy modern conveniences without strategic candlestick placement._",
			"**All Clear!**\n\n_I'm delighted to report that ERM Zapad is behaving itself today. No interruptions to the electricity supply. Your devices may charge in peace._",
			"**Power Status: Flowing Magnificently**\n\n_Not a single planned interruption in sight. The electrons are performing their duty admirably. How refreshingly civilised._",
			"**Excellent News!**\n\n_The electrical works are in fine fettle today. No outages to report. One might even dare to schedule an extended gaming session._",
		},
		apology: "_Apologies, couldn't fetch electricity outage information. Do check manually._",
	}
}

// electricityContext appends the municipality when the location text does not
// already carry it, plus the region in parens.
func electricityContext(r model.OutageRecord) string {
	var b strings.Builder
	if r.Municipality != "" && !strings.Contains(strings.ToUpper(r.Location), strings.ToUpper(r.Municipality)) {
		b.WriteString(", ")
		b.WriteString(r.Municipality)
	}
	if r.Region != "" {
		b.WriteString(" (")
		b.WriteString(r.Region)
		b.WriteString(")")
	}
	return b.String()
}

// Formatter renders outage records into length-bounded message chunks.
type Formatter struct {
	p Profile
}

func New(p Profile) *Formatter { return &Formatter{p: p} }

// Format partitions records into the profile's category sections and renders
// them as one or more chunks. First chunk carries the source header; the last
// carries a random footer. Empty input yields nil, which callers must treat
// as "send the no-stops message instead".
func (f *Formatter) Format(records []model.OutageRecord) []string {
	if len(records) == 0 {
		return nil
	}

	var chunks []string
	first := true
	for _, sec := range f.p.sections {
		var entries []string
		n := 0
		for _, r := range records {
			if r.Category != sec.category {
				continue
			}
			n++
			entries = append(entries, f.entry(sec, n, r))
		}
		if len(entries) == 0 {
			continue
		}
		f.appendSection(&chunks, sec, entries, &first)
	}
	if len(chunks) == 0 {
		return nil
	}

	chunks[len(chunks)-1] += f.p.footers[rand.Intn(len(f.p.footers))]
	return chunks
}

// entry renders the fixed two-line form: numbered title with capped location
// and optional context, then the start/end line.
func (f *Formatter) entry(sec section, n int, r model.OutageRecord) string {
	loc := truncate(r.Location, f.p.locationLimit)
	return fmt.Sprintf("**%d.** %s%s\n", n, loc, f.p.entryContext(r)) +
		fmt.Sprintf(sec.detail, r.Start, r.End)
}

// appendSection places one section's entries into chunks. When the whole
// section fits in one chunk its banner shows the entry count; otherwise the
// section is rebuilt across chunks with a per-section Part numbering. An
// entry is never split across chunks.
func (f *Formatter) appendSection(chunks *[]string, sec section, entries []string, first *bool) {
	head := ""
	if *first {
		head = f.p.header
		*first = false
	}

	size := len(head) + len(sec.banner) + 16
	for _, e := range entries {
		size += len(e)
	}
	if size <= chunkLimit {
		var b strings.Builder
		b.WriteString(head)
		fmt.Fprintf(&b, "%s (%d)\n\n", sec.banner, len(entries))
		for _, e := range entries {
			b.WriteString(e)
		}
		*chunks = append(*chunks, b.String())
		return
	}

	part := 1
	cur := head + fmt.Sprintf("%s (Part %d)\n\n", sec.banner, part)
	for _, e := range entries {
		if len(cur)+len(e) > chunkLimit {
			*chunks = append(*chunks, cur)
			part++
			cur = fmt.Sprintf("%s (Part %d)\n\n", sec.banner, part)
		}
		cur += e
	}
	*chunks = append(*chunks, cur)
}

// NoStopsMessage picks one of the fixed all-clear messages.
func (f *Formatter) NoStopsMessage() string {
	return f.p.noStops[rand.Intn(len(f.p.noStops))]
}

// ApologyMessage is the fixed text substituted when a digest cannot be
// delivered.
func (f *Formatter) ApologyMessage() string { return f.p.apology }

// truncate caps s at limit characters (not bytes; locations are Cyrillic).
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
