package model

// Category classifies an outage announcement. The water portal distinguishes
// current vs planned stops; the electricity portal planned vs unplanned.
type Category string

const (
	CategoryCurrent   Category = "current"
	CategoryPlanned   Category = "planned"
	CategoryUnplanned Category = "unplanned"
)

// OutageRecord is the normalized representation for both utility sources.
// Start and End carry the portal's own display strings verbatim; the feeds
// emit pre-formatted Bulgarian date/time text of inconsistent shape, so no
// timestamp parsing is attempted.
type OutageRecord struct {
	Location     string
	Municipality string // electricity only
	Region       string // electricity only
	Type         string
	Description  string // water only
	Start        string
	End          string
	Category     Category
}

// DedupKey is the identity tuple used to collapse electricity announcements
// that appear under more than one municipality.
func (r OutageRecord) DedupKey() string {
	return r.Location + "\x00" + r.Start + "\x00" + r.End + "\x00" + string(r.Category)
}

// HistoryEvent is one on-this-day entry from the history API.
type HistoryEvent struct {
	Kind        string // "event", "birth" or "death"
	Year        string
	Description string
}
