package syncer

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ganarchy/GAnarchy/internal/model"
)

// EntryState is the terminal state of one entry within a run.
type EntryState string

const (
	StateApplied      EntryState = "applied"
	StateUnknown      EntryState = "unknown"
	StateFailed       EntryState = "failed"
	StateNotAttempted EntryState = "not-attempted"
)

// EntryOutcome is one line of the run report.
type EntryOutcome struct {
	Project    string     `yaml:"project"`
	URL        string     `yaml:"url"`
	Branch     string     `yaml:"branch"`
	State      EntryState `yaml:"state"`
	Head       string     `yaml:"head,omitempty"`
	Distance   int        `yaml:"distance,omitempty"`
	NewCommits int        `yaml:"new_commits,omitempty"`
	Error      string     `yaml:"error,omitempty"`
}

// Report summarizes a sync run. It is written next to the generated site
// so operators can see what each cron pass actually did.
type Report struct {
	RunID        string         `yaml:"run_id"`
	StartedAt    time.Time      `yaml:"started_at"`
	FinishedAt   time.Time      `yaml:"finished_at"`
	Elapsed      time.Duration  `yaml:"-"`
	ElapsedText  string         `yaml:"elapsed"`
	Applied      int            `yaml:"applied"`
	Unknown      int            `yaml:"unknown"`
	Failed       int            `yaml:"failed"`
	NotAttempted int            `yaml:"not_attempted"`
	Entries      []EntryOutcome `yaml:"entries"`
}

// NewReport starts an empty report with a fresh time-ordered run ID.
func NewReport(started time.Time) *Report {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &Report{RunID: id.String(), StartedAt: started}
}

func (r *Report) add(key model.EntryKey, state EntryState, status model.EntryStatus) {
	out := EntryOutcome{
		Project: string(key.Project),
		URL:     string(key.URL),
		Branch:  model.DisplayBranch(key.Branch),
		State:   state,
		Error:   status.Err,
	}
	if state == StateApplied {
		out.Head = status.Head
		out.Distance = status.Distance
		out.NewCommits = status.NewCommits
	}
	r.Entries = append(r.Entries, out)
	switch state {
	case StateApplied:
		r.Applied++
	case StateUnknown:
		r.Unknown++
	case StateFailed:
		r.Failed++
	case StateNotAttempted:
		r.NotAttempted++
	}
}

func (r *Report) finish(at time.Time) {
	r.FinishedAt = at
	r.Elapsed = at.Sub(r.StartedAt)
	r.ElapsedText = r.Elapsed.Round(time.Millisecond).String()
	sort.Slice(r.Entries, func(i, j int) bool {
		a, b := r.Entries[i], r.Entries[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Branch < b.Branch
	})
}

// Marshal renders the report as a YAML document.
func (r *Report) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
