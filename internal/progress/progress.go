package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is the run state of the scrape job
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Snapshot is a point-in-time copy of the run state
type Snapshot struct {
	Status         Status        `json:"status"`
	CurrentWebsite string        `json:"current_website"`
	PagesFetched   int           `json:"pages_fetched"`
	ProductsSeen   int           `json:"products_seen"`
	DealsFound     int           `json:"deals_found"`
	Elapsed        time.Duration `json:"elapsed"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// Tracker holds the process-wide run state. The orchestrator is the
// single writer; a concurrent reader may request cancellation, which
// the orchestrator observes at its next cooperative checkpoint.
type Tracker struct {
	mu              sync.Mutex
	status          Status
	currentWebsite  string
	pagesFetched    int
	productsSeen    int
	dealsFound      int
	startTime       time.Time
	endTime         time.Time
	errorMessage    string
	cancelRequested bool
}

// NewTracker creates an idle tracker
func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Start resets all counters and marks the run as running
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusRunning
	t.currentWebsite = ""
	t.pagesFetched = 0
	t.productsSeen = 0
	t.dealsFound = 0
	t.startTime = time.Now()
	t.endTime = time.Time{}
	t.errorMessage = ""
	t.cancelRequested = false
}

// SetWebsite records which website is currently being processed
func (t *Tracker) SetWebsite(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentWebsite = name
}

// AddPagesFetched increments the fetched pages counter
func (t *Tracker) AddPagesFetched(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pagesFetched += n
}

// AddProductsSeen increments the unique products counter
func (t *Tracker) AddProductsSeen(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.productsSeen += n
}

// AddDealsFound increments the emitted deals counter
func (t *Tracker) AddDealsFound(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dealsFound += n
}

// RequestCancel asks the orchestrator to stop at its next checkpoint
func (t *Tracker) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

// CancelRequested reports whether cancellation has been asked for
func (t *Tracker) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested
}

// MarkDone freezes the run as done, unless cancellation already won
func (t *Tracker) MarkDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusCancelled {
		return
	}
	t.status = StatusDone
	t.endTime = time.Now()
}

// MarkError freezes the run with an error message
func (t *Tracker) MarkError(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusError
	t.errorMessage = message
	t.endTime = time.Now()
}

// MarkCancelled freezes the run as cancelled
func (t *Tracker) MarkCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusCancelled
	t.endTime = time.Now()
}

// Running reports whether a job currently holds the tracker
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == StatusRunning
}

// GetSnapshot returns a copy of current run state
func (t *Tracker) GetSnapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Duration(0)
	if !t.startTime.IsZero() {
		end := t.endTime
		if end.IsZero() {
			end = time.Now()
		}
		elapsed = end.Sub(t.startTime)
	}

	return Snapshot{
		Status:         t.status,
		CurrentWebsite: t.currentWebsite,
		PagesFetched:   t.pagesFetched,
		ProductsSeen:   t.productsSeen,
		DealsFound:     t.dealsFound,
		Elapsed:        elapsed,
		ErrorMessage:   t.errorMessage,
	}
}

// LogProgress prints current counters for the periodic progress log
func (t *Tracker) LogProgress() string {
	s := t.GetSnapshot()
	return fmt.Sprintf("Status: %s | Site: %s | Pages: %d | Products: %d | Deals: %d | Elapsed: %s",
		s.Status, s.CurrentWebsite, s.PagesFetched, s.ProductsSeen, s.DealsFound, s.Elapsed.Round(time.Second))
}
