package telemetry

import (
	"fmt"
	"log/slog"
	"math"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkHeatSpike   BookmarkType = "heat_spike"
	BookmarkCooling     BookmarkType = "cooling"
	BookmarkSteadyState BookmarkType = "steady_state"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `json:"type" csv:"type"`
	Tick        int          `json:"tick" csv:"tick"`
	Description string       `json:"description" csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// Detection thresholds.
const (
	spikeFactor     = 1.5  // excess over rolling average
	coolingDrop     = 0.30 // fractional excess drop from recent peak
	steadyTolerance = 1e-3 // relative mean/excess change per window
	steadyWindows   = 5    // consecutive steady windows before triggering
)

// BookmarkDetector detects interesting moments in a field's history.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []FieldStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	recentExcessPeak  float64 // peak excess since the last cooling bookmark
	steadyWindowCount int     // consecutive windows with unchanged stats
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 3 {
		historySize = 3 // minimum for a rolling average
	}
	return &BookmarkDetector{
		history:     make([]FieldStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats FieldStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		// Heat spike: excess > 1.5x rolling average
		if b := bd.checkHeatSpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Cooling: excess dropped >30% from recent peak
		if b := bd.checkCooling(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}

		// Steady state: mean and excess unchanged over several windows
		if b := bd.checkSteadyState(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	if math.Abs(stats.Excess) > bd.recentExcessPeak {
		bd.recentExcessPeak = math.Abs(stats.Excess)
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats FieldStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []FieldStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// latest returns the most recently added window.
func (bd *BookmarkDetector) latest() FieldStats {
	idx := bd.historyIdx - 1
	if idx < 0 {
		idx = bd.historySize - 1
	}
	return bd.history[idx]
}

func (bd *BookmarkDetector) checkHeatSpike(stats FieldStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 {
		return nil
	}

	var total float64
	for _, h := range history {
		total += math.Abs(h.Excess)
	}
	avg := total / float64(len(history))
	if avg == 0 {
		return nil
	}

	cur := math.Abs(stats.Excess)
	if cur > avg*spikeFactor {
		return &Bookmark{
			Type:        BookmarkHeatSpike,
			Tick:        stats.Tick,
			Description: fmt.Sprintf("Excess heat %.2f is %.1fx average (%.2f)", cur, cur/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkCooling(stats FieldStats) *Bookmark {
	if bd.recentExcessPeak == 0 {
		return nil
	}

	cur := math.Abs(stats.Excess)
	drop := 1.0 - cur/bd.recentExcessPeak
	if drop > coolingDrop {
		// Reset the peak after triggering
		oldPeak := bd.recentExcessPeak
		bd.recentExcessPeak = cur

		return &Bookmark{
			Type:        BookmarkCooling,
			Tick:        stats.Tick,
			Description: fmt.Sprintf("Excess heat fell %.0f%% from peak %.2f to %.2f", drop*100, oldPeak, cur),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkSteadyState(stats FieldStats) *Bookmark {
	prev := bd.latest()
	if relChange(prev.Mean, stats.Mean) < steadyTolerance &&
		relChange(prev.Excess, stats.Excess) < steadyTolerance {
		bd.steadyWindowCount++
	} else {
		bd.steadyWindowCount = 0
	}

	if bd.steadyWindowCount == steadyWindows { // trigger exactly once per steady run
		return &Bookmark{
			Type:        BookmarkSteadyState,
			Tick:        stats.Tick,
			Description: fmt.Sprintf("Field steady at mean %.3f, excess %.2f over %d windows", stats.Mean, stats.Excess, steadyWindows),
		}
	}
	return nil
}

// relChange is |b-a| relative to the larger magnitude; 0 when both are 0.
func relChange(a, b float64) float64 {
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return 0
	}
	return math.Abs(b-a) / scale
}
