package exerciselog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/exercisetracker/internal/tracker/users"
)

// Duration is coerced from a JSON number or a numeric string, truncated
// toward zero. A non-numeric duration is rejected at write time and can
// never reach the store.
type Duration int

func (d *Duration) UnmarshalJSON(data []byte) error {
	value, err := parseDuration(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*d = Duration(value)
	return nil
}

func parseDuration(durationStr string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(durationStr), 64)
	if err != nil {
		return 0, fmt.Errorf("duration is not a number: %q", durationStr)
	}
	return int(f), nil
}

// NewExerciseRequest is the write-side input: description and duration
// required, date optional.
type NewExerciseRequest struct {
	Description string    `json:"description"`
	Duration    *Duration `json:"duration"`
	Date        string    `json:"date"`
}

func (req NewExerciseRequest) Validate() error {
	if req.Description == "" {
		return errors.New("description empty")
	}
	if req.Duration == nil {
		return errors.New("duration missing")
	}
	return nil
}

// Normalize applies the write-time defaulting rules: a missing date
// becomes the creation instant.
func (req NewExerciseRequest) Normalize(now time.Time) users.Exercise {
	date := req.Date
	if date == "" {
		date = now.UTC().Format(time.RFC3339)
	}
	return users.Exercise{
		Description: req.Description,
		Duration:    int(*req.Duration),
		Date:        date,
	}
}

type QueryParams struct {
	From  string
	To    string
	Limit *int
}

type LogEntry struct {
	Description string `json:"description"`
	Duration    int    `json:"duration"`
	Date        string `json:"date"`
}

type QueryResponse struct {
	UserID   string     `json:"_id"`
	Username string     `json:"username"`
	Count    int        `json:"count"`
	Log      []LogEntry `json:"log"`
}

// Query runs the read pipeline over the user's log: range filter, then
// limit, then read formatting. Count is the number of returned entries.
func Query(user *users.User, params QueryParams) QueryResponse {
	log := FilterByRange(user.Log, params.From, params.To)
	log = Limit(log, params.Limit)

	entries := make([]LogEntry, 0, len(log))
	for _, ex := range log {
		entries = append(entries, LogEntry{
			Description: ex.Description,
			Duration:    ex.Duration,
			Date:        FormatDate(ex.Date),
		})
	}

	return QueryResponse{
		UserID:   user.ID,
		Username: user.Username,
		Count:    len(entries),
		Log:      entries,
	}
}

// FilterByRange keeps exercises whose date falls within [from, to]
// inclusive. The filter only runs when BOTH bounds are given - a single
// bound filters nothing (legacy behavior, kept on purpose). Entries with
// unparsable dates never match a bounded query, and unparsable bounds
// match nothing; a bad date never fails the request.
func FilterByRange(log []users.Exercise, from, to string) []users.Exercise {
	if from == "" || to == "" {
		return log
	}

	fromDate := ParseDate(from)
	toDate := ParseDate(to)

	filtered := make([]users.Exercise, 0, len(log))
	for _, ex := range log {
		date := ParseDate(ex.Date)
		if !date.Valid || !fromDate.Valid || !toDate.Valid {
			continue
		}
		if date.Time.Before(fromDate.Time) || date.Time.After(toDate.Time) {
			continue
		}
		filtered = append(filtered, ex)
	}
	return filtered
}

// Limit truncates the log to at most the first limit entries, preserving
// the upstream order. A nil limit means no truncation.
func Limit(log []users.Exercise, limit *int) []users.Exercise {
	if limit == nil || *limit >= len(log) {
		return log
	}
	if *limit < 0 {
		return []users.Exercise{}
	}
	return log[:*limit]
}
