package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"
	"golang.org/x/term"

	"github.com/antlu/drops-farmer/internal/twitch"
)

const progressBarWidth = 30

// ProgressRecord is one row of the progress history file.
type ProgressRecord struct {
	Time            time.Time `csv:"time"`
	Channel         string    `csv:"channel"`
	DropID          string    `csv:"drop_id"`
	CurrentMinutes  int       `csv:"current_minutes"`
	RequiredMinutes int       `csv:"required_minutes"`
}

// ProgressReporter prints a progress line per poll and appends it to a CSV
// history.
type ProgressReporter struct {
	mu      sync.Mutex
	out     io.Writer
	inPlace bool
	csvPath string
}

// NewProgressReporter redraws its line in place when out is a terminal.
func NewProgressReporter(out *os.File, csvPath string) *ProgressReporter {
	return newProgressReporter(out, term.IsTerminal(int(out.Fd())), csvPath)
}

func newProgressReporter(out io.Writer, inPlace bool, csvPath string) *ProgressReporter {
	return &ProgressReporter{out: out, inPlace: inPlace, csvPath: csvPath}
}

func (r *ProgressReporter) Report(now time.Time, channel string, p twitch.DropProgress, deadline time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := progressLine(channel, p, deadline)
	if r.inPlace {
		fmt.Fprintf(r.out, "\r\033[K%s", line)
	} else {
		fmt.Fprintln(r.out, line)
	}

	if r.csvPath == "" {
		return nil
	}
	return r.appendRecord(ProgressRecord{
		Time:            now,
		Channel:         channel,
		DropID:          p.DropID,
		CurrentMinutes:  p.CurrentMinutesWatched,
		RequiredMinutes: p.RequiredMinutesWatched,
	})
}

func progressLine(channel string, p twitch.DropProgress, deadline time.Time) string {
	percent := 100
	if p.RequiredMinutesWatched > 0 {
		percent = min(p.CurrentMinutesWatched*100/p.RequiredMinutesWatched, 100)
	}
	filled := percent * progressBarWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)

	return fmt.Sprintf("%s [%s] %s/%s min %d%%, done %s",
		channel,
		bar,
		humanize.Comma(int64(p.CurrentMinutesWatched)),
		humanize.Comma(int64(p.RequiredMinutesWatched)),
		percent,
		humanize.Time(deadline),
	)
}

func (r *ProgressReporter) appendRecord(record ProgressRecord) error {
	_, err := os.Stat(r.csvPath)
	isNew := errors.Is(err, fs.ErrNotExist)
	if err != nil && !isNew {
		return err
	}

	if isNew {
		if err := os.MkdirAll(filepath.Dir(r.csvPath), os.ModePerm); err != nil {
			return fmt.Errorf("error creating %s directory: %w", filepath.Dir(r.csvPath), err)
		}
	}

	f, err := os.OpenFile(r.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", r.csvPath, err)
	}
	defer f.Close()

	records := []ProgressRecord{record}
	if isNew {
		return gocsv.MarshalFile(&records, f)
	}
	return gocsv.MarshalWithoutHeaders(&records, f)
}
