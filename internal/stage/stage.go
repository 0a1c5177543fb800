// Package stage implements the ordered, alternating processing/completed
// stage list used to drive Torrent and PackageFile rows through the
// pipeline. It replaces exception-raising navigation with an explicit
// Ok/NotExist result so callers can pattern-match instead of recovering
// from a panic.
package stage

import "fmt"

// List is an ordered, alternating sequence of stage names: even indices are
// "processing" stages, odd indices are their "completed" resting states.
// A List must have an even length and unique names.
type List struct {
	name string
	ord  []string
}

// NewList validates ord and returns a reusable List. It panics if ord is
// malformed — that is a programmer error (§7 of the pipeline's error
// taxonomy: invalid stage lists are fatal, not retryable).
func NewList(name string, ord []string) List {
	if len(ord) == 0 || len(ord)%2 != 0 {
		panic(fmt.Sprintf("stage: %s: invalid stage list length %d", name, len(ord)))
	}
	seen := make(map[string]bool, len(ord))
	for _, n := range ord {
		if seen[n] {
			panic(fmt.Sprintf("stage: %s: duplicate stage name %q", name, n))
		}
		seen[n] = true
	}
	cp := make([]string, len(ord))
	copy(cp, ord)
	return List{name: name, ord: cp}
}

// TorrentStages is the producer/consumer torrent stage sequence.
var TorrentStages = NewList("Torrent", []string{
	"Packaging", "Packaged",
	"Listing", "Listed",
	"Downloading", "Downloaded",
	"Extracting", "Extracted",
	"Sorting", "Completed",
	"Deleting", "Deleted",
})

// PackageFileStages is the package file stage sequence.
var PackageFileStages = NewList("PackageFile", []string{
	"Adding", "Added",
	"Downloading", "Downloaded",
	"Deleting", "Deleted",
})

// ErrNotExist is returned when a navigation step falls outside the list.
type ErrNotExist struct {
	List string
	Op   string
}

func (e *ErrNotExist) Error() string {
	return fmt.Sprintf("stage: %s: %s stage does not exist", e.List, e.Op)
}

// Stage is a value positioned within a List.
type Stage struct {
	list  List
	index int
}

// At returns the Stage named name within list, or ErrNotExist if name is
// not present in the list.
func At(list List, name string) (Stage, error) {
	for i, n := range list.ord {
		if n == name {
			return Stage{list: list, index: i}, nil
		}
	}
	return Stage{}, &ErrNotExist{List: list.name, Op: "lookup(" + name + ")"}
}

// Name returns the current stage's name.
func (s Stage) Name() string {
	return s.list.ord[s.index]
}

// IsProcessing reports whether the stage is a processing (in-flight) stage
// as opposed to a completed resting state. Even indices are processing.
func (s Stage) IsProcessing() bool {
	return s.index%2 == 0
}

// Next returns the stage immediately after this one in the list.
func (s Stage) Next() (Stage, error) {
	if s.index+1 >= len(s.list.ord) {
		return Stage{}, &ErrNotExist{List: s.list.name, Op: "next"}
	}
	return Stage{list: s.list, index: s.index + 1}, nil
}

// Previous returns the stage immediately before this one in the list.
func (s Stage) Previous() (Stage, error) {
	if s.index == 0 {
		return Stage{}, &ErrNotExist{List: s.list.name, Op: "previous"}
	}
	return Stage{list: s.list, index: s.index - 1}, nil
}

// PreviousCompleted returns the nearest completed (odd-index) stage before
// this one: index-1 if this stage is even, index-2 if odd.
func (s Stage) PreviousCompleted() (Stage, error) {
	idx := s.index
	if idx%2 == 0 {
		idx--
	} else {
		idx -= 2
	}
	if idx < 0 {
		return Stage{}, &ErrNotExist{List: s.list.name, Op: "previous_completed"}
	}
	return Stage{list: s.list, index: idx}, nil
}

// PreviousProcessing returns the nearest processing (even-index) stage
// before this one: index-2 if even, index-1 if odd.
func (s Stage) PreviousProcessing() (Stage, error) {
	idx := s.index
	if idx%2 == 0 {
		idx -= 2
	} else {
		idx--
	}
	if idx < 0 {
		return Stage{}, &ErrNotExist{List: s.list.name, Op: "previous_processing"}
	}
	return Stage{list: s.list, index: idx}, nil
}

// NextProcessing returns the nearest processing (even-index) stage after
// this one: index+2 if even, index+1 if odd.
func (s Stage) NextProcessing() (Stage, error) {
	idx := s.index
	if idx%2 == 0 {
		idx += 2
	} else {
		idx++
	}
	if idx >= len(s.list.ord) {
		return Stage{}, &ErrNotExist{List: s.list.name, Op: "next_processing"}
	}
	return Stage{list: s.list, index: idx}, nil
}

// Torrent returns the Stage named name within TorrentStages.
func Torrent(name string) (Stage, error) { return At(TorrentStages, name) }

// PackageFile returns the Stage named name within PackageFileStages.
func PackageFile(name string) (Stage, error) { return At(PackageFileStages, name) }
