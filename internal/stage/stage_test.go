package stage

import "testing"

func TestNewListRejectsOddLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for odd-length stage list")
		}
	}()
	NewList("Bad", []string{"A", "B", "C"})
}

func TestNewListRejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for duplicate stage name")
		}
	}()
	NewList("Bad", []string{"A", "A"})
}

func TestTorrentStageNavigation(t *testing.T) {
	s, err := Torrent("Packaging")
	if err != nil {
		t.Fatal(err)
	}
	if !s.IsProcessing() {
		t.Fatal("Packaging should be a processing stage")
	}

	next, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if next.Name() != "Packaged" || next.IsProcessing() {
		t.Fatalf("unexpected next stage: %+v", next)
	}

	back, err := next.Previous()
	if err != nil {
		t.Fatal(err)
	}
	if back.Name() != "Packaging" {
		t.Fatalf("expected to round-trip back to Packaging, got %s", back.Name())
	}
}

func TestPreviousCompletedParity(t *testing.T) {
	// Extracting is a processing stage (even index); previous completed
	// is Downloaded (the odd index immediately before it). From the
	// completed stage Downloaded it steps back two, to Listed.
	extracting, err := Torrent("Extracting")
	if err != nil {
		t.Fatal(err)
	}
	prevCompleted, err := extracting.PreviousCompleted()
	if err != nil {
		t.Fatal(err)
	}
	if prevCompleted.Name() != "Downloaded" {
		t.Fatalf("expected Downloaded, got %s", prevCompleted.Name())
	}

	downloaded, err := Torrent("Downloaded")
	if err != nil {
		t.Fatal(err)
	}
	prevCompleted2, err := downloaded.PreviousCompleted()
	if err != nil {
		t.Fatal(err)
	}
	if prevCompleted2.Name() != "Listed" {
		t.Fatalf("expected Listed, got %s", prevCompleted2.Name())
	}
}

func TestPreviousCompletedStrictlyDecreasesByAtLeastTwo(t *testing.T) {
	s, err := Torrent("Deleting")
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.PreviousCompleted()
	if err != nil {
		t.Fatal(err)
	}
	second, err := first.PreviousCompleted()
	if err != nil {
		t.Fatal(err)
	}
	if second.index > first.index-2 {
		t.Fatalf("expected index to decrease by >= 2 between successive previous_completed calls")
	}
}

func TestNextProcessingMirrorsPreviousProcessing(t *testing.T) {
	s, err := Torrent("Listed")
	if err != nil {
		t.Fatal(err)
	}
	np, err := s.NextProcessing()
	if err != nil {
		t.Fatal(err)
	}
	if np.Name() != "Downloading" {
		t.Fatalf("expected Downloading, got %s", np.Name())
	}
	back, err := np.PreviousProcessing()
	if err != nil {
		t.Fatal(err)
	}
	if back.Name() != "Listing" {
		t.Fatalf("expected Listing, got %s", back.Name())
	}
}

func TestOutOfRangeReturnsNotExist(t *testing.T) {
	s, err := Torrent("Packaging")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Previous(); err == nil {
		t.Fatal("expected NotExist for previous of first stage")
	}

	last, err := Torrent("Deleted")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := last.Next(); err == nil {
		t.Fatal("expected NotExist for next of last stage")
	}
}

func TestAtUnknownName(t *testing.T) {
	if _, err := Torrent("NotAStage"); err == nil {
		t.Fatal("expected error for unknown stage name")
	}
}

func TestPackageFileStages(t *testing.T) {
	s, err := PackageFile("Adding")
	if err != nil {
		t.Fatal(err)
	}
	completed, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if completed.Name() != "Added" {
		t.Fatalf("expected Added, got %s", completed.Name())
	}
}
