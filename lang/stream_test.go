package lang

import (
	"strings"
	"testing"
)

const streamSource = `
	const PAGE_SIZE = 4K;

	section .text {
		place_in: FLASH,
		contents {
			input(.text*)
		}
	}

	section .data {
		place_in: RAM,
		load_from: FLASH,
	}
`

func TestStream_Document(t *testing.T) {
	t.Cleanup(ClearCache)

	doc, err := NewStreamFromString(streamSource).Document()
	if err != nil {
		t.Fatalf("Document: %v", err)
	}

	if len(doc.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(doc.Items))
	}
}

func TestStream_GetSection(t *testing.T) {
	t.Cleanup(ClearCache)

	s := NewStreamFromString(streamSource)

	text, err := s.GetSection(".text")
	if err != nil {
		t.Fatalf("GetSection(.text): %v", err)
	}

	if text.PlaceIn != "FLASH" {
		t.Errorf("place_in = %q, want FLASH", text.PlaceIn)
	}

	if _, err := s.GetSection(".missing"); err == nil {
		t.Fatal("expected error for missing section")
	} else if !strings.Contains(err.Error(), "item not found") {
		t.Errorf("error = %q, want item not found", err.Error())
	}
}

func TestStream_SectionsOrder(t *testing.T) {
	t.Cleanup(ClearCache)

	var names []string
	for section := range NewStreamFromString(streamSource).Sections() {
		names = append(names, section.Name)
	}

	if len(names) != 2 || names[0] != ".text" || names[1] != ".data" {
		t.Errorf("section order = %v, want [.text .data]", names)
	}
}

func TestStream_FromReader(t *testing.T) {
	t.Cleanup(ClearCache)

	section, err := GetSectionFrom(strings.NewReader(streamSource), ".data")
	if err != nil {
		t.Fatalf("GetSectionFrom: %v", err)
	}

	if section.LoadFrom != "FLASH" {
		t.Errorf("load_from = %q, want FLASH", section.LoadFrom)
	}
}

func TestStream_SharedCacheAcrossInstances(t *testing.T) {
	t.Cleanup(ClearCache)

	first := NewStreamFromString(streamSource)
	if _, err := first.GetSection(".text"); err != nil {
		t.Fatalf("first GetSection: %v", err)
	}

	// A second stream over the same source shares parse state and the
	// section cache through the source registry.
	second := NewStreamFromString(streamSource)
	if first.state != second.state {
		t.Error("streams over identical source should share state")
	}

	if _, err := second.GetSection(".data"); err != nil {
		t.Fatalf("second GetSection: %v", err)
	}
}

func TestStream_ParseError(t *testing.T) {
	t.Cleanup(ClearCache)

	s := NewStreamFromString("section {}")

	if _, err := s.Document(); err == nil {
		t.Fatal("expected parse error")
	}

	// The error is sticky: later accessors fail the same way without
	// reparsing.
	if _, err := s.GetSection(".text"); err == nil {
		t.Fatal("expected parse error on section access")
	}

	for range s.Sections() {
		t.Fatal("iterator should yield nothing after a parse error")
	}
}
