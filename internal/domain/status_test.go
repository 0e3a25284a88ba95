package domain

import "testing"

func TestStatusOrderAndView(t *testing.T) {
	order := []Status{StatusRequestReceived, StatusMediaRetrieved, StatusMediaSplit, StatusGenerationBegun, StatusReady}
	for i, s := range order {
		if int(s) != i {
			t.Fatalf("expected %s to be %d, got %d", s, i, int(s))
		}
	}

	view := StatusMediaSplit.View()
	if view.Progress != 2 || view.TotalSteps != 5 || view.StatusString != "Content Analysis completed!" {
		t.Fatalf("unexpected view %+v", view)
	}
	if StatusReady.String() != "READY" {
		t.Fatalf("unexpected name %s", StatusReady)
	}
	if Status(9).Valid() {
		t.Fatalf("expected status 9 to be invalid")
	}
}

func TestParseSourceAndSort(t *testing.T) {
	if s, err := ParseSource(""); err != nil || s != SourceWiki {
		t.Fatalf("expected default wiki source, got %q %v", s, err)
	}
	if s, err := ParseSource("solr_url"); err != nil || s != SourceSolrURL {
		t.Fatalf("expected solr_url, got %q %v", s, err)
	}
	if _, err := ParseSource("ftp"); err != ErrUnsupportedSource {
		t.Fatalf("expected unsupported source, got %v", err)
	}

	if ParseSortKey("most_read") != SortMostRead || ParseSortKey("trending") != SortAlpha || ParseSortKey("") != SortAlpha {
		t.Fatalf("unexpected sort parsing")
	}
}

func TestNotFoundMessage(t *testing.T) {
	got := NotFoundMessage(QuizKey{Keyword: "Einstein", Source: SourceWiki})
	want := "Requested resource not found! with keyword=Einstein and source=wiki"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
