package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/contentful/apps-sub004/internal/repository"
)

func articleMappings() []ColumnMapping {
	return []ColumnMapping{
		{ColumnName: "title", FieldID: "title"},
		{ColumnName: "views", FieldID: "views"},
		{ColumnName: "author", FieldID: "author"},
	}
}

func TestDryRun_CreateMode(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&repository.Entity{ID: "person-1", TypeID: "person"})

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "First", "views": "10", "author": "person-1"}},
		{RowIndex: 2, RawValues: map[string]string{"title": "", "views": "20"}},
		{RowIndex: 3, RawValues: map[string]string{"title": "Third", "views": "not a number"}},
	}

	report, err := NewDryRun(repo).Run(context.Background(), rows, articleMappings(), articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Verdicts) != 3 {
		t.Fatalf("got %d verdicts, want 3", len(report.Verdicts))
	}

	if !report.Verdicts[0].OK {
		t.Errorf("row 1 should pass: %v", report.Verdicts[0].Issues)
	}
	if report.Verdicts[1].OK {
		t.Error("row 2 should fail: required title is empty")
	}
	if report.Verdicts[2].OK {
		t.Error("row 3 should fail: views is not a number")
	}
	if got := report.OKCount(); got != 1 {
		t.Errorf("OKCount = %d, want 1", got)
	}
}

func TestDryRun_NonFiniteNumberFails(t *testing.T) {
	repo := newFakeRepo()

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "T", "views": "NaN"}},
		{RowIndex: 2, RawValues: map[string]string{"title": "T", "views": "Inf"}},
	}

	report, err := NewDryRun(repo).Run(context.Background(), rows, articleMappings(), articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, v := range report.Verdicts {
		if v.OK {
			t.Errorf("verdict[%d].OK = true, non-finite numbers must fail validation", i)
		}
	}
}

func TestDryRun_RowFailuresAreIsolated(t *testing.T) {
	// One bad row never aborts the pass or taints its neighbors.
	repo := newFakeRepo()

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "ok"}},
		{RowIndex: 2, RawValues: map[string]string{"title": ""}},
		{RowIndex: 3, RawValues: map[string]string{"title": "also ok"}},
	}
	mappings := []ColumnMapping{{ColumnName: "title", FieldID: "title"}}

	report, err := NewDryRun(repo).Run(context.Background(), rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i, wantOK := range []bool{true, false, true} {
		if report.Verdicts[i].OK != wantOK {
			t.Errorf("verdict[%d].OK = %v, want %v", i, report.Verdicts[i].OK, wantOK)
		}
	}
}

func TestDryRun_DanglingReference(t *testing.T) {
	repo := newFakeRepo() // nothing seeded

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "T", "author": "ghost"}},
	}

	report, err := NewDryRun(repo).Run(context.Background(), rows, articleMappings(), articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	v := report.Verdicts[0]
	if v.OK {
		t.Fatal("row with a dangling reference should fail")
	}
	found := false
	for _, issue := range v.Issues {
		if strings.Contains(issue.Message, "ghost") && issue.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("no dangling-reference error in %v", v.Issues)
	}
}

func TestDryRun_UnconfirmedReferenceWarns(t *testing.T) {
	repo := newFakeRepo()
	repo.existsFn = func(ctx context.Context, id string) (bool, error) {
		return false, repository.ErrUnavailable
	}

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "T", "author": "maybe"}},
	}

	report, err := NewDryRun(repo).Run(context.Background(), rows, articleMappings(), articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	v := report.Verdicts[0]
	if v.OK {
		t.Fatal("unconfirmed reference must fail closed")
	}

	var hasError, hasWarning bool
	for _, issue := range v.Issues {
		if issue.FieldID == "author" {
			switch issue.Severity {
			case SeverityError:
				hasError = true
			case SeverityWarning:
				hasWarning = true
			}
		}
	}
	if !hasError || !hasWarning {
		t.Errorf("want fail-closed error plus unconfirmed warning, got %v", v.Issues)
	}
}

func TestDryRun_UnmappedRequiredField(t *testing.T) {
	repo := newFakeRepo()

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"views": "5"}},
	}
	mappings := []ColumnMapping{{ColumnName: "views", FieldID: "views"}}

	report, err := NewDryRun(repo).Run(context.Background(), rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	v := report.Verdicts[0]
	if v.OK {
		t.Fatal("row should fail: required title has no mapping at all")
	}
	if v.Issues[0].FieldID != "title" {
		t.Errorf("issue field = %q, want title", v.Issues[0].FieldID)
	}
}

func TestDryRun_UpdateModeIDColumn(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&repository.Entity{ID: "e1", TypeID: "article", Version: 1})

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"id": "e1", "title": "New title"}},
		{RowIndex: 2, RawValues: map[string]string{"id": "ghost", "title": "X"}},
		{RowIndex: 3, RawValues: map[string]string{"id": "", "title": "Y"}},
	}
	mappings := []ColumnMapping{{ColumnName: "title", FieldID: "title"}}

	report, err := NewDryRun(repo).Run(context.Background(), rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeUpdate, DefaultLocale: "en-US", IDColumn: "id"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.Verdicts[0].OK || report.Verdicts[0].MatchedEntityID != "e1" {
		t.Errorf("row 1 = %+v, want match on e1", report.Verdicts[0])
	}
	if report.Verdicts[1].OK {
		t.Error("row 2 should fail: target entity does not exist")
	}
	if report.Verdicts[2].OK {
		t.Error("row 3 should fail: missing entity id")
	}
	if report.Matches[1] != "e1" {
		t.Errorf("Matches = %v, want row 1 -> e1", report.Matches)
	}
}

func TestDryRun_UpdateModeNaturalKey(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&repository.Entity{
		ID: "e1", TypeID: "article", Version: 1,
		Fields: repository.FieldsPayload{"slug": {"en-US": "unique"}},
	})
	repo.seed(&repository.Entity{
		ID: "e2", TypeID: "article", Version: 1,
		Fields: repository.FieldsPayload{"slug": {"en-US": "dupe"}},
	})
	repo.seed(&repository.Entity{
		ID: "e3", TypeID: "article", Version: 1,
		Fields: repository.FieldsPayload{"slug": {"en-US": "dupe"}},
	})

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"slug": "unique", "title": "A"}},
		{RowIndex: 2, RawValues: map[string]string{"slug": "dupe", "title": "B"}},
		{RowIndex: 3, RawValues: map[string]string{"slug": "nowhere", "title": "C"}},
	}
	mappings := []ColumnMapping{
		{ColumnName: "slug", FieldID: "slug"},
		{ColumnName: "title", FieldID: "title"},
	}

	report, err := NewDryRun(repo).Run(context.Background(), rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeUpdate, DefaultLocale: "en-US", NaturalKeyFieldID: "slug"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.Verdicts[0].OK || report.Verdicts[0].MatchedEntityID != "e1" {
		t.Errorf("unique key row = %+v, want match on e1", report.Verdicts[0])
	}
	if report.Verdicts[1].OK {
		t.Error("ambiguous key row should fail")
	}
	if report.Verdicts[2].OK {
		t.Error("unmatched key row should fail")
	}
}

func TestDryRun_Progress(t *testing.T) {
	repo := newFakeRepo()

	rows := []ParsedRow{
		{RowIndex: 1, RawValues: map[string]string{"title": "A"}},
		{RowIndex: 2, RawValues: map[string]string{"title": "B"}},
	}
	mappings := []ColumnMapping{{ColumnName: "title", FieldID: "title"}}

	var calls [][2]int
	_, err := NewDryRun(repo).Run(context.Background(), rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"},
		func(completed, total int) { calls = append(calls, [2]int{completed, total}) })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("progress called %d times, want 2", len(calls))
	}
	if calls[0] != [2]int{1, 2} || calls[1] != [2]int{2, 2} {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestDryRun_ContextCancelled(t *testing.T) {
	repo := newFakeRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rows := []ParsedRow{{RowIndex: 1, RawValues: map[string]string{"title": "A"}}}
	mappings := []ColumnMapping{{ColumnName: "title", FieldID: "title"}}

	_, err := NewDryRun(repo).Run(ctx, rows, mappings, articleType(),
		Options{TypeID: "article", Mode: ModeCreate, DefaultLocale: "en-US"}, nil)
	if err == nil {
		t.Fatal("cancelled context should abort the pass")
	}
}
