package unsub

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/report"
)

type fakeFetcher struct {
	statuses map[string]int
	errs     map[string]error
	fetched  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (int, error) {
	f.fetched = append(f.fetched, url)
	if err, ok := f.errs[url]; ok {
		return 0, err
	}
	if status, ok := f.statuses[url]; ok {
		return status, nil
	}
	return 404, nil
}

type fakeSender struct {
	sent    []string
	sendErr error
}

func (s *fakeSender) Send(to, subject, body string) error {
	_ = subject
	_ = body
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, to)
	return nil
}

type fakeFinder struct {
	header  string
	queried []string
}

func (f *fakeFinder) FindListUnsubscribe(domain string, since time.Time) (string, error) {
	_ = since
	f.queried = append(f.queried, domain)
	return f.header, nil
}

type fakeRecorder struct {
	outcomes []model.Outcome
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, o model.Outcome) error {
	r.outcomes = append(r.outcomes, o)
	return nil
}

// writeReport writes a minimal executor input CSV and returns its path.
func writeReport(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := csv.NewWriter(f)
	header := []string{
		report.ColDomain, report.ColURLs, report.ColMailtos,
		report.ColHasHeader, report.ColRawHeader, report.ColDelete,
	}
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readStatuses(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	col := -1
	for i, h := range records[0] {
		if h == report.ColStatus {
			col = i
		}
	}
	if col < 0 {
		t.Fatalf("no Status column in %v", records[0])
	}
	var out []string
	for _, row := range records[1:] {
		out = append(out, row[col])
	}
	return out
}

func newTestExecutor(opts Options) *Executor {
	return NewExecutor(zerolog.Nop(), opts)
}

func TestRunHTTPBeatsMailto(t *testing.T) {
	url := "https://a.example.com/unsub?token=t"
	path := writeReport(t, [][]string{
		{"a.example.com", url, "out@a.example.com", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{url: 200}}
	sender := &fakeSender{}
	exec := newTestExecutor(Options{Fetcher: fetcher, Sender: sender})

	sum, err := exec.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodStoredURL) {
		t.Errorf("status = %q", statuses[0])
	}
	if len(sender.sent) != 0 {
		t.Errorf("mailto used despite HTTP success: %v", sender.sent)
	}
	if sum.Succeeded != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRunFallsBackToMailto(t *testing.T) {
	url := "https://b.example.com/unsub"
	path := writeReport(t, [][]string{
		{"b.example.com", url, "out@b.example.com", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{url: 500}}
	sender := &fakeSender{}
	exec := newTestExecutor(Options{Fetcher: fetcher, Sender: sender})

	if _, err := exec.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodStoredMailto) {
		t.Errorf("status = %q", statuses[0])
	}
	if len(sender.sent) != 1 || sender.sent[0] != "out@b.example.com" {
		t.Errorf("sent = %v", sender.sent)
	}
}

func TestRunHeaderReExtraction(t *testing.T) {
	headerURL := "https://c.example.com/unsubscribe?uid=9"
	path := writeReport(t, [][]string{
		{"c.example.com", "", "", "Yes", "<" + headerURL + ">", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{headerURL: 200}}
	exec := newTestExecutor(Options{Fetcher: fetcher})

	if _, err := exec.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodHeaderURL) {
		t.Errorf("status = %q", statuses[0])
	}
}

func TestRunAllMethodsExhausted(t *testing.T) {
	url := "https://d.example.com/unsub"
	path := writeReport(t, [][]string{
		{"d.example.com", url, "out@d.example.com", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{errs: map[string]error{url: errors.New("connection refused")}}
	sender := &fakeSender{sendErr: errors.New("smtp rejected")}
	exec := newTestExecutor(Options{Fetcher: fetcher, Sender: sender})

	sum, err := exec.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}

	statuses := readStatuses(t, path)
	if !strings.HasPrefix(statuses[0], "Failed: ") {
		t.Errorf("status = %q", statuses[0])
	}
	if !strings.Contains(statuses[0], "smtp rejected") {
		t.Errorf("status should carry the last recorded reason, got %q", statuses[0])
	}
}

func TestRunGateConditions(t *testing.T) {
	url := "https://e.example.com/unsub"
	path := writeReport(t, [][]string{
		{"e.example.com", url, "", "Yes", "", ""},    // not action-flagged
		{"f.example.com", url, "", "No", "", "yes"},  // no unsubscribe header
		{"", url, "", "Yes", "", "yes"},              // no domain
	})

	fetcher := &fakeFetcher{statuses: map[string]int{url: 200}}
	exec := newTestExecutor(Options{Fetcher: fetcher})

	sum, err := exec.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 3 || sum.Attempted != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if len(fetcher.fetched) != 0 {
		t.Errorf("fetched = %v, want none", fetcher.fetched)
	}
	for i, s := range readStatuses(t, path) {
		if s != model.StatusSkipped {
			t.Errorf("row %d status = %q, want Skipped", i, s)
		}
	}
}

func TestRunDuplicateDomainProcessedOnce(t *testing.T) {
	url := "https://g.example.com/unsub"
	path := writeReport(t, [][]string{
		{"g.example.com", url, "", "Yes", "", "yes"},
		{"g.example.com", url, "", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{url: 200}}
	exec := newTestExecutor(Options{Fetcher: fetcher})

	sum, err := exec.Run(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodStoredURL) {
		t.Errorf("first row status = %q", statuses[0])
	}
	if statuses[1] != model.StatusAlreadyProcessed {
		t.Errorf("second row status = %q", statuses[1])
	}
	if len(fetcher.fetched) != 1 {
		t.Errorf("fetched = %v, want single attempt", fetcher.fetched)
	}
	if len(sum.Processed) != 1 || sum.Processed[0] != "g.example.com" {
		t.Errorf("processed = %v", sum.Processed)
	}
}

func TestRunMailboxFallbackSearch(t *testing.T) {
	headerURL := "https://h.example.com/opt-out?key=k"
	path := writeReport(t, [][]string{
		{"h.example.com", "", "", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{headerURL: 200}}
	finder := &fakeFinder{header: "<" + headerURL + ">"}
	exec := newTestExecutor(Options{Fetcher: fetcher, Finder: finder, DaysBack: 30})

	if _, err := exec.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	if len(finder.queried) != 1 || finder.queried[0] != "h.example.com" {
		t.Errorf("queried = %v", finder.queried)
	}
	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodHeaderURL) {
		t.Errorf("status = %q", statuses[0])
	}
}

func TestRunRecordsOutcomes(t *testing.T) {
	url := "https://i.example.com/unsub"
	path := writeReport(t, [][]string{
		{"i.example.com", url, "", "Yes", "", "yes"},
		{"j.example.com", "https://j.example.com/unsub", "", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{
		statuses: map[string]int{url: 200},
		errs:     map[string]error{"https://j.example.com/unsub": fmt.Errorf("timeout")},
	}
	recorder := &fakeRecorder{}
	exec := newTestExecutor(Options{Fetcher: fetcher, Recorder: recorder, RunID: "run-1"})

	if _, err := exec.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	if len(recorder.outcomes) != 2 {
		t.Fatalf("outcomes = %v", recorder.outcomes)
	}
	if recorder.outcomes[0].Method != model.MethodStoredURL || recorder.outcomes[0].RunID != "run-1" {
		t.Errorf("outcome[0] = %+v", recorder.outcomes[0])
	}
	if !strings.HasPrefix(recorder.outcomes[1].Status, "Failed") {
		t.Errorf("outcome[1] = %+v", recorder.outcomes[1])
	}
}

func TestRunMultipleURLsInOrder(t *testing.T) {
	u1 := "https://k.example.com/unsub1"
	u2 := "https://k.example.com/unsub2"
	path := writeReport(t, [][]string{
		{"k.example.com", u1 + ";" + u2, "", "Yes", "", "yes"},
	})

	fetcher := &fakeFetcher{statuses: map[string]int{u1: 410, u2: 200}}
	exec := newTestExecutor(Options{Fetcher: fetcher})

	if _, err := exec.Run(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	if len(fetcher.fetched) != 2 || fetcher.fetched[0] != u1 || fetcher.fetched[1] != u2 {
		t.Errorf("fetched = %v", fetcher.fetched)
	}
	statuses := readStatuses(t, path)
	if statuses[0] != model.SuccessStatus(model.MethodStoredURL) {
		t.Errorf("status = %q", statuses[0])
	}
}
