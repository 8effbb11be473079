package scan

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsweep/internal/model"
	"github.com/nhle/mailsweep/internal/seen"
)

func testAggregator(t *testing.T, name string, prior *seen.Set) *Aggregator {
	t.Helper()
	return NewAggregator(zerolog.Nop(), name, prior)
}

func TestResolveDomain(t *testing.T) {
	tests := []struct {
		name   string
		sender string
		want   string
	}{
		{"structured address", "Deals <deals@Shop.Example.COM>", "shop.example.com"},
		{"bare address", "a@news.example.com", "news.example.com"},
		{"display name with at token", "Weird From deals@shop.example.com here", "shop.example.com"},
		{"bare domain token", "visit shop.example.com today", "shop.example.com"},
		{"service keyword falls through", "netflix", "netflix"},
		{"arbitrary text lowercased", "Some Sender", "some sender"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveDomain(tc.sender); got != tc.want {
				t.Errorf("ResolveDomain(%q) = %q, want %q", tc.sender, got, tc.want)
			}
		})
	}
}

func TestIngestScenarioShopExample(t *testing.T) {
	agg := testAggregator(t, "alice", nil)

	agg.Ingest(Message{
		Sender:          "deals@shop.example.com",
		Subject:         "Great deals inside",
		BodyParts:       []string{"Please visit https://shop.example.com/unsubscribe?token=abc123 to opt out"},
		ListUnsubscribe: "<mailto:remove@shop.example.com>",
		Date:            time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	rec, ok := agg.Domains()["shop.example.com"]
	if !ok {
		t.Fatalf("no record for shop.example.com: %v", agg.Domains())
	}

	if rec.Senders["deals@shop.example.com"] != 1 {
		t.Errorf("sender count = %d, want 1", rec.Senders["deals@shop.example.com"])
	}
	// "shop" is not a classification keyword, so no Shopping category.
	if len(rec.Categories) != 0 {
		t.Errorf("categories = %v, want none", rec.Categories)
	}

	bodyURL := "https://shop.example.com/unsubscribe?token=abc123"
	c, ok := rec.Candidates[bodyURL]
	if !ok {
		t.Fatalf("candidates missing body URL: %v", rec.Candidates)
	}
	if c.Token != "abc123" {
		t.Errorf("token = %q, want abc123", c.Token)
	}
	if _, ok := rec.UnsubscribeURLs[bodyURL]; !ok {
		t.Errorf("UnsubscribeURLs missing %q", bodyURL)
	}
	if _, ok := rec.UnsubscribeMailtos["remove@shop.example.com"]; !ok {
		t.Errorf("UnsubscribeMailtos = %v", rec.UnsubscribeMailtos)
	}
	if !rec.HasListUnsubscribe {
		t.Errorf("HasListUnsubscribe = false, want true")
	}
}

func TestIngestTwoSendersSameDomain(t *testing.T) {
	agg := testAggregator(t, "alice", nil)

	for _, sender := range []string{"a@news.example.com", "b@news.example.com"} {
		agg.Ingest(Message{
			Sender:    sender,
			Subject:   "digest",
			BodyParts: []string{"nothing relevant"},
			Date:      time.Now(),
		})
	}

	rec := agg.Domains()["news.example.com"]
	if rec == nil {
		t.Fatal("no record for news.example.com")
	}
	if len(rec.Senders) != 2 {
		t.Errorf("unique senders = %d, want 2", len(rec.Senders))
	}
	if rec.TotalEmails() != 2 {
		t.Errorf("total emails = %d, want 2", rec.TotalEmails())
	}
	if len(agg.Personalized()) != 0 {
		t.Errorf("personalized = %v, want none", agg.Personalized())
	}
}

func TestIngestIdempotentSets(t *testing.T) {
	agg := testAggregator(t, "", nil)

	msg := Message{
		Sender:          "promo@streaming.example.com",
		Subject:         "Your Netflix watchlist",
		BodyParts:       []string{"Netflix news. Unsubscribe: https://streaming.example.com/unsubscribe?id=1"},
		ListUnsubscribe: "<https://streaming.example.com/unsubscribe?id=1>",
		Date:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	agg.Ingest(msg)
	agg.Ingest(msg)

	rec := agg.Domains()["streaming.example.com"]
	if rec.Senders[msg.Sender] != 2 {
		t.Errorf("sender count = %d, want 2", rec.Senders[msg.Sender])
	}
	if len(rec.UnsubscribeURLs) != 1 {
		t.Errorf("UnsubscribeURLs = %v, want exactly one", rec.UnsubscribeURLs)
	}

	svc := agg.Domains()["netflix"]
	if svc == nil {
		t.Fatal("no record for service domain netflix")
	}
	if len(svc.Categories) != 1 {
		t.Errorf("netflix categories = %v, want exactly one", svc.Categories)
	}
}

func TestIngestKeepNewestTimestamp(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	// The same target observed at two timestamps, ingested in either
	// order, keeps the entry with the later timestamp.
	target := "https://letters.example.com/unsubscribe?token=t"
	for name, order := range map[string][]model.Candidate{
		"ascending":  {{Target: target, Kind: model.CandidateURL, Timestamp: t1, Token: "first"}, {Target: target, Kind: model.CandidateURL, Timestamp: t2, Token: "second"}},
		"descending": {{Target: target, Kind: model.CandidateURL, Timestamp: t2, Token: "second"}, {Target: target, Kind: model.CandidateURL, Timestamp: t1, Token: "first"}},
	} {
		rec := model.NewDomainRecord("letters.example.com")
		for _, c := range order {
			rec.MergeCandidate(c)
		}
		got := rec.Candidates[target]
		if got.Token != "second" || !got.Timestamp.Equal(t2) {
			t.Errorf("%s: stored candidate = %+v, want token second at t2", name, got)
		}
	}
}

func TestIngestSkipsPreviouslySeen(t *testing.T) {
	prior := seen.NewSet()
	prior.Add("spam.example.com")

	agg := testAggregator(t, "alice", prior)
	agg.Ingest(Message{
		Sender:    "Alice Offers <offers@spam.example.com>",
		Subject:   "for alice",
		BodyParts: []string{"alice, your netflix deal"},
		Date:      time.Now(),
	})

	if agg.Skipped() != 1 {
		t.Errorf("Skipped = %d, want 1", agg.Skipped())
	}
	if len(agg.Domains()) != 0 {
		t.Errorf("domains = %v, want none", agg.Domains())
	}
	if len(agg.Personalized()) != 0 {
		t.Errorf("personalized = %v, want none", agg.Personalized())
	}
}

func TestIngestSkipsPreviouslySeenSender(t *testing.T) {
	prior := seen.NewSet()
	prior.Add("known@old.example.com")

	agg := testAggregator(t, "", prior)
	agg.Ingest(Message{Sender: "known@old.example.com", Date: time.Now()})

	if agg.Skipped() != 1 {
		t.Errorf("Skipped = %d, want 1", agg.Skipped())
	}
}

func TestIngestPersonalization(t *testing.T) {
	agg := testAggregator(t, "Alice", nil)

	agg.Ingest(Message{
		Sender:    "Hello <hello@greet.example.com>",
		Subject:   "a message for ALICE",
		BodyParts: []string{"generic body"},
		Date:      time.Now(),
	})
	agg.Ingest(Message{
		Sender:    "other@greet.example.com",
		Subject:   "generic",
		BodyParts: []string{"Dear alice, welcome back"},
		Date:      time.Now(),
	})

	got := agg.Personalized()
	if len(got) != 2 {
		t.Fatalf("personalized = %v, want both senders", got)
	}
	if got[0] != "Hello <hello@greet.example.com>" && got[1] != "Hello <hello@greet.example.com>" {
		t.Errorf("personalized = %v", got)
	}
}

func TestIngestAccountSubjectFlag(t *testing.T) {
	agg := testAggregator(t, "", nil)

	agg.Ingest(Message{
		Sender:  "noreply@svc.example.com",
		Subject: "Welcome to your new account",
		Date:    time.Now(),
	})
	agg.Ingest(Message{
		Sender:  "news@svc.example.com",
		Subject: "March newsletter",
		Date:    time.Now(),
	})

	got := agg.AccountSenders()
	if len(got) != 1 || got[0] != "noreply@svc.example.com" {
		t.Errorf("AccountSenders = %v", got)
	}
}

func TestIdentifiersIncludeDomainsAndSenders(t *testing.T) {
	agg := testAggregator(t, "alice", nil)
	agg.Ingest(Message{
		Sender:    "Offers <offers@deal.example.com>",
		Subject:   "alice, your account",
		BodyParts: []string{""},
		Date:      time.Now(),
	})

	ids := agg.Identifiers()
	want := map[string]bool{
		"deal.example.com":               false,
		"Offers <offers@deal.example.com>": false,
	}
	for _, id := range ids {
		if _, ok := want[id]; ok {
			want[id] = true
		}
	}
	for id, found := range want {
		if !found {
			t.Errorf("Identifiers missing %q (got %v)", id, ids)
		}
	}
}
