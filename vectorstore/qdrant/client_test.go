package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/drewburns/ai-phonecall/vectorstore"
	"github.com/qdrant/go-client/qdrant"
)

type fakePoints struct {
	request *qdrant.QueryPoints
	points  []*qdrant.ScoredPoint
	err     error
	closed  bool
}

func (f *fakePoints) Query(_ context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.request = request
	return f.points, f.err
}

func (f *fakePoints) Close() error {
	f.closed = true
	return nil
}

func TestSearchMapsPayload(t *testing.T) {
	fake := &fakePoints{points: []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26"),
			Score: 0.91,
			Payload: map[string]*qdrant.Value{
				"content": qdrant.NewValueString("We open at 9am."),
				"agent":   qdrant.NewValueString("desk"),
				"page":    qdrant.NewValueInt(4),
			},
		},
		{
			Id:      qdrant.NewIDNum(7),
			Score:   0.2,
			Payload: map[string]*qdrant.Value{"content": qdrant.NewValueString("low score")},
		},
	}}
	c := &Client{client: fake, collectionName: "knowledge"}

	got, err := c.Search(context.Background(), []float32{0.1, 0.2}, vectorstore.SearchFilter{Agent: "desk", MinScore: 0.5}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1 (below-threshold dropped)", len(got))
	}
	r := got[0]
	if r.ID != "5c56c793-69f3-4fbf-87e6-c4bf54c28c26" || r.Content != "We open at 9am." || r.Agent != "desk" {
		t.Fatalf("result = %+v", r)
	}
	if r.Metadata["page"] != int64(4) {
		t.Fatalf("metadata page = %v", r.Metadata["page"])
	}

	req := fake.request
	if req.CollectionName != "knowledge" || req.GetLimit() != 5 {
		t.Fatalf("request = %+v", req)
	}
	if req.ScoreThreshold == nil || *req.ScoreThreshold != 0.5 {
		t.Fatalf("score threshold = %v", req.ScoreThreshold)
	}
	must := req.GetFilter().GetMust()
	if len(must) != 1 || must[0].GetField().GetKey() != "agent" || must[0].GetField().GetMatch().GetKeyword() != "desk" {
		t.Fatalf("filter = %+v", req.GetFilter())
	}
}

func TestSearchNumericID(t *testing.T) {
	fake := &fakePoints{points: []*qdrant.ScoredPoint{{Id: qdrant.NewIDNum(42), Score: 1}}}
	c := &Client{client: fake, collectionName: "knowledge"}
	got, err := c.Search(context.Background(), []float32{1}, vectorstore.SearchFilter{}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got[0].ID != "42" {
		t.Fatalf("id = %q, want 42", got[0].ID)
	}
	if fake.request.Filter != nil {
		t.Fatalf("expected no filter, got %+v", fake.request.Filter)
	}
}

func TestSearchError(t *testing.T) {
	c := &Client{client: &fakePoints{err: errors.New("unavailable")}, collectionName: "k"}
	if _, err := c.Search(context.Background(), []float32{1}, vectorstore.SearchFilter{}, 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildMatchCondition(t *testing.T) {
	if got := buildMatchCondition("n", 3).GetField().GetMatch().GetInteger(); got != 3 {
		t.Fatalf("int match = %d", got)
	}
	if got := buildMatchCondition("s", "x").GetField().GetMatch().GetKeyword(); got != "x" {
		t.Fatalf("keyword match = %q", got)
	}
	if got := buildMatchCondition("f", 1.5).GetField().GetMatch().GetKeyword(); got != "1.5" {
		t.Fatalf("fallback match = %q", got)
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{"localhost:6334", "localhost", 6334, true, false},
		{"http://qdrant", "qdrant", 6334, false, false},
		{"https://x.cloud.qdrant.io:443", "x.cloud.qdrant.io", 443, true, false},
		{"http://qdrant:abc", "", 0, false, true},
	}
	for _, tt := range tests {
		host, port, tls, err := parseAddress(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseAddress(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseAddress(%q): %v", tt.in, err)
		}
		if host != tt.host || port != tt.port || tls != tt.tls {
			t.Fatalf("parseAddress(%q) = %q %d %v", tt.in, host, port, tls)
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{CollectionName: "k"}); err == nil {
		t.Fatal("expected url error")
	}
	if _, err := New(Config{URL: "localhost:6334"}); err == nil {
		t.Fatal("expected collection error")
	}
}

func TestClose(t *testing.T) {
	fake := &fakePoints{}
	c := &Client{client: fake}
	if err := c.Close(); err != nil || !fake.closed {
		t.Fatalf("Close = %v, closed = %v", err, fake.closed)
	}
}
