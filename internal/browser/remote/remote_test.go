package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakeService records actions and replies with canned results.
type fakeService struct {
	t       *testing.T
	actions []string
	results map[string]actionResult
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/pages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"pageId": "p-1"})
	})
	mux.HandleFunc("POST /v1/pages/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		var a action
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			f.t.Errorf("decode action: %v", err)
		}
		f.actions = append(f.actions, a.Action)
		res, ok := f.results[a.Action]
		if !ok {
			res = actionResult{OK: true}
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("DELETE /v1/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.actions = append(f.actions, "close")
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestClient_NavigateReportsStatus(t *testing.T) {
	f := &fakeService{t: t, results: map[string]actionResult{
		"navigate": {OK: true, Status: 429},
	}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c := New(srv.URL, WithToken("secret"))
	ctx := context.Background()

	p, err := c.NewPage(ctx)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}

	resp, err := p.Navigate(ctx, "https://example.com/jobs", 30*time.Second)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if resp.Status != 429 {
		t.Errorf("expected status 429, got %d", resp.Status)
	}
	if resp.Elapsed <= 0 {
		t.Error("expected a positive elapsed time")
	}
}

func TestClient_ActionErrorSurfaced(t *testing.T) {
	f := &fakeService{t: t, results: map[string]actionResult{
		"click": {OK: false, Error: "no element matches selector"},
	}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	p, err := c.NewPage(ctx)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}

	if err := p.Click(ctx, "button.next"); err == nil {
		t.Fatal("expected click error")
	}
}

func TestClient_ElementsAndText(t *testing.T) {
	f := &fakeService{t: t, results: map[string]actionResult{
		"query": {OK: true, Elements: []struct {
			ID string `json:"id"`
		}{{ID: "e-1"}, {ID: "e-2"}}},
		"elementText": {OK: true, Value: "Backend Developer"},
	}}
	srv := httptest.NewServer(f.handler())
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	p, err := c.NewPage(ctx)
	if err != nil {
		t.Fatalf("new page: %v", err)
	}

	elements, err := p.Elements(ctx, "div.base-card")
	if err != nil {
		t.Fatalf("elements: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elements))
	}

	text, err := elements[0].Text(ctx, "h3")
	if err != nil {
		t.Fatalf("element text: %v", err)
	}
	if text != "Backend Developer" {
		t.Errorf("unexpected text %q", text)
	}

	if err := p.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if last := f.actions[len(f.actions)-1]; last != "close" {
		t.Errorf("expected final action close, got %q", last)
	}
}
