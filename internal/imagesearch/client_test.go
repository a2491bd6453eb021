package imagesearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"key":        q.Get("key"),
			"q":          q.Get("q"),
			"page":       q.Get("page"),
			"per_page":   q.Get("per_page"),
			"image_type": q.Get("image_type"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":2,"totalHits":2,"hits":[
			{"id":1,"previewURL":"https://cdn.example/1_150.jpg","largeImageURL":"https://cdn.example/1_1280.jpg","tags":"guitar, music"},
			{"id":2,"previewURL":"https://cdn.example/2_150.jpg","largeImageURL":"https://cdn.example/2_1280.jpg","tags":"piano"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	hits, err := c.Search(context.Background(), "jazz club", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := map[string]string{
		"key":        "secret",
		"q":          "jazz club",
		"page":       "3",
		"per_page":   "12",
		"image_type": "photo",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("param %s = %q, want %q", k, got[k], v)
		}
	}

	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != 1 || hits[0].LargeImageURL != "https://cdn.example/1_1280.jpg" || hits[0].Tags != "guitar, music" {
		t.Errorf("hit 0 = %+v", hits[0])
	}
}

// TestSearchDefaults checks an empty query and page zero fall back to defaults.
func TestSearchDefaults(t *testing.T) {
	var q, page string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, page = r.URL.Query().Get("q"), r.URL.Query().Get("page")
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer srv.Close()

	hits, err := NewClient(srv.URL, "k").Search(context.Background(), "  ", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits", len(hits))
	}
	if q != "music" || page != "1" {
		t.Errorf("q=%q page=%q, want music and 1", q, page)
	}
}

func TestSearchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad key", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "[ERROR 400] Invalid or missing API key", http.StatusBadRequest)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, "k").Search(context.Background(), "music", 1)
			if !errors.Is(err, ErrSearch) {
				t.Errorf("err = %v, want ErrSearch", err)
			}
		})
	}
}

func TestSearchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, "k").Search(ctx, "music", 1)
	if !errors.Is(err, ErrSearch) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrSearch wrapping context.Canceled", err)
	}
}
