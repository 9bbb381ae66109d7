package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playperu/hiddencatch/internal/geometry"
)

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Width != 1000 || req.Height != 500 {
			t.Errorf("size = %dx%d", req.Width, req.Height)
		}
		json.NewEncoder(w).Encode(detectResponse{Objects: []DetectedObject{
			{ObjectName: "cup", Box2D: [4]float64{100, 200, 300, 400}, ModificationIdea: "Make the cup red."},
			{ObjectName: "lamp", Box2D: [4]float64{100, 500, 200, 600}},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret", time.Second, 0)
	got, err := c.Detect(context.Background(), []byte("img"), 1000, 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("objects = %+v", got)
	}
	if want := (geometry.Rect{X: 200, Y: 50, Width: 200, Height: 100}); got[0].Rect != want {
		t.Errorf("cup rect = %+v, want %+v", got[0].Rect, want)
	}
	if got[0].Label != "cup" || got[0].Prompt != "Make the cup red." {
		t.Errorf("cup = %+v", got[0])
	}
	if want := (geometry.Rect{X: 500, Y: 50, Width: 100, Height: 50}); got[1].Rect != want {
		t.Errorf("lamp rect = %+v, want %+v", got[1].Rect, want)
	}
}

func TestDetectBoxScale(t *testing.T) {
	tests := []struct {
		name        string
		clientScale float64
		body        string
		want        geometry.Rect
	}{
		{
			name:        "small box on thousand scale",
			clientScale: 1000,
			body:        `{"objects":[{"object_name":"pin","box_2d":[0.2,0.3,1,1]}]}`,
			want:        geometry.Rect{X: 0, Y: 0, Width: 1, Height: 1},
		},
		{
			name:        "configured unit scale",
			clientScale: 1,
			body:        `{"objects":[{"object_name":"cup","box_2d":[0.1,0.2,0.3,0.4]}]}`,
			want:        geometry.Rect{X: 200, Y: 50, Width: 200, Height: 100},
		},
		{
			name:        "response scale wins",
			clientScale: 1000,
			body:        `{"box_scale":1,"objects":[{"object_name":"cup","box_2d":[0.1,0.2,0.3,0.4]}]}`,
			want:        geometry.Rect{X: 200, Y: 50, Width: 200, Height: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL, "", time.Second, tt.clientScale).Detect(context.Background(), []byte("img"), 1000, 500)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].Rect != tt.want {
				t.Errorf("objects = %+v, want rect %+v", got, tt.want)
			}
		})
	}
}

func TestEdit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req editRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "Modify cup to create a difference." {
			t.Errorf("prompt = %q", req.Prompt)
		}
		mask, _ := base64.StdEncoding.DecodeString(req.MaskBase64)
		if string(mask) != "mask" {
			t.Errorf("mask = %q", mask)
		}
		json.NewEncoder(w).Encode(editResponse{ImageBase64: base64.StdEncoding.EncodeToString([]byte("edited"))})
	}))
	defer srv.Close()

	got, err := New(srv.URL, "", time.Second, 0).Edit(context.Background(), []byte("img"), []byte("mask"), "Modify cup to create a difference.")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "edited" {
		t.Errorf("got %q", got)
	}
}

func TestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/edit" {
			json.NewEncoder(w).Encode(editResponse{})
			return
		}
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, 0)
	if _, err := c.Detect(context.Background(), nil, 10, 10); err == nil {
		t.Error("expected detect error on 429")
	}
	if _, err := c.Edit(context.Background(), nil, nil, "p"); err == nil {
		t.Error("expected edit error on empty image")
	}
}

func TestDetectRejectsMalformedBoxes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing objects", `{}`},
		{"short box", `{"objects":[{"object_name":"cup","box_2d":[1,2,3]}]}`},
		{"negative coordinate", `{"objects":[{"object_name":"cup","box_2d":[-1,2,3,4]}]}`},
		{"missing name", `{"objects":[{"box_2d":[1,2,3,4]}]}`},
		{"zero box scale", `{"box_scale":0,"objects":[{"object_name":"cup","box_2d":[1,2,3,4]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "", time.Second, 0)
			if _, err := c.Detect(context.Background(), []byte("img"), 100, 100); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
