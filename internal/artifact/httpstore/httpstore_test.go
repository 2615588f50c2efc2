package httpstore

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/forgebuild/forge/internal/artifact"
)

func TestClientServerUploadFetchRoundTrip(t *testing.T) {
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Store: store}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL)
	want := []byte("hello over http")
	id, err := client.Upload(context.Background(), want)
	if err != nil {
		t.Fatal(err)
	}

	got, err := client.Fetch(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("Fetch(id) = %q, want %q", got, want)
	}
}

func TestClientFetchMissingBlobErrors(t *testing.T) {
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Store: store}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := NewClient(ts.URL)
	if _, err := client.Fetch(context.Background(), "deadbeef"); err == nil {
		t.Error("Fetch on an unknown id = nil error, want error")
	}
}

func TestHandleManifestForUnchunkedBlobIs404(t *testing.T) {
	store, err := artifact.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.Upload([]byte("tiny"))
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Store: store}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/manifest/" + string(id))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("GET /manifest/%s status = %d, want 404", id, resp.StatusCode)
	}
}
