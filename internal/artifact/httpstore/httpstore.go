// Package httpstore exposes an artifact.Store over HTTP: fetch(id) as a
// GET and upload(id) as a PUT, plus a manifest endpoint for chunked blobs.
//
// Grounded on cmd/distri/export.go's repo-serving HTTP handler (same
// net/http.Server + tcpKeepAliveListener shape) and its gzipped.FileServer
// usage for serving pre-compressed static files, generalized from serving
// a package repository to serving individual content-addressed blobs.
package httpstore

import (
	"context"
	"io"
	"io/ioutil"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/lpar/gzipped/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/internal/artifact"
	"github.com/forgebuild/forge/internal/fingerprint"
)

// tcpKeepAliveListener mirrors the teacher's copy from net/http/server.go,
// enabling TCP keepalives on accepted connections.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	return tc, nil
}

// Server serves a Store's blobs over HTTP. /blob returns a blob's
// decompressed bytes (via Store.Fetch) on GET and stores an upload on PUT;
// /manifest writes a blob's chunk ids as text, one per line; /static serves the store's backing directory via
// gzipped.FileServer for plain HTTP clients that would rather fetch a
// pre-gzipped manifest listing than speak the chunked protocol.
type Server struct {
	Store *artifact.Store
	Root  string
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/blob/", s.handleBlob)
	mux.HandleFunc("/manifest/", s.handleManifest)
	if s.Root != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", gzipped.FileServer(http.Dir(s.Root))))
	}
	return mux
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	id := fingerprint.Content(strings.TrimPrefix(r.URL.Path, "/blob/"))
	switch r.Method {
	case http.MethodGet:
		data, err := s.Store.Fetch(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Write(data)
	case http.MethodPut:
		data, err := ioutil.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got, err := s.Store.Upload(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Write([]byte(got))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	id := fingerprint.Content(strings.TrimPrefix(r.URL.Path, "/manifest/"))
	manifest, err := s.Store.FetchManifest(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	for _, c := range manifest.Chunks {
		io.WriteString(w, string(c)+"\n")
	}
}

// Serve runs the HTTP server at listen until ctx is cancelled, in the same
// errgroup-driven shutdown shape as cmd/distri/export.go's export().
func Serve(ctx context.Context, listen string, srv *Server) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return xerrors.Errorf("httpstore: listen %s: %w", listen, err)
	}
	server := &http.Server{Addr: ln.Addr().String(), Handler: srv.Handler()}
	log.Printf("artifact store serving on %s", ln.Addr())

	var eg errgroup.Group
	eg.Go(func() error { return server.Serve(tcpKeepAliveListener{ln.(*net.TCPListener)}) })
	eg.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})
	err = eg.Wait()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
