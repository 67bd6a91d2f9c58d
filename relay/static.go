// Package relay is the session and streaming fabric: peer registries, control
// sessions, and the per-download rendezvous between uploads and downloads.
/*
 * Copyright (c) 2024-2025, NVIDIA CORPORATION. All rights reserved.
 */
package relay

import (
	"embed"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fileflow/fileflow/cmn/cos"
)

//go:embed client
var clientFS embed.FS

// staticHandler serves the web client: embedded assets by default, an
// on-disk directory when the front-end was pointed at one.
type staticHandler struct {
	dir string // empty => embedded
}

func newStaticHandler(dir string) http.Handler { return &staticHandler{dir: dir} }

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, r.Method+" not allowed", http.StatusMethodNotAllowed)
		return
	}
	decoded, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	for _, name := range candidates(decoded) {
		data, err := h.read(name)
		if err != nil {
			continue
		}
		w.Header().Set(cos.HdrContentType, guessMime(name))
		w.Write(data)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

func (h *staticHandler) read(name string) ([]byte, error) {
	if h.dir != "" {
		full := filepath.Join(h.dir, filepath.FromSlash(name))
		// keep the lookup inside the override directory
		if !strings.HasPrefix(full, filepath.Clean(h.dir)+string(os.PathSeparator)) {
			return nil, os.ErrNotExist
		}
		return os.ReadFile(full)
	}
	return clientFS.ReadFile(path.Join("client", name))
}

// candidates resolves a request path into the file names to try, in order.
func candidates(p string) []string {
	switch {
	case p == "" || p == "/":
		return []string{"index.html"}
	case strings.HasSuffix(p, "/"):
		return []string{p + "index.html"}
	default:
		return []string{p, p + "/index.html"}
	}
}
