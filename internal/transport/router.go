package transport

import "net/http"

type Handler interface {
	generateBook(w http.ResponseWriter, r *http.Request)
	status(w http.ResponseWriter, r *http.Request)
	download(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h Handler
}

func NewRouter(h Handler) *router {
	return &router{h: h}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/api/generate-book", r.h.generateBook)
	mux.HandleFunc("/api/status", r.h.status)
	mux.HandleFunc("/api/download", r.h.download)

	return mux
}
