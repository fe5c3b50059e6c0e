package api

import (
	_ "embed"
	"net/http"
)

//go:embed static/admin.html
var adminPageHTML []byte

func (s *Server) adminPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(adminPageHTML); err != nil {
		s.logger.Error("admin page write failed")
	}
}
