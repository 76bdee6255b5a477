package httpserver

import (
	"net/http"

	"github.com/al-bashkir/simplifyhealth/internal/catalog"
)

// CatalogResponse is the main screen
type CatalogResponse struct {
	Title      string         `json:"title"`
	Background string         `json:"background"`
	Tiles      []catalog.Tile `json:"tiles"`
}

// requireSignedIn answers 401 unless a user is signed in.
func (s *Server) requireSignedIn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.info.Current().IsSignedIn() {
			writeJSON(w, http.StatusUnauthorized, SessionResponse{Error: "Sign in to continue."})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.deps.Catalog()
	writeJSON(w, http.StatusOK, CatalogResponse{
		Title:      cat.Title,
		Background: cat.Background.Hex(),
		Tiles:      cat.Tiles(),
	})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	category, ok := s.deps.Catalog().Category(r.PathValue("slug"))
	if !ok {
		writeJSON(w, http.StatusNotFound, SessionResponse{Error: "Unknown category."})
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog().Contact)
}
