package web

import (
	"net/http"
	"strconv"

	"github.com/vbonduro/shopscan/internal/cart"
)

// confirmed reports whether the client confirmed a destructive cart change.
// Unconfirmed requests get 428 and leave the cart untouched.
func (s *Server) confirmed(w http.ResponseWriter, r *http.Request, message string) bool {
	if r.URL.Query().Get("confirm") == "true" {
		return true
	}
	jsonError(w, s.logger, http.StatusPreconditionRequired, message)
	return false
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Touch()
	jsonResponse(w, s.logger, http.StatusOK, sess.Cart())
}

func (s *Server) handleRemoveCartEntry(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid cart index")
		return
	}
	if !s.confirmed(w, r, "confirm=true is required to remove a cart item") {
		return
	}

	removed, err := sess.RemoveCartEntry(index)
	if err != nil {
		s.writeError(w, r, "remove cart entry", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusOK, struct {
		Removed cart.Entry `json:"removed"`
		Cart    cart.View  `json:"cart"`
	}{removed, sess.Cart()})
}

func (s *Server) handleClearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !s.confirmed(w, r, "confirm=true is required to clear the cart") {
		return
	}
	sess.ClearCart()
	jsonResponse(w, s.logger, http.StatusOK, sess.Cart())
}
