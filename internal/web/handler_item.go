package web

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/shopscan/internal/domain"
	"github.com/vbonduro/shopscan/internal/service"
)

const maxItemNameLen = 200

type itemRequest struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Cost decimal.Decimal `json:"cost"`
}

func (req itemRequest) input() (service.ItemInput, bool) {
	if len(req.Name) > maxItemNameLen {
		return service.ItemInput{}, false
	}
	return service.ItemInput{Code: req.Code, Name: req.Name, Cost: req.Cost}, true
}

// currentShop returns the signed-in user's shop, creating it on first use.
func (s *Server) currentShop(ctx context.Context) (*domain.Shop, error) {
	claims := getClaims(ctx)
	return s.shops.EnsureShop(ctx, claims.UserID, claims.Email, "")
}

func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	shop, err := s.currentShop(ctx)
	if err != nil {
		s.writeError(w, r, "get shop", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusOK, shop)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	shop, err := s.currentShop(ctx)
	if err != nil {
		s.writeError(w, r, "get shop", err)
		return
	}
	items, err := s.shops.ListItems(ctx, shop)
	if err != nil {
		s.writeError(w, r, "list items", err)
		return
	}
	if items == nil {
		items = []*domain.Item{}
	}
	jsonResponse(w, s.logger, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	in, ok := req.input()
	if !ok {
		jsonError(w, s.logger, http.StatusBadRequest, "item name too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	shop, err := s.currentShop(ctx)
	if err != nil {
		s.writeError(w, r, "get shop", err)
		return
	}
	item, err := s.shops.CreateItem(ctx, shop, in)
	if err != nil {
		s.writeError(w, r, "create item", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	in, ok := req.input()
	if !ok {
		jsonError(w, s.logger, http.StatusBadRequest, "item name too long")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	shop, err := s.currentShop(ctx)
	if err != nil {
		s.writeError(w, r, "get shop", err)
		return
	}
	item, err := s.shops.UpdateItem(ctx, shop, r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, r, "update item", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	shop, err := s.currentShop(ctx)
	if err != nil {
		s.writeError(w, r, "get shop", err)
		return
	}
	if err := s.shops.DeleteItem(ctx, shop, r.PathValue("id")); err != nil {
		s.writeError(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLookupItem finds an item by code in any shop.
func (s *Server) handleLookupItem(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		jsonError(w, s.logger, http.StatusBadRequest, "code required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	item, err := s.shops.FindByCode(ctx, code)
	if err != nil {
		s.writeError(w, r, "lookup item", err)
		return
	}
	jsonResponse(w, s.logger, http.StatusOK, item)
}
