package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/satoshigo/hunt/internal/lifecycle"
	"github.com/satoshigo/hunt/pkg/core"
	"github.com/satoshigo/hunt/pkg/streaming"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		Uptime:          time.Since(s.startTime).Round(time.Second).String(),
		PendingFundings: s.mgr.PendingLen(),
	})
}

// Games

func (s *Server) handleAdminGames(w http.ResponseWriter, r *http.Request) {
	wallet := walletFrom(r.Context())
	ids := []string{wallet.ID}
	if r.URL.Query().Has("all_wallets") {
		ids = s.wallets.Siblings(wallet)
	}
	games, err := s.mgr.ListGamesForWallets(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameResponses(games))
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.mgr.ListGames(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameResponses(games))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.mgr.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameResponse(g))
}

func (s *Server) handleGetGameAdmin(w http.ResponseWriter, r *http.Request) {
	g, err := s.mgr.GetGameForWallet(r.Context(), walletFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameResponse(g))
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wallet := walletFrom(r.Context())
	g, err := s.mgr.CreateGame(r.Context(), wallet.ID, wallet.InvoiceKey, lifecycle.GameInput(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, gameResponse(g))
}

func (s *Server) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, err := s.mgr.UpdateGame(r.Context(), walletFrom(r.Context()).ID, chi.URLParam(r, "id"), lifecycle.GameInput(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameResponse(g))
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.DeleteGame(r.Context(), walletFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEnterGame(w http.ResponseWriter, r *http.Request) {
	var req EnterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	g, p, err := s.claims.EnterGame(r.Context(), req.InKey, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, EnterResponse{Game: gameResponse(g), Player: playerResponse(p, true)})
}

func (s *Server) handleGamePlayers(w http.ResponseWriter, r *http.Request) {
	wallet := walletFrom(r.Context())
	ids := []string{wallet.ID}
	if r.URL.Query().Has("all_wallets") {
		ids = s.wallets.Siblings(wallet)
	}
	players, err := s.mgr.ListPlayersForWallets(r.Context(), ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]PlayerResponse, 0, len(players))
	for _, p := range players {
		out = append(out, playerResponse(p, false))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// Funding

func (s *Server) handleRequestFunding(w http.ResponseWriter, r *http.Request) {
	var req FundingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	topLeft, bottomRight, err := req.corners()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, pr, err := s.mgr.RequestFunding(r.Context(), lifecycle.FundingRequest{
		GameID:      req.GameID,
		TopLeft:     topLeft,
		BottomRight: bottomRight,
		Amount:      req.Sats,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, FundingCreatedResponse{Funding: fundingResponse(f), PaymentRequest: pr})
}

func (s *Server) handlePollFunding(w http.ResponseWriter, r *http.Request) {
	st, err := s.mgr.PollAndConfirm(r.Context(), chi.URLParam(r, "gameID"), chi.URLParam(r, "paymentHash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FundingStatusResponse(st))
}

func (s *Server) handleGetFunding(w http.ResponseWriter, r *http.Request) {
	f, err := s.mgr.GetFunding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fundingResponse(f))
}

// Items and areas

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.mgr.CreateItem(r.Context(), walletFrom(r.Context()).ID, lifecycle.ItemInput(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, streaming.FromItem(it))
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	it, err := s.mgr.UpdateItem(r.Context(), walletFrom(r.Context()).ID, chi.URLParam(r, "id"), lifecycle.ItemInput(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.FromItem(it))
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	player, err := s.mgr.GetPlayerByKey(r.Context(), req.InKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	itemID := chi.URLParam(r, "id")
	var it core.Item
	switch {
	case req.Lon != nil && req.Lat != nil:
		it, err = s.claims.CollectAt(r.Context(), player.ID, itemID, core.Coordinate{Lon: *req.Lon, Lat: *req.Lat})
	case s.claims.RequiresPosition():
		err = fmt.Errorf("lon and lat are required: %w", core.ErrInvalidInput)
	default:
		it, err = s.claims.Collect(r.Context(), player.ID, itemID)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.FromItem(it))
}

func (s *Server) handleFindAreas(w http.ResponseWriter, r *http.Request) {
	var req FindAreasRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	center, err := req.center()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	areas, err := s.mgr.FindAreas(r.Context(), center.Lon, center.Lat, req.Radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, areaResponses(areas))
}

func (s *Server) handleGetArea(w http.ResponseWriter, r *http.Request) {
	a, err := s.mgr.GetArea(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, streaming.FromArea(a))
}

// Players

func (s *Server) handleRegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.mgr.RegisterPlayer(r.Context(), req.UserName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, playerResponse(p, true))
}

func (s *Server) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.mgr.UpdatePlayer(r.Context(), chi.URLParam(r, "id"), req.UserName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playerResponse(p, false))
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.mgr.GetPlayer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playerResponse(p, false))
}

func (s *Server) handleGetPlayerByKey(w http.ResponseWriter, r *http.Request) {
	p, err := s.mgr.GetPlayerByKey(r.Context(), chi.URLParam(r, "inkey"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, playerResponse(p, true))
}
