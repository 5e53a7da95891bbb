package handler

import "net/http"

// NewAPI registers the authenticated game routes. Paths are relative to the
// /api/v1 prefix.
func NewAPI(games *GameHandler, orders *OrderHandler, phases *PhaseHandler) *http.ServeMux {
	api := http.NewServeMux()
	api.HandleFunc("POST /games", games.CreateGame)
	api.HandleFunc("GET /games", games.ListGames)
	api.HandleFunc("GET /games/{id}", games.GetGame)
	api.HandleFunc("GET /games/{id}/board", games.Board)
	api.HandleFunc("POST /games/{id}/orders", orders.SubmitOrders)
	api.HandleFunc("GET /games/{id}/orders", orders.ListOrders)
	api.HandleFunc("POST /games/{id}/orders/ready", orders.MarkReady)
	api.HandleFunc("DELETE /games/{id}/orders/ready", orders.UnmarkReady)
	api.HandleFunc("GET /games/{id}/phases", phases.ListPhases)
	api.HandleFunc("GET /games/{id}/phases/{phaseId}/results", phases.PhaseResults)
	api.HandleFunc("PUT /games/{id}/phases/{phaseId}/modifiers", phases.SetModifiers)
	return api
}
