package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"autodidact/services"

	"github.com/gorilla/mux"
)

type GraphHandler struct {
	service *services.GraphService
}

func NewGraphHandler(service *services.GraphService) *GraphHandler {
	return &GraphHandler{service: service}
}

func (h *GraphHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/nodes/{id}", h.GetNode).Methods("GET")
	router.HandleFunc("/projects/{id}/next-nodes", h.GetNextNodes).Methods("GET")
}

func (h *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["id"]
	log.Printf("[INFO] Received get node request for %s", nodeID)

	node, err := h.service.GetNode(r.Context(), nodeID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			h.writeErrorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("[ERROR] Failed to get node %s: %v", nodeID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to get node")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, node)
}

func (h *GraphHandler) GetNextNodes(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	log.Printf("[INFO] Received next nodes request for project %s", projectID)

	nodes, err := h.service.GetNextNodes(r.Context(), projectID)
	if err != nil {
		log.Printf("[ERROR] Failed to get next nodes for project %s: %v", projectID, err)
		h.writeErrorResponse(w, http.StatusInternalServerError, "Failed to get next nodes")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{"nodes": nodes})
}

func (h *GraphHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *GraphHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
