package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"citybuilder/pkg/domain"
)

// mutationResponse is returned by every collection mutation. Unknown ids are
// not errors: Applied reports whether anything changed.
type mutationResponse struct {
	Applied bool           `json:"applied"`
	House   *domain.House  `json:"house,omitempty"`
	Houses  []domain.House `json:"houses"`
}

type patchHouseRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type setFloorsRequest struct {
	Count *int `json:"count" validate:"required"`
}

type recolorFloorRequest struct {
	Color *string `json:"color" validate:"required"`
}

type reorderRequest struct {
	MovedID  string `json:"moved_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

func (s *Server) respond(w http.ResponseWriter, status int, house domain.House, applied bool) {
	resp := mutationResponse{Applied: applied, Houses: s.store.Snapshot()}
	if applied {
		resp.House = &house
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"houses": s.store.Snapshot()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	h, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "house not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"house": h})
}

func (s *Server) handleAdd(w http.ResponseWriter, _ *http.Request) {
	h := s.store.Add()
	s.respond(w, http.StatusOK, h, true)
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	h, ok := s.store.Duplicate(mux.Vars(r)["id"])
	s.respond(w, http.StatusOK, h, ok)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var req patchHouseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == nil && req.Color == nil {
		writeError(w, http.StatusBadRequest, "name or color required")
		return
	}
	id := mux.Vars(r)["id"]
	var (
		h       domain.House
		applied bool
	)
	if req.Name != nil {
		h, applied = s.store.Rename(id, *req.Name)
	}
	if req.Color != nil {
		var ok bool
		if h, ok = s.store.RecolorHouse(id, *req.Color); ok {
			applied = true
		}
	}
	s.respond(w, http.StatusOK, h, applied)
}

func (s *Server) handleSetFloors(w http.ResponseWriter, r *http.Request) {
	var req setFloorsRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, ok := s.store.SetFloorCount(mux.Vars(r)["id"], *req.Count)
	s.respond(w, http.StatusOK, h, ok)
}

func (s *Server) handleRecolorFloor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	floorID, err := strconv.Atoi(vars["floorId"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "floor id must be an integer")
		return
	}
	var req recolorFloorRequest
	if !s.decode(w, r, &req) {
		return
	}
	h, ok := s.store.RecolorFloor(vars["id"], floorID, *req.Color)
	s.respond(w, http.StatusOK, h, ok)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok := s.store.RequestRemoval(id)
	h, _ := s.store.Get(id)
	s.respond(w, http.StatusAccepted, h, ok)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !s.decode(w, r, &req) {
		return
	}
	houses, ok := s.store.Reorder(req.MovedID, req.TargetID)
	writeJSON(w, http.StatusOK, mutationResponse{Applied: ok, Houses: houses})
}
