package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/shelly-fleet-core/internal/device"
	"github.com/nerrad567/shelly-fleet-core/internal/group"
)

// handleListGroups returns every group.
func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"groups": s.deps.Groups.List(),
	})
}

// createGroupRequest is the body of a group creation.
type createGroupRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	DeviceIDs   []string       `json:"device_ids"`
	Tags        []string       `json:"tags"`
	Config      map[string]any `json:"config"`
}

// handleCreateGroup persists a new group.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	g := &group.Group{
		Name:        req.Name,
		Description: req.Description,
		DeviceIDs:   req.DeviceIDs,
		Tags:        req.Tags,
		Config:      req.Config,
	}
	if err := s.deps.Groups.Create(g); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.deps.Groups.Get(req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleGetGroup returns one group.
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Groups.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// updateGroupRequest is the body of a group update. A non-empty NewName
// renames the group.
type updateGroupRequest struct {
	NewName     string         `json:"new_name"`
	Description *string        `json:"description"`
	DeviceIDs   []string       `json:"device_ids"`
	Tags        []string       `json:"tags"`
	Config      map[string]any `json:"config"`
}

// handleUpdateGroup updates or renames a group.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	if req.NewName != "" && req.NewName != name {
		if err := s.deps.Groups.Rename(name, req.NewName); err != nil {
			writeDomainError(w, err)
			return
		}
		name = req.NewName
	}

	g, err := s.deps.Groups.Get(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if req.Description != nil {
		g.Description = *req.Description
	}
	if req.DeviceIDs != nil {
		g.DeviceIDs = req.DeviceIDs
	}
	if req.Tags != nil {
		g.Tags = req.Tags
	}
	if req.Config != nil {
		g.Config = req.Config
	}

	if err := s.deps.Groups.Update(g); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// handleDeleteGroup removes a group.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.deps.Groups.Delete(name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": name})
}

// handleGroupAddDevice appends a MAC to a group.
func (s *Server) handleGroupAddDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := device.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	g, err := s.deps.Groups.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if g.AddDevice(mac) {
		if err := s.deps.Groups.Update(g); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, g)
}

// handleGroupRemoveDevice removes a MAC from a group.
func (s *Server) handleGroupRemoveDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := device.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	g, err := s.deps.Groups.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if g.RemoveDevice(mac) {
		if err := s.deps.Groups.Update(g); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, g)
}

// groupOperateRequest is the body of a group operation.
type groupOperateRequest struct {
	Verb           string         `json:"verb"`
	Args           map[string]any `json:"args"`
	Confirm        bool           `json:"confirm"`
	RebootIfNeeded bool           `json:"reboot_if_needed"`
}

// handleGroupOperate fans a control verb out across a group. The reserved
// name all-devices targets the whole registry (confirmation rules apply).
func (s *Server) handleGroupOperate(w http.ResponseWriter, r *http.Request) {
	var req groupOperateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := s.deps.Executor.Execute(r.Context(), group.Request{
		GroupName:      chi.URLParam(r, "name"),
		Kind:           group.ActionVerb,
		Verb:           req.Verb,
		Args:           req.Args,
		Confirm:        req.Confirm,
		RebootIfNeeded: req.RebootIfNeeded,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.hub.Broadcast("group_run", result)
	writeJSON(w, http.StatusOK, result)
}

// groupApplyRequest is the body of a bulk parameter apply.
type groupApplyRequest struct {
	Parameter      string         `json:"parameter"`
	Value          any            `json:"value"`
	Values         map[string]any `json:"values"`
	Confirm        bool           `json:"confirm"`
	RebootIfNeeded bool           `json:"reboot_if_needed"`
}

// handleGroupApply writes one or many parameters across a group.
func (s *Server) handleGroupApply(w http.ResponseWriter, r *http.Request) {
	var req groupApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	request := group.Request{
		GroupName:      chi.URLParam(r, "name"),
		Confirm:        req.Confirm,
		RebootIfNeeded: req.RebootIfNeeded,
	}
	if len(req.Values) > 0 {
		request.Kind = group.ActionBulkSet
		request.Values = req.Values
	} else {
		request.Kind = group.ActionSet
		request.Parameter = req.Parameter
		request.Value = req.Value
	}

	result, err := s.deps.Executor.Execute(r.Context(), request)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.hub.Broadcast("group_run", result)
	writeJSON(w, http.StatusOK, result)
}
