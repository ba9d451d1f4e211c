package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"llmd/internal/manager"
	"llmd/pkg/types"
)

// listModels godoc
// @Summary      List model artifacts
// @Tags         models
// @Produce      json
// @Success      200  {array}   types.Model
// @Failure      500  {object}  types.ErrorResponse
// @Router       /v1/models [get]
func (a *api) listModels(w http.ResponseWriter, r *http.Request) {
	models := a.models.ListAvailable()
	if models == nil {
		models = []types.Model{}
	}
	writeJSON(w, http.StatusOK, models)
}

// loadModel godoc
// @Summary      Load a model into the cache
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.LoadModelRequest  true  "Model and category"
// @Success      200   {object}  types.MessageResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Router       /v1/models/load [post]
func (a *api) loadModel(w http.ResponseWriter, r *http.Request) {
	var req types.LoadModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || req.Type == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing required parameters: model and type")
		return
	}
	c, err := types.ParseCategory(req.Type)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	if _, err := a.models.Acquire(ctx, req.Model, c); err != nil {
		if r.Context().Err() != nil {
			return
		}
		// The artifact is missing from the requested category's directory.
		var wc *manager.WrongCategoryError
		if errors.As(err, &wc) && wc.Path != "" {
			err = wc.AsNotFound()
		}
		writeManagementFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Model loaded successfully"})
}

// unloadModel godoc
// @Summary      Unload a cached model
// @Tags         models
// @Accept       json
// @Produce      json
// @Param        body  body      types.UnloadModelRequest  true  "Model name"
// @Success      200   {object}  types.MessageResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Router       /v1/models/unload [post]
func (a *api) unloadModel(w http.ResponseWriter, r *http.Request) {
	var req types.UnloadModelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing required parameter: model")
		return
	}
	if !a.models.Unload(req.Model) {
		writeJSONError(w, http.StatusNotFound, "Model not loaded")
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: "Model unloaded successfully"})
}
