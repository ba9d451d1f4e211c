package httpapi

import (
	"net/http"
	"strings"

	"llmd/internal/manager"
	"llmd/pkg/types"
)

// embeddings godoc
// @Summary      Create embeddings
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        body  body      types.EmbeddingRequest  true  "Embedding request"
// @Success      200   {object}  types.EmbeddingResponse
// @Failure      400   {object}  types.OpenAIError
// @Failure      404   {object}  types.OpenAIError
// @Failure      500   {object}  types.OpenAIError
// @Router       /v1/embeddings [post]
func (a *api) embeddings(w http.ResponseWriter, r *http.Request) {
	var req types.EmbeddingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || len(req.Input) == 0 {
		badRequest(w, "Missing required parameters: model and input")
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var vecs [][]float32
	err := a.withModel(ctx, req.Model, types.CategoryEmbedding, func(lm *manager.LoadedModel) error {
		var err error
		vecs, err = lm.Embed(ctx, req.Input)
		return err
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeOpenAIFailure(w, err)
		return
	}
	resp := types.EmbeddingResponse{
		Object: "list",
		Data:   make([]types.EmbeddingData, len(vecs)),
		Model:  req.Model,
		Usage:  types.UnknownUsage(),
	}
	for i, v := range vecs {
		resp.Data[i] = types.EmbeddingData{Object: "embedding", Embedding: v, Index: i}
	}
	writeJSON(w, http.StatusOK, resp)
}

// rerank godoc
// @Summary      Rerank documents against a query
// @Tags         openai
// @Accept       json
// @Produce      json
// @Param        body  body      types.RerankRequest  true  "Rerank request"
// @Success      200   {object}  types.RerankResponse
// @Failure      400   {object}  types.OpenAIError
// @Failure      404   {object}  types.OpenAIError
// @Failure      500   {object}  types.OpenAIError
// @Router       /v1/rerank [post]
func (a *api) rerank(w http.ResponseWriter, r *http.Request) {
	var req types.RerankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" || req.Query == "" || len(req.Documents) == 0 {
		badRequest(w, "Missing required parameters: model, query and documents")
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var ranked []manager.Ranked
	err := a.withModel(ctx, req.Model, types.CategoryReranker, func(lm *manager.LoadedModel) error {
		var err error
		ranked, err = lm.Rank(ctx, req.Query, req.Documents)
		return err
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeOpenAIFailure(w, err)
		return
	}
	resp := types.RerankResponse{
		Object: "list",
		Model:  req.Model,
		Data:   make([]types.RerankResult, len(ranked)),
		Usage:  types.UnknownUsage(),
	}
	for i, rk := range ranked {
		resp.Data[i] = types.RerankResult{
			Object:         "rerank_result",
			Document:       rk.Document,
			RelevanceScore: rk.Score,
			Index:          i,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
