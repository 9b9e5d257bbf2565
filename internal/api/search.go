package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"vidscribe/internal/retrieval"
	"vidscribe/internal/synthesis"
)

// Search actions accepted by POST /api/search.
const (
	ActionKeyword  = "keyword"
	ActionSemantic = "semantic"
	ActionAsk      = "ask"
	ActionIndex    = "index"
)

func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid search request", err))
		return
	}
	folder := strings.TrimSpace(req.OutputFolder)
	if folder == "" {
		folder = s.cfg.Paths.OutputDir
	}
	ctx := c.Request.Context()

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case ActionKeyword:
		results, err := s.engine.Keyword(ctx, folder, req.Query, req.CaseSensitive)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ResultsResponse{Success: true, Results: nonNilResults(results)})
	case ActionSemantic:
		results, err := s.engine.Semantic(ctx, folder, req.Query)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ResultsResponse{Success: true, Results: nonNilResults(results)})
	case ActionAsk:
		engine, err := s.askEngine(req.LLMConfig)
		if err != nil {
			s.writeError(c, err)
			return
		}
		answer, err := engine.Ask(ctx, folder, req.Query)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, AnswerResponse{Success: true, Answer: answer})
	case ActionIndex:
		summary, err := s.engine.Index(ctx, folder)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, IndexResponse{Success: true, Index: summary})
	default:
		s.writeError(c, badRequest("unknown action "+strconv.Quote(req.Action)+" (expected keyword, semantic, ask, or index)", nil))
	}
}

// askEngine honours a per-request provider override.
func (s *Server) askEngine(override *SearchLLM) (*retrieval.Engine, error) {
	if override == nil || strings.TrimSpace(override.Provider) == "" {
		return s.engine, nil
	}
	synth, err := synthesis.NewService(s.cfg.LLMFor(override.Provider, override.APIKey, override.Model), s.logger)
	if err != nil {
		return nil, err
	}
	return s.engine.WithSynthesis(synth), nil
}

// nonNilResults keeps an empty result set encoded as [] rather than null.
func nonNilResults(results []retrieval.Result) []retrieval.Result {
	if results == nil {
		return []retrieval.Result{}
	}
	return results
}
