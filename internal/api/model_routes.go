package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"vidscribe/internal/jobs"
	"vidscribe/internal/models"
	"vidscribe/internal/protocol"
	"vidscribe/internal/services"
)

var errDownloadRunning = errors.New("model download already running")

// ModelEntry pairs a catalog entry with what the cache holds.
type ModelEntry struct {
	models.Info
	Size   string        `json:"approx_size"`
	Cached models.Record `json:"cached"`
}

func (s *Server) handleListModels(c *gin.Context) {
	records := models.ScanAll(s.cfg.Transcription.ModelCacheDir)
	out := make([]ModelEntry, 0, len(models.Catalog))
	for i, info := range models.Catalog {
		out = append(out, ModelEntry{Info: info, Size: info.ApproxSize(), Cached: records[i]})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

func (s *Server) handleVerifyModel(c *gin.Context) {
	rec, err := s.models.Verify(c.Request.Context(), c.Param("model"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleDownloadModel blocks until the worker finishes. Progress lines go out
// on the event stream as download_progress.
func (s *Server) handleDownloadModel(c *gin.Context) {
	model := c.Param("model")
	if !s.claimDownload(model) {
		s.writeError(c, fmt.Errorf("%w: %s", errDownloadRunning, model))
		return
	}
	defer s.releaseDownload(model)

	bus := s.jobs.Bus()
	result, err := s.models.Download(c.Request.Context(), model, func(ev protocol.Event) {
		out := jobs.Event{Type: jobs.EventDownloadProgress, Message: ev.Text, Data: model}
		if ev.Kind == protocol.EventProgress {
			out.Current, out.Total = ev.Current, ev.Total
			out.Message = fmt.Sprintf("downloading %s", model)
		}
		if out.Message == "" {
			return
		}
		bus.Publish(out)
	})
	if err != nil {
		if errors.Is(err, services.ErrExternalTool) && result.Model != "" {
			if result.Message == "" {
				result.Message = err.Error()
			}
			c.JSON(http.StatusBadGateway, result)
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) claimDownload(model string) bool {
	s.downloadsMu.Lock()
	defer s.downloadsMu.Unlock()
	if s.downloads[model] {
		return false
	}
	s.downloads[model] = true
	return true
}

func (s *Server) releaseDownload(model string) {
	s.downloadsMu.Lock()
	defer s.downloadsMu.Unlock()
	delete(s.downloads, model)
}
