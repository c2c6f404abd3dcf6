package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"scorebatch/internal/settings"
	"scorebatch/internal/task"
)

type taskResponse struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Status         task.Status `json:"status"`
	JobID          string      `json:"job_id,omitempty"`
	ResultLocation string      `json:"result_location,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	CreatedAt      string      `json:"created_at"`
}

type API struct {
	manager  *task.Manager
	settings *settings.Store
}

func NewAPI(manager *task.Manager, settingsStore *settings.Store) *API {
	return &API{manager: manager, settings: settingsStore}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/queue/files", a.AddFiles)
		api.GET("/queue", a.ListQueue)
		api.POST("/queue/run", a.RunNow)
		api.DELETE("/queue/:id", a.RemoveTask)
		api.DELETE("/queue", a.ClearQueue)
		api.GET("/history", a.History)
		api.GET("/settings", a.GetSettings)
		api.PUT("/settings", a.UpdateSettings)
	}
}

// AddFiles accepts a multipart batch of files, queues one idle task per file
// with a collision-free name, and arms the debounced auto-run.
func (a *API) AddFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		log.Warn().Err(err).Msg("invalid multipart request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart request"})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	incoming := make([]task.Incoming, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			log.Warn().Str("file", fh.Filename).Err(err).Msg("failed to open uploaded file")
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file: " + fh.Filename})
			return
		}
		defer f.Close()
		incoming = append(incoming, task.Incoming{Name: fh.Filename, Payload: f})
	}

	created, err := a.manager.Add(incoming)
	if err != nil {
		log.Warn().Err(err).Msg("failed to queue files")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]taskResponse, 0, len(created))
	for i := range created {
		resp = append(resp, toTaskResponse(&created[i]))
	}
	c.JSON(http.StatusCreated, gin.H{"tasks": resp})
}

// ListQueue returns all tasks in insertion order.
func (a *API) ListQueue(c *gin.Context) {
	snap := a.manager.Snapshot()
	resp := make([]taskResponse, 0, len(snap))
	for i := range snap {
		resp = append(resp, toTaskResponse(&snap[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tasks": resp})
}

// RunNow starts a batch run immediately, bypassing the debounce. A run that
// is already active makes this a no-op.
func (a *API) RunNow(c *gin.Context) {
	a.manager.RunNow()
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}

// RemoveTask deletes a task optimistically; the caller is expected to have
// confirmed the action with the user already.
func (a *API) RemoveTask(c *gin.Context) {
	id := c.Param("id")
	removed, err := a.manager.Remove(id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := toTaskResponse(&removed)
	c.JSON(http.StatusOK, gin.H{"removed": resp})
}

// ClearQueue removes every task and issues one batch deletion remotely.
func (a *API) ClearQueue(c *gin.Context) {
	n := a.manager.Clear()
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// History proxies the engine's historical listing.
func (a *API) History(c *gin.Context) {
	reports, err := a.manager.Reports(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("history listing failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "engine unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// GetSettings returns the persisted user settings.
func (a *API) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.settings.Get())
}

// UpdateSettings replaces and persists the user settings. Changes apply to
// the next batch run, never to one already in flight.
func (a *API) UpdateSettings(c *gin.Context) {
	var next settings.Settings
	if err := c.ShouldBindJSON(&next); err != nil {
		log.Warn().Err(err).Msg("invalid settings update")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	saved, err := a.settings.Update(next)
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist settings"})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func toTaskResponse(t *task.Task) taskResponse {
	return taskResponse{
		ID:             t.ID,
		Name:           t.Name,
		Status:         t.Status,
		JobID:          t.JobID,
		ResultLocation: t.ResultLocation,
		ErrorMessage:   t.ErrorMessage,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
