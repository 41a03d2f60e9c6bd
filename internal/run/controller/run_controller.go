package controller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"judgegate/internal/common/http/middleware"
	"judgegate/internal/run/admission"
	"judgegate/internal/run/disclosure"
	"judgegate/internal/run/model"
	"judgegate/internal/run/service"
	"judgegate/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// RunService is the run API consumed by the controller.
type RunService interface {
	Create(ctx context.Context, in service.CreateInput) (*admission.Result, error)
	Status(ctx context.Context, viewer model.Identity, guid string) (*disclosure.StatusView, error)
	Details(ctx context.Context, viewer model.Identity, guid string) (*disclosure.DetailsView, error)
	Source(ctx context.Context, viewer model.Identity, guid string) (*disclosure.SourceView, error)
	Download(ctx context.Context, viewer model.Identity, guid string, showDiff bool) (*disclosure.Download, error)
	Rejudge(ctx context.Context, viewer model.Identity, guid string, debug bool) error
	Disqualify(ctx context.Context, viewer model.Identity, guid string) error
	List(ctx context.Context, viewer model.Identity, in service.ListInput) ([]service.RunSummary, error)
	Counts(ctx context.Context) (*service.Counts, error)
}

// RunController handles run HTTP endpoints.
type RunController struct {
	runService RunService
}

// NewRunController creates a new RunController.
func NewRunController(runService RunService) *RunController {
	return &RunController{runService: runService}
}

// Register mounts the run routes on group.
func (h *RunController) Register(group *gin.RouterGroup) {
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/counts", h.Counts)
	group.GET("/:guid/status", h.Status)
	group.GET("/:guid/details", h.Details)
	group.GET("/:guid/source", h.Source)
	group.GET("/:guid/download", h.Download)
	group.POST("/:guid/rejudge", h.Rejudge)
	group.POST("/:guid/disqualify", h.Disqualify)
}

// Create handles submission requests.
func (h *RunController) Create(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.runService.Create(c.Request.Context(), service.CreateInput{
		Identity:     viewer,
		ProblemAlias: req.ProblemAlias,
		Language:     req.Language,
		Source:       req.Source,
		ProblemsetID: req.ProblemsetID,
		ContestAlias: req.ContestAlias,
		ClientIP:     c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := CreateResponse{
		GUID:                    result.GUID,
		SubmitDelay:             result.SubmitDelay,
		NextSubmissionTimestamp: result.NextSubmissionTimestamp.Unix(),
	}
	if !result.SubmissionDeadline.IsZero() {
		resp.SubmissionDeadline = result.SubmissionDeadline.Unix()
	}
	response.Success(c, resp)
}

// Status returns the run summary.
func (h *RunController) Status(c *gin.Context) {
	h.view(c, func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error) {
		return h.runService.Status(ctx, viewer, guid)
	})
}

// Details returns the disclosed run detail.
func (h *RunController) Details(c *gin.Context) {
	h.view(c, func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error) {
		return h.runService.Details(ctx, viewer, guid)
	})
}

// Source returns the submitted source.
func (h *RunController) Source(c *gin.Context) {
	h.view(c, func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error) {
		return h.runService.Source(ctx, viewer, guid)
	})
}

// Rejudge queues a run for grading again.
func (h *RunController) Rejudge(c *gin.Context) {
	debug, _ := strconv.ParseBool(c.Query("debug"))
	h.view(c, func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error) {
		if err := h.runService.Rejudge(ctx, viewer, guid, debug); err != nil {
			return nil, err
		}
		return StatusResponse{Status: "ok"}, nil
	})
}

// Disqualify marks a submission disqualified.
func (h *RunController) Disqualify(c *gin.Context) {
	h.view(c, func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error) {
		if err := h.runService.Disqualify(ctx, viewer, guid); err != nil {
			return nil, err
		}
		return StatusResponse{Status: "ok"}, nil
	})
}

// Download streams the result archive of a run.
func (h *RunController) Download(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	guid := c.Param("guid")
	if guid == "" {
		response.BadRequest(c, "Invalid run alias")
		return
	}
	showDiff, _ := strconv.ParseBool(c.Query("show_diff"))

	dl, err := h.runService.Download(c.Request.Context(), viewer, guid, showDiff)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.Body.Close()
	c.DataFromReader(http.StatusOK, -1, dl.ContentType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
	})
}

// List returns the administrative run list.
func (h *RunController) List(c *gin.Context) {
	viewer, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	runs, err := h.runService.List(c.Request.Context(), viewer, service.ListInput{
		Status:       req.Status,
		Verdict:      req.Verdict,
		Language:     req.Language,
		ProblemAlias: req.ProblemAlias,
		Username:     req.Username,
		Offset:       req.Offset,
		Rowcount:     req.Rowcount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ListResponse{Runs: runs})
}

// Counts returns daily run counts.
func (h *RunController) Counts(c *gin.Context) {
	counts, err := h.runService.Counts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, counts)
}

func (h *RunController) view(c *gin.Context, fn func(ctx context.Context, viewer model.Identity, guid string) (interface{}, error)) {
	viewer, ok := identity(c)
	if !ok {
		response.Unauthorized(c, "")
		return
	}
	guid := c.Param("guid")
	if guid == "" {
		response.BadRequest(c, "Invalid run alias")
		return
	}
	data, err := fn(c.Request.Context(), viewer, guid)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, data)
}

func identity(c *gin.Context) (model.Identity, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return model.Identity{}, false
	}
	return model.Identity{
		IdentityID: principal.IdentityID,
		UserID:     principal.UserID,
		Username:   principal.Username,
		Sysadmin:   principal.IsSysadmin(),
	}, true
}
