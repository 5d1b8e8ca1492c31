package comment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	authed := api.Group("", auth.RequireAuthenticated())
	authed.GET("/comments", h.List)
	authed.POST("/comments", h.Create)
	authed.DELETE("/comments/:id", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	var in Comment
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), &in); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, in)
}

// List requires object_type and object_id; contains narrows by text.
func (h *Handler) List(c echo.Context) error {
	id, err := uuid.Parse(c.QueryParam("object_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "object_id must be a uuid")
	}
	owner := Owner{Kind: OwnerKind(c.QueryParam("object_type")), ID: id}
	items, err := h.svc.List(c.Request().Context(), owner, c.QueryParam("contains"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if items == nil {
		items = []*Comment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
