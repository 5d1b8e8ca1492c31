package event

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/platform/apperr"
	"github.com/whispers/whispers/internal/platform/auth"
	"github.com/whispers/whispers/pkg/pagination"
)

// SearchRecorder stores each non-empty event search for its caller.
// Anonymous searches arrive with uuid.Nil.
type SearchRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, params map[string]string, fingerprint string) error
}

type Handler struct {
	svc      *Service
	searches SearchRecorder
	logger   zerolog.Logger
}

func NewHandler(svc *Service, searches SearchRecorder, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, searches: searches, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/events", h.SearchEvents)
	api.GET("/events/export", h.ExportEvents)
	api.GET("/events/:id", h.GetEvent)
	api.GET("/events/:id/summary", h.GetSummary)

	write := api.Group("", auth.RequireAuthenticated())
	write.POST("/events", h.CreateEvent, auth.RequireCapability("create events", auth.Role.IsCreator))
	write.PUT("/events/:id", h.UpdateEvent)
	write.PATCH("/events/:id", h.UpdateEvent)
	write.DELETE("/events/:id", h.DeleteEvent)
	write.POST("/events/:id/quality-check", h.QualityCheck, auth.RequireCapability("quality check", auth.Role.IsNWHC))

	write.POST("/eventlocations", h.CreateLocation)
	write.PUT("/eventlocations/:id", h.UpdateLocation)
	write.DELETE("/eventlocations/:id", h.DeleteLocation)

	write.POST("/locationspecies", h.CreateSpecies)
	write.PUT("/locationspecies/:id", h.UpdateSpecies)
	write.DELETE("/locationspecies/:id", h.DeleteSpecies)

	write.POST("/speciesdiagnoses", h.CreateSpeciesDiagnosis)
	write.PUT("/speciesdiagnoses/:id", h.UpdateSpeciesDiagnosis)
	write.DELETE("/speciesdiagnoses/:id", h.DeleteSpeciesDiagnosis)

	write.POST("/eventdiagnoses", h.CreateEventDiagnosis)
	write.PUT("/eventdiagnoses/:id", h.UpdateEventDiagnosis)
	write.DELETE("/eventdiagnoses/:id", h.DeleteEventDiagnosis)

	write.POST("/eventlocationcontacts", h.CreateLocationContact)
	write.DELETE("/eventlocationcontacts/:id", h.DeleteLocationContact)
}

// -- Request helpers --

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func readBody(c echo.Context) ([]byte, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	return raw, nil
}

// expectedVersion reads the caller's expected event version from If-Match,
// falling back to a "version" field in the body. Absent means unchecked.
func expectedVersion(c echo.Context, raw []byte) (*int, error) {
	if h := c.Request().Header.Get("If-Match"); h != "" {
		h = strings.Trim(strings.TrimPrefix(strings.TrimSpace(h), "W/"), `"`)
		v, err := strconv.Atoi(h)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "If-Match must be an event version")
		}
		return &v, nil
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var body struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return body.Version, nil
}

// decode reads the body into dst and returns the raw bytes and version.
func decode(c echo.Context, dst interface{}) ([]byte, *int, error) {
	raw, err := readBody(c)
	if err != nil {
		return nil, nil, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	version, err := expectedVersion(c, raw)
	return raw, version, err
}

// mine reports whether the caller asked for their own events.
func mine(c echo.Context) bool {
	v, _ := strconv.ParseBool(c.QueryParam("mine"))
	return v
}

// -- Events --

func (h *Handler) CreateEvent(c echo.Context) error {
	var in NewEvent
	if _, _, err := decode(c, &in); err != nil {
		return err
	}
	e, err := h.svc.CreateEvent(c.Request().Context(), &in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) GetEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, d, err := h.svc.GetEvent(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, Present(e, d))
}

func (h *Handler) GetSummary(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sum, d, err := h.svc.Summary(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, PresentSummary(sum, d))
}

func (h *Handler) UpdateEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch EventPatch
	if _, patch.Version, err = decode(c, &patch); err != nil {
		return err
	}
	e, err := h.svc.UpdateEvent(c.Request().Context(), id, &patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, Present(e, ReadDecision(c.Request().Context(), e)))
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	version, err := expectedVersion(c, nil)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteEvent(c.Request().Context(), id, version); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) QualityCheck(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		QualityCheck *Date `json:"quality_check"`
	}
	raw, err := readBody(c)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
		}
	}
	version, err := expectedVersion(c, raw)
	if err != nil {
		return err
	}
	e, err := h.svc.QualityCheck(c.Request().Context(), id, body.QualityCheck, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, Present(e, ReadDecision(c.Request().Context(), e)))
}

func (h *Handler) SearchEvents(c echo.Context) error {
	f, err := ParseFilter(c.QueryParams())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	events, total, d, err := h.svc.Search(ctx, f, mine(c), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.record(ctx, f)
	return c.JSON(http.StatusOK, pagination.NewResponse(PresentList(events, d), total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path))
}

func (h *Handler) ExportEvents(c echo.Context) error {
	f, err := ParseFilter(c.QueryParams())
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	data, err := h.svc.Export(ctx, f, mine(c))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	h.record(ctx, f)
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+ExportFilename(h.svc.now())+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// record saves the search; failures never fail the request.
func (h *Handler) record(ctx context.Context, f *Filter) {
	if h.searches == nil || f.Empty() {
		return
	}
	userID := uuid.Nil
	if p := auth.PrincipalFromContext(ctx); p != nil {
		userID = p.UserID
	}
	if err := h.searches.Record(ctx, userID, f.Params, f.Fingerprint()); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to record search")
	}
}

// -- Event locations --

func (h *Handler) CreateLocation(c echo.Context) error {
	var in NewLocation
	_, version, err := decode(c, &in)
	if err != nil {
		return err
	}
	loc, err := h.svc.CreateLocation(c.Request().Context(), &in, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, loc)
}

func (h *Handler) UpdateLocation(c echo.Context) error {
	id, raw, version, err := updateRequest(c)
	if err != nil {
		return err
	}
	loc, err := h.svc.UpdateLocation(c.Request().Context(), id, raw, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, loc)
}

func (h *Handler) DeleteLocation(c echo.Context) error {
	return h.delete(c, h.svc.DeleteLocation)
}

// -- Location species --

func (h *Handler) CreateSpecies(c echo.Context) error {
	var in NewSpecies
	_, version, err := decode(c, &in)
	if err != nil {
		return err
	}
	ls, err := h.svc.CreateSpecies(c.Request().Context(), &in, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, ls)
}

func (h *Handler) UpdateSpecies(c echo.Context) error {
	id, raw, version, err := updateRequest(c)
	if err != nil {
		return err
	}
	ls, err := h.svc.UpdateSpecies(c.Request().Context(), id, raw, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ls)
}

func (h *Handler) DeleteSpecies(c echo.Context) error {
	return h.delete(c, h.svc.DeleteSpecies)
}

// -- Species diagnoses --

func (h *Handler) CreateSpeciesDiagnosis(c echo.Context) error {
	var sd SpeciesDiagnosis
	_, version, err := decode(c, &sd)
	if err != nil {
		return err
	}
	out, err := h.svc.CreateSpeciesDiagnosis(c.Request().Context(), &sd, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateSpeciesDiagnosis(c echo.Context) error {
	id, raw, version, err := updateRequest(c)
	if err != nil {
		return err
	}
	out, err := h.svc.UpdateSpeciesDiagnosis(c.Request().Context(), id, raw, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteSpeciesDiagnosis(c echo.Context) error {
	return h.delete(c, h.svc.DeleteSpeciesDiagnosis)
}

// -- Event diagnoses --

func (h *Handler) CreateEventDiagnosis(c echo.Context) error {
	var d EventDiagnosis
	_, version, err := decode(c, &d)
	if err != nil {
		return err
	}
	out, err := h.svc.CreateEventDiagnosis(c.Request().Context(), &d, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateEventDiagnosis(c echo.Context) error {
	id, raw, version, err := updateRequest(c)
	if err != nil {
		return err
	}
	out, err := h.svc.UpdateEventDiagnosis(c.Request().Context(), id, raw, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteEventDiagnosis(c echo.Context) error {
	return h.delete(c, h.svc.DeleteEventDiagnosis)
}

// -- Location contacts --

func (h *Handler) CreateLocationContact(c echo.Context) error {
	var ct EventLocationContact
	_, version, err := decode(c, &ct)
	if err != nil {
		return err
	}
	out, err := h.svc.CreateLocationContact(c.Request().Context(), &ct, version)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) DeleteLocationContact(c echo.Context) error {
	return h.delete(c, h.svc.DeleteLocationContact)
}

func updateRequest(c echo.Context) (uuid.UUID, []byte, *int, error) {
	id, err := parseID(c)
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	raw, err := readBody(c)
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	version, err := expectedVersion(c, raw)
	if err != nil {
		return uuid.Nil, nil, nil, err
	}
	return id, raw, version, nil
}

func (h *Handler) delete(c echo.Context, fn func(context.Context, uuid.UUID, *int) error) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	version, err := expectedVersion(c, nil)
	if err != nil {
		return err
	}
	if err := fn(c.Request().Context(), id, version); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
