package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/waldorf/school-records/internal/api/metrics"
	"github.com/waldorf/school-records/internal/core/ports"
)

// PersonHandler handles HTTP requests for the person aggregate.
type PersonHandler struct {
	service ports.PersonService
	now     func() time.Time
}

func NewPersonHandler(service ports.PersonService) *PersonHandler {
	return &PersonHandler{service: service, now: time.Now}
}

// Create handles POST /v1/persons.
//
// @Summary      Create a person
// @Tags         persons
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createPersonRequest  true  "Person and optional addresses"
// @Success      201   {object}  personResponse
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/persons [post]
func (h *PersonHandler) Create(c echo.Context) error {
	var req createPersonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := req.toInput()
	if err != nil {
		return err
	}
	for _, a := range req.Addresses {
		in.Addresses = append(in.Addresses, a.toInput())
	}

	p, err := h.service.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("create").Inc()
	return c.JSON(http.StatusCreated, toPersonResponse(p))
}

// Update handles PUT /v1/persons/:id.
//
// @Summary      Update a person
// @Tags         persons
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true  "Person ID"
// @Param        body  body      updatePersonRequest  true  "Person fields"
// @Success      200   {object}  personResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/persons/{id} [put]
func (h *PersonHandler) Update(c echo.Context) error {
	var req updatePersonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	in, err := req.toInput()
	if err != nil {
		return err
	}

	p, err := h.service.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("update").Inc()
	return c.JSON(http.StatusOK, toPersonResponse(p))
}

// Get handles GET /v1/persons/:id.
//
// @Summary      Get a person
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Person ID"
// @Success      200  {object}  personResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id} [get]
func (h *PersonHandler) Get(c echo.Context) error {
	p, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPersonResponse(p))
}

// GetByNationalID handles GET /v1/persons/by-national-id/:nationalID.
//
// @Summary      Find a person by national ID
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        nationalID  path      string  true  "National ID"
// @Success      200         {object}  personResponse
// @Failure      404         {object}  errorResponse
// @Router       /v1/persons/by-national-id/{nationalID} [get]
func (h *PersonHandler) GetByNationalID(c echo.Context) error {
	p, err := h.service.GetByNationalID(c.Request().Context(), c.Param("nationalID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPersonResponse(p))
}

// GetByEmail handles GET /v1/persons/by-email/:email.
//
// @Summary      Find a person by email
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "Email"
// @Success      200    {object}  personResponse
// @Failure      404    {object}  errorResponse
// @Router       /v1/persons/by-email/{email} [get]
func (h *PersonHandler) GetByEmail(c echo.Context) error {
	p, err := h.service.GetByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPersonResponse(p))
}

// List handles GET /v1/persons.
//
// @Summary      List persons
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        type    query     string  false  "Person type"
// @Param        active  query     bool    false  "Only active (true) or inactive (false)"
// @Param        q       query     string  false  "Search term on name, email and national ID"
// @Param        page    query     int     false  "Page, starting at 1"
// @Param        limit   query     int     false  "Page size (max 100)"
// @Success      200     {object}  personPageResponse
// @Failure      400     {object}  errorResponse
// @Router       /v1/persons [get]
func (h *PersonHandler) List(c echo.Context) error {
	in := ports.ListPersonsInput{
		Type: c.QueryParam("type"),
		Term: strings.TrimSpace(c.QueryParam("q")),
	}
	if err := echo.QueryParamsBinder(c).
		Int("page", &in.Page).
		Int("limit", &in.Limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "page and limit must be integers")
	}
	active, err := optionalBool(c, "active")
	if err != nil {
		return err
	}
	in.Active = active

	page, err := h.service.List(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, personPageResponse{
		Items:      toPersonResponses(page.Items),
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	})
}

// Deactivate handles PATCH /v1/persons/:id/deactivate.
//
// @Summary      Deactivate a person
// @Tags         persons
// @Security     BearerAuth
// @Param        id   path  string  true  "Person ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/deactivate [patch]
func (h *PersonHandler) Deactivate(c echo.Context) error {
	if err := h.service.Deactivate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("deactivate").Inc()
	return c.NoContent(http.StatusNoContent)
}

// Reactivate handles PATCH /v1/persons/:id/reactivate.
//
// @Summary      Reactivate a person
// @Tags         persons
// @Security     BearerAuth
// @Param        id   path  string  true  "Person ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/reactivate [patch]
func (h *PersonHandler) Reactivate(c echo.Context) error {
	if err := h.service.Reactivate(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("reactivate").Inc()
	return c.NoContent(http.StatusNoContent)
}

// Purge handles DELETE /v1/persons/:id.
//
// @Summary      Permanently delete a person and its addresses
// @Tags         persons
// @Security     BearerAuth
// @Param        id   path  string  true  "Person ID"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id} [delete]
func (h *PersonHandler) Purge(c echo.Context) error {
	if err := h.service.Purge(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("purge").Inc()
	return c.NoContent(http.StatusNoContent)
}

// GrantConsent handles POST /v1/persons/:id/consent.
//
// @Summary      Grant data-processing consent
// @Tags         consent
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Person ID"
// @Success      200  {object}  domain.Consent
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/consent [post]
func (h *PersonHandler) GrantConsent(c echo.Context) error {
	consent, err := h.service.GrantConsent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("consent_grant").Inc()
	return c.JSON(http.StatusOK, consent)
}

// RevokeConsent handles DELETE /v1/persons/:id/consent.
//
// @Summary      Revoke data-processing consent
// @Tags         consent
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Person ID"
// @Success      200  {object}  domain.Consent
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/consent [delete]
func (h *PersonHandler) RevokeConsent(c echo.Context) error {
	consent, err := h.service.RevokeConsent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("consent_revoke").Inc()
	return c.JSON(http.StatusOK, consent)
}

// AddAddress handles POST /v1/persons/:id/addresses.
//
// @Summary      Add an address
// @Description  A principal address demotes the previous principal.
// @Tags         addresses
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string          true  "Person ID"
// @Param        body  body      addressRequest  true  "Address"
// @Success      201   {object}  addressResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/persons/{id}/addresses [post]
func (h *PersonHandler) AddAddress(c echo.Context) error {
	var req addressRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	a, err := h.service.AddAddress(c.Request().Context(), c.Param("id"), req.toInput())
	if err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("address_add").Inc()
	return c.JSON(http.StatusCreated, toAddressResponse(*a))
}

// ListAddresses handles GET /v1/persons/:id/addresses.
//
// @Summary      List a person's addresses
// @Tags         addresses
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Person ID"
// @Success      200  {array}   addressResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/addresses [get]
func (h *PersonHandler) ListAddresses(c echo.Context) error {
	addrs, err := h.service.ListAddresses(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	out := make([]addressResponse, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, toAddressResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

// RemoveAddress handles DELETE /v1/persons/:id/addresses/:addressID.
//
// @Summary      Remove an address
// @Tags         addresses
// @Security     BearerAuth
// @Param        id         path  string  true  "Person ID"
// @Param        addressID  path  string  true  "Address ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/persons/{id}/addresses/{addressID} [delete]
func (h *PersonHandler) RemoveAddress(c echo.Context) error {
	if err := h.service.RemoveAddress(c.Request().Context(), c.Param("id"), c.Param("addressID")); err != nil {
		return err
	}
	metrics.PersonMutationsTotal.WithLabelValues("address_remove").Inc()
	return c.NoContent(http.StatusNoContent)
}

// CountByType handles GET /v1/persons/stats/types/:type.
//
// @Summary      Count persons of a type
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        type    path      string  true   "Person type"
// @Param        active  query     bool    false  "Count only active persons"
// @Success      200     {object}  countResponse
// @Failure      400     {object}  errorResponse
// @Router       /v1/persons/stats/types/{type} [get]
func (h *PersonHandler) CountByType(c echo.Context) error {
	activeOnly, err := optionalBool(c, "active")
	if err != nil {
		return err
	}
	only := activeOnly != nil && *activeOnly

	n, err := h.service.CountByType(c.Request().Context(), c.Param("type"), only)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, countResponse{Type: strings.ToUpper(c.Param("type")), ActiveOnly: only, Count: n})
}

// PendingDeletions handles GET /v1/persons/deletions/pending.
//
// @Summary      Active persons due for scheduled deletion
// @Tags         persons
// @Produce      json
// @Security     BearerAuth
// @Param        as_of  query     string  false  "Reference date (YYYY-MM-DD), defaults to today"
// @Success      200    {array}   personResponse
// @Failure      422    {object}  errorResponse
// @Router       /v1/persons/deletions/pending [get]
func (h *PersonHandler) PendingDeletions(c echo.Context) error {
	asOf := h.now()
	if d, err := parseDate("as_of", c.QueryParam("as_of")); err != nil {
		return err
	} else if d != nil {
		asOf = *d
	}

	ps, err := h.service.PendingDeletions(c.Request().Context(), asOf)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toPersonResponses(ps))
}

func optionalBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a boolean")
	}
	return &b, nil
}
