package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"lims-forms/internal/client"
	"lims-forms/internal/draft"
	"lims-forms/internal/form"
	"lims-forms/internal/metadata"
	"lims-forms/internal/section"
)

// Where an opened session's data came from.
const (
	SourceDraft    = "draft"
	SourceBackend  = "backend"
	SourceDefaults = "defaults"
)

type Handler struct {
	registry *metadata.Registry
	sessions *form.Manager
	drafts   *draft.Drafts
	services *client.Services
	logger   *zap.Logger
}

func NewHandler(reg *metadata.Registry, sessions *form.Manager, drafts *draft.Drafts, services *client.Services, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		registry: reg,
		sessions: sessions,
		drafts:   drafts,
		services: services,
		logger:   logger,
	}
	sessions.SetOnEnd(h.sessionEnded)
	return h
}

// ListForms handles GET /api/forms
func (h *Handler) ListForms(c *fiber.Ctx) error {
	forms := h.registry.AllForms()
	out := make([]fiber.Map, 0, len(forms))
	for _, def := range forms {
		out = append(out, fiber.Map{
			"name":     def.Name,
			"title":    def.Title,
			"resource": def.Resource,
			"flags":    def.Flags,
			"sections": def.SectionNames(),
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// Template handles GET /api/forms/:form/template
// Declared flags may be set with query parameters, e.g. ?asme_equivalent=true.
func (h *Handler) Template(c *fiber.Ctx) error {
	def, err := h.resolveForm(c)
	if err != nil {
		return err
	}
	initial := &form.Aggregate{Flags: metadata.Flags{}}
	for _, f := range def.Flags {
		initial.Flags[f] = c.QueryBool(f, false)
	}
	agg := form.NewAggregator(def, initial, h.logger)
	return c.JSON(fiber.Map{"data": agg.Serialize()})
}

// OpenSession handles POST /api/forms/:form/sessions
//
// An existing record is loaded from its local draft, then from the backend.
// record_id may also name the draft of a record never saved to the backend;
// that session resumes the draft and stays a new record. Without record_id
// the session starts from the form defaults. Users without edit rights
// always get a read-only session.
func (h *Handler) OpenSession(c *fiber.Ctx) error {
	def, err := h.resolveForm(c)
	if err != nil {
		return err
	}
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Missing auth token")
	}

	var body struct {
		RecordID string `json:"record_id"`
		ReadOnly bool   `json:"read_only"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid JSON body")
		}
	}
	readOnly := body.ReadOnly || !user.CanEdit()

	var initial *form.Aggregate
	var resumeDraft string
	source := SourceDefaults
	if body.RecordID != "" {
		if saved, ok := h.drafts.Load(c.UserContext(), def.Name, body.RecordID); ok {
			if saved.RecordID == "" {
				resumeDraft = body.RecordID
			}
			initial, source = saved, SourceDraft
		} else {
			rec, err := h.fetchRecord(h.backendContext(c, user), def, body.RecordID)
			if err != nil {
				return toAppError(err)
			}
			initial, source = rec, SourceBackend
		}
	}

	s := h.sessions.Resume(def, initial, user, readOnly, resumeDraft)
	h.logger.Info("session opened",
		zap.String("session", s.ID),
		zap.String("form", def.Name),
		zap.String("user", user.ID),
		zap.String("source", source))

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{
		"session_id": s.ID,
		"source":     source,
		"read_only":  readOnly,
		"aggregate":  s.Snapshot(),
	}})
}

// GetSession handles GET /api/sessions/:id
func (h *Handler) GetSession(c *fiber.Ctx) error {
	s, err := h.resolveSession(c)
	if err != nil {
		return err
	}
	var agg *form.Aggregate
	var meta fiber.Map
	_ = s.Do(func(a *form.Aggregator) error {
		agg = a.Serialize()
		meta = fiber.Map{
			"read_only":    a.ReadOnly(),
			"last_changed": a.LastChanged(),
		}
		return nil
	})
	return c.JSON(fiber.Map{"data": agg, "meta": meta})
}

// CloseSession handles DELETE /api/sessions/:id
func (h *Handler) CloseSession(c *fiber.Ctx) error {
	s, err := h.resolveSession(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Close(s.ID); err != nil {
		return toAppError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": s.ID}})
}

// SetFields handles PUT /api/sessions/:id/fields
func (h *Handler) SetFields(c *fiber.Ctx) error {
	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		if err := a.SetFields(body); err != nil {
			return nil, err
		}
		return a.Fields(), nil
	})
}

// SetFlag handles PUT /api/sessions/:id/flags/:flag
func (h *Handler) SetFlag(c *fiber.Ctx) error {
	var body struct {
		Value *bool `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil || body.Value == nil {
		return InvalidPayloadError("Body must be {\"value\": true|false}")
	}
	flag := c.Params("flag")
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		if err := a.SetFlag(flag, *body.Value); err != nil {
			return nil, err
		}
		return a.Serialize(), nil
	})
}

// SetMode handles PUT /api/sessions/:id/mode
func (h *Handler) SetMode(c *fiber.Ctx) error {
	s, err := h.resolveSession(c)
	if err != nil {
		return err
	}
	var body struct {
		ReadOnly *bool `json:"read_only"`
	}
	if err := c.BodyParser(&body); err != nil || body.ReadOnly == nil {
		return InvalidPayloadError("Body must be {\"read_only\": true|false}")
	}
	if !*body.ReadOnly && !getUser(c).CanEdit() {
		return ForbiddenError("Edit mode requires an editing role")
	}
	err = s.Do(func(a *form.Aggregator) error {
		if a.Ended() {
			return form.ErrSessionEnded
		}
		a.SetReadOnly(*body.ReadOnly)
		return nil
	})
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"read_only": *body.ReadOnly}})
}

// ReplaceSection handles PUT /api/sessions/:id/sections/:section
func (h *Handler) ReplaceSection(c *fiber.Ctx) error {
	var body section.Section
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid section body")
	}
	name := c.Params("section")
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		if err := a.ReplaceSection(name, body); err != nil {
			return nil, err
		}
		return a.Serialize().Sections[name], nil
	})
}

// SetCell handles PUT /api/sessions/:id/sections/:section/cells
func (h *Handler) SetCell(c *fiber.Ctx) error {
	var body struct {
		RowID       string `json:"row_id"`
		AccessorKey string `json:"accessor_key"`
		Value       string `json:"value"`
	}
	if err := c.BodyParser(&body); err != nil || body.RowID == "" || body.AccessorKey == "" {
		return InvalidPayloadError("Body must include row_id and accessor_key")
	}
	name := c.Params("section")
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		if err := a.SetCellValue(name, body.RowID, body.AccessorKey, body.Value); err != nil {
			return nil, err
		}
		return a.Serialize().Sections[name], nil
	})
}

// AddRow handles POST /api/sessions/:id/sections/:section/rows
func (h *Handler) AddRow(c *fiber.Ctx) error {
	var body struct {
		AfterRowID string `json:"after_row_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return InvalidPayloadError("Invalid JSON body")
		}
	}
	name := c.Params("section")
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		row, err := a.AddRow(name, body.AfterRowID)
		if err != nil {
			return nil, err
		}
		return row, nil
	})
}

// RemoveRow handles DELETE /api/sessions/:id/sections/:section/rows/:row
func (h *Handler) RemoveRow(c *fiber.Ctx) error {
	name := c.Params("section")
	rowID := c.Params("row")
	return h.mutate(c, func(a *form.Aggregator) (any, error) {
		if err := a.RemoveRow(name, rowID); err != nil {
			return nil, err
		}
		return a.Serialize().Sections[name], nil
	})
}

// Submit handles POST /api/sessions/:id/submit
//
// The aggregate is validated, then created on the backend (or updated when
// it already has a record id). The backend call runs outside the session
// lock; if the session ends before it returns, the result is dropped.
// A failed backend call leaves the aggregate untouched.
func (h *Handler) Submit(c *fiber.Ctx) error {
	s, err := h.resolveSession(c)
	if err != nil {
		return err
	}

	var payload *form.Aggregate
	err = s.Do(func(a *form.Aggregator) error {
		if a.Ended() {
			return form.ErrSessionEnded
		}
		if a.ReadOnly() {
			return form.ErrReadOnly
		}
		payload = a.Serialize()
		return form.Validate(a.Definition(), payload)
	})
	if err != nil {
		return toAppError(err)
	}

	svc, ok := h.services.Records(s.Form.Resource)
	if !ok {
		return fmt.Errorf("form %s has no backend resource %q", s.Form.Name, s.Form.Resource)
	}
	ctx := h.backendContext(c, getUser(c))

	var rec client.Record
	if payload.RecordID == "" {
		rec, err = svc.Create(ctx, payload)
	} else {
		rec, err = svc.Update(ctx, payload.RecordID, payload)
	}
	if err != nil {
		h.logger.Warn("submit failed",
			zap.String("session", s.ID),
			zap.String("form", s.Form.Name),
			zap.Error(err))
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == 404 {
			return toAppError(err)
		}
		return UpstreamError("The record could not be saved; the form is unchanged")
	}

	recordID := rec.ID()
	if recordID == "" {
		recordID = payload.RecordID
	}
	var applied bool
	var result *form.Aggregate
	_ = s.Do(func(a *form.Aggregator) error {
		applied = a.ApplySubmitResult(recordID)
		result = a.Serialize()
		return nil
	})
	if !applied {
		h.logger.Info("submit result dropped, session ended", zap.String("session", s.ID))
		return NewAppError("SESSION_CLOSED", 409, "Session ended before the submission completed")
	}

	h.discardDrafts(c.UserContext(), s, payload.RecordID, recordID)
	h.logger.Info("record submitted",
		zap.String("session", s.ID),
		zap.String("form", s.Form.Name),
		zap.String("record", recordID))

	status := 200
	if payload.RecordID == "" {
		status = 201
	}
	return c.Status(status).JSON(fiber.Map{"data": fiber.Map{
		"record_id": recordID,
		"aggregate": result,
	}})
}

// mutate runs fn on the session's aggregator, autosaves the draft and
// responds with fn's result.
func (h *Handler) mutate(c *fiber.Ctx, fn func(a *form.Aggregator) (any, error)) error {
	s, err := h.resolveSession(c)
	if err != nil {
		return err
	}
	var out any
	var snapshot *form.Aggregate
	err = s.Do(func(a *form.Aggregator) error {
		var ferr error
		if out, ferr = fn(a); ferr != nil {
			return ferr
		}
		snapshot = a.Serialize()
		return nil
	})
	if err != nil {
		return toAppError(err)
	}
	h.saveDraft(c.UserContext(), s, snapshot)
	return c.JSON(fiber.Map{"data": out})
}

// draftID is the draft key suffix of a session: its record id, or the
// session's draft id for records not yet created.
func draftID(s *form.Session, recordID string) string {
	if recordID != "" {
		return recordID
	}
	return s.DraftID
}

func (h *Handler) saveDraft(ctx context.Context, s *form.Session, agg *form.Aggregate) {
	if h.drafts == nil || agg == nil {
		return
	}
	if err := h.drafts.Save(ctx, draftID(s, agg.RecordID), agg); err != nil {
		h.logger.Warn("draft save failed", zap.String("session", s.ID), zap.Error(err))
	}
}

func (h *Handler) discardDrafts(ctx context.Context, s *form.Session, ids ...string) {
	if h.drafts == nil {
		return
	}
	seen := map[string]bool{}
	for _, id := range append(ids, "") {
		key := draftID(s, id)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := h.drafts.Discard(ctx, s.Form.Name, key); err != nil {
			h.logger.Warn("draft discard failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// sessionEnded drops the draft of a record that never reached the backend.
// Drafts of saved records outlive their sessions, and view-mode sessions
// leave drafts alone.
func (h *Handler) sessionEnded(s *form.Session) {
	var recordID string
	var readOnly bool
	_ = s.Do(func(a *form.Aggregator) error {
		recordID, readOnly = a.RecordID(), a.ReadOnly()
		return nil
	})
	if recordID != "" || readOnly || h.drafts == nil {
		return
	}
	if err := h.drafts.Discard(context.Background(), s.Form.Name, s.DraftID); err != nil {
		h.logger.Warn("draft discard failed", zap.String("key", s.DraftID), zap.Error(err))
	}
}

// fetchRecord loads a record from the backend as an aggregate.
func (h *Handler) fetchRecord(ctx context.Context, def *metadata.FormDefinition, id string) (*form.Aggregate, error) {
	svc, ok := h.services.Records(def.Resource)
	if !ok {
		return nil, fmt.Errorf("form %s has no backend resource %q", def.Name, def.Resource)
	}
	rec, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var agg form.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		h.logger.Warn("backend record has unexpected shape, using defaults",
			zap.String("form", def.Name), zap.String("record", id), zap.Error(err))
		agg = form.Aggregate{}
	}
	agg.Form = def.Name
	agg.RecordID = id
	return &agg, nil
}

func (h *Handler) backendContext(c *fiber.Ctx, user *metadata.UserContext) context.Context {
	ctx := c.UserContext()
	if user != nil && user.Token != "" {
		ctx = client.WithToken(ctx, user.Token)
	}
	return ctx
}

func (h *Handler) resolveForm(c *fiber.Ctx) (*metadata.FormDefinition, error) {
	name := c.Params("form")
	def := h.registry.GetForm(name)
	if def == nil {
		return nil, UnknownFormError(name)
	}
	return def, nil
}

// resolveSession finds the session and checks that the caller owns it.
// Admins may act on any session.
func (h *Handler) resolveSession(c *fiber.Ctx) (*form.Session, error) {
	id := c.Params("id")
	s, err := h.sessions.Get(id)
	if err != nil {
		return nil, NotFoundError("session", id)
	}
	user := getUser(c)
	if user == nil {
		return nil, UnauthorizedError("Missing auth token")
	}
	if s.User != nil && s.User.ID != user.ID && !user.IsAdmin() {
		return nil, ForbiddenError("Session belongs to another user")
	}
	return s, nil
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

func respondError(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
}

// NewErrorHandler renders AppErrors as-is and everything else as
// INTERNAL_ERROR, logging the cause.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			return respondError(c, NewAppError(httpCode(code), code, fiberErr.Message))
		}

		var appErr *AppError
		if errors.As(toAppError(err), &appErr) {
			return respondError(c, appErr)
		}

		logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.Status(code).JSON(ErrorResponse{
			Error: &AppError{
				Code:    "INTERNAL_ERROR",
				Message: "Internal server error",
			},
		})
	}
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusRequestEntityTooLarge:
		return "FILE_TOO_LARGE"
	}
	if status >= 400 && status < 500 {
		return "INVALID_PAYLOAD"
	}
	return "INTERNAL_ERROR"
}
