package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"lims-forms/internal/engine"
	"lims-forms/internal/form"
	"lims-forms/internal/metadata"
	"lims-forms/internal/store"
)

// Handler manages form definitions at runtime. Definitions are kept in the
// _forms table when a store is configured; without one, changes last until
// the process exits.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	logger   *zap.Logger
}

func NewHandler(s *store.Store, reg *metadata.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: s, registry: reg, logger: logger}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Get("/forms", h.ListForms)
	admin.Get("/forms/:name", h.GetForm)
	admin.Post("/forms", h.CreateForm)
	admin.Put("/forms/:name", h.UpdateForm)
	admin.Delete("/forms/:name", h.DeleteForm)
}

// LoadStored registers every definition saved in the _forms table. Rows
// that no longer parse or validate are skipped with a warning.
func LoadStored(ctx context.Context, s *store.Store, reg *metadata.Registry, logger *zap.Logger) (int, error) {
	rows, err := store.QueryRows(ctx, s.DB, "SELECT name, definition FROM _forms ORDER BY name")
	if err != nil {
		return 0, fmt.Errorf("load stored forms: %w", err)
	}
	loaded := 0
	for _, row := range rows {
		name := cast.ToString(row["name"])
		def, err := decodeForm([]byte(cast.ToString(row["definition"])))
		if err != nil {
			logger.Warn("skipping stored form definition", zap.String("form", name), zap.Error(err))
			continue
		}
		reg.Register(def)
		loaded++
	}
	return loaded, nil
}

// --- Form Endpoints ---

type formSummary struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Resource string `json:"resource"`
	Builtin  bool   `json:"builtin"`
}

func (h *Handler) ListForms(c *fiber.Ctx) error {
	forms := h.registry.AllForms()
	out := make([]formSummary, 0, len(forms))
	for _, f := range forms {
		out = append(out, formSummary{
			Name:     f.Name,
			Title:    f.Title,
			Resource: f.Resource,
			Builtin:  metadata.BuiltinForm(f.Name) != nil,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

func (h *Handler) GetForm(c *fiber.Ctx) error {
	name := c.Params("name")
	def := h.registry.GetForm(name)
	if def == nil {
		return engine.UnknownFormError(name)
	}
	return c.JSON(fiber.Map{"data": def})
}

func (h *Handler) CreateForm(c *fiber.Ctx) error {
	def, err := decodeForm(c.Body())
	if err != nil {
		return err
	}
	if h.registry.GetForm(def.Name) != nil {
		return engine.NewAppError("CONFLICT", 409, "Form already exists: "+def.Name)
	}

	if h.store != nil {
		defJSON, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("marshal form: %w", err)
		}
		ph := h.store.Dialect.Placeholder
		_, err = store.Exec(c.Context(), h.store.DB,
			fmt.Sprintf("INSERT INTO _forms (name, definition) VALUES (%s, %s)", ph(1), ph(2)),
			def.Name, string(defJSON))
		if errors.Is(store.MapError(h.store.Dialect, err), store.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", 409, "Form already exists: "+def.Name)
		}
		if err != nil {
			return fmt.Errorf("insert form: %w", err)
		}
	}

	h.registry.Register(def)
	h.logger.Info("form definition created", zap.String("form", def.Name))
	return c.Status(201).JSON(fiber.Map{"data": def})
}

// UpdateForm replaces a definition. Sessions already open keep the
// definition they were opened with.
func (h *Handler) UpdateForm(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.registry.GetForm(name) == nil {
		return engine.UnknownFormError(name)
	}

	def, err := decodeForm(c.Body())
	if err != nil {
		return err
	}
	if def.Name != name {
		return engine.InvalidPayloadError(fmt.Sprintf("Form name %q does not match %q", def.Name, name))
	}

	if h.store != nil {
		defJSON, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("marshal form: %w", err)
		}
		if err := h.store.Upsert(c.Context(), "_forms", []string{"name", "definition"}, name, string(defJSON)); err != nil {
			return fmt.Errorf("update form %s: %w", name, err)
		}
	}

	h.registry.Register(def)
	h.logger.Info("form definition updated", zap.String("form", name))
	return c.JSON(fiber.Map{"data": def})
}

// DeleteForm removes a stored definition. A built-in form reverts to its
// compiled-in definition instead of disappearing.
func (h *Handler) DeleteForm(c *fiber.Ctx) error {
	name := c.Params("name")
	if h.registry.GetForm(name) == nil {
		return engine.UnknownFormError(name)
	}

	if h.store != nil {
		ph := h.store.Dialect.Placeholder
		if _, err := store.Exec(c.Context(), h.store.DB,
			fmt.Sprintf("DELETE FROM _forms WHERE name = %s", ph(1)), name); err != nil {
			return fmt.Errorf("delete form %s: %w", name, err)
		}
	}

	reverted := false
	if builtin := metadata.BuiltinForm(name); builtin != nil {
		h.registry.Register(builtin)
		reverted = true
	} else {
		h.registry.Unregister(name)
	}

	h.logger.Info("form definition deleted", zap.String("form", name), zap.Bool("reverted", reverted))
	return c.JSON(fiber.Map{"data": fiber.Map{"name": name, "deleted": true, "reverted": reverted}})
}

// --- Validation ---

func decodeForm(body []byte) (*metadata.FormDefinition, error) {
	var def metadata.FormDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return nil, engine.InvalidPayloadError("Invalid JSON body")
	}
	if err := def.Validate(); err != nil {
		return nil, engine.ValidationError([]engine.ErrorDetail{{Message: err.Error()}})
	}
	for _, r := range def.Rules {
		if _, err := form.CompileRule(r.Expression); err != nil {
			return nil, engine.ValidationError([]engine.ErrorDetail{{Field: r.Field, Rule: r.Name, Message: err.Error()}})
		}
	}
	return &def, nil
}
