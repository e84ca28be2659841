package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes registers the form, session and resource routes. Every
// route runs the given middleware first.
func RegisterRoutes(app *fiber.App, h *Handler, fh *FileHandler, middleware ...fiber.Handler) {
	wrap := func(fn fiber.Handler) []fiber.Handler {
		all := make([]fiber.Handler, len(middleware)+1)
		copy(all, middleware)
		all[len(middleware)] = fn
		return all
	}

	app.Get("/api/forms", wrap(h.ListForms)...)
	app.Get("/api/forms/:form/template", wrap(h.Template)...)
	app.Post("/api/forms/:form/sessions", wrap(h.OpenSession)...)

	app.Get("/api/sessions/:id", wrap(h.GetSession)...)
	app.Delete("/api/sessions/:id", wrap(h.CloseSession)...)
	app.Put("/api/sessions/:id/fields", wrap(h.SetFields)...)
	app.Put("/api/sessions/:id/flags/:flag", wrap(h.SetFlag)...)
	app.Put("/api/sessions/:id/mode", wrap(h.SetMode)...)
	app.Post("/api/sessions/:id/submit", wrap(h.Submit)...)

	app.Put("/api/sessions/:id/sections/:section", wrap(h.ReplaceSection)...)
	app.Put("/api/sessions/:id/sections/:section/cells", wrap(h.SetCell)...)
	app.Post("/api/sessions/:id/sections/:section/rows", wrap(h.AddRow)...)
	app.Delete("/api/sessions/:id/sections/:section/rows/:row", wrap(h.RemoveRow)...)
	app.Get("/api/sessions/:id/sections/:section/export", wrap(fh.Export)...)
	app.Post("/api/sessions/:id/sections/:section/import", wrap(fh.Import)...)

	app.Get("/api/resources/:resource", wrap(h.ListResource)...)
	app.Get("/api/resources/:resource/:id", wrap(h.GetResource)...)
}
