package engine

import (
	"github.com/gofiber/fiber/v2"

	"lims-forms/internal/client"
)

// ListResource handles GET /api/resources/:resource
// It proxies the backend list, or its search when ?q is given.
func (h *Handler) ListResource(c *fiber.Ctx) error {
	svc, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	ctx := h.backendContext(c, getUser(c))
	page := c.QueryInt("page", 1)

	var result *client.Page[client.Record]
	if q := c.Query("q"); q != "" {
		result, err = svc.Search(ctx, q, page)
	} else {
		result, err = svc.List(ctx, page)
	}
	if err != nil {
		return toAppError(err)
	}
	if result.Results == nil {
		result.Results = []client.Record{}
	}
	return c.JSON(fiber.Map{
		"data": result.Results,
		"meta": fiber.Map{
			"page":     page,
			"count":    result.Count,
			"next":     result.Next,
			"previous": result.Previous,
		},
	})
}

// GetResource handles GET /api/resources/:resource/:id
func (h *Handler) GetResource(c *fiber.Ctx) error {
	svc, err := h.resolveResource(c)
	if err != nil {
		return err
	}
	rec, err := svc.Get(h.backendContext(c, getUser(c)), c.Params("id"))
	if err != nil {
		return toAppError(err)
	}
	return c.JSON(fiber.Map{"data": rec})
}

func (h *Handler) resolveResource(c *fiber.Ctx) (*client.Service[client.Record], error) {
	name := c.Params("resource")
	svc, ok := h.services.Records(name)
	if !ok {
		return nil, NewAppError("NOT_FOUND", 404, "Unknown resource: "+name)
	}
	return svc, nil
}
