package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"lims-forms/internal/export"
	"lims-forms/internal/form"
	"lims-forms/internal/section"
)

// FileHandler serves section exports and spreadsheet imports.
type FileHandler struct {
	h       *Handler
	maxSize int64
}

func NewFileHandler(h *Handler, maxSize int64) *FileHandler {
	return &FileHandler{h: h, maxSize: maxSize}
}

// Export handles GET /api/sessions/:id/sections/:section/export
//
// The section is rendered locally as xlsx. With ?remote=true the payload is
// sent to the backend's document exporter instead and its file is relayed.
func (fh *FileHandler) Export(c *fiber.Ctx) error {
	s, err := fh.h.resolveSession(c)
	if err != nil {
		return err
	}
	name := c.Params("section")

	var snap section.Section
	var recordID string
	err = s.Do(func(a *form.Aggregator) error {
		if a.Definition().GetSection(name) == nil {
			return UnknownSectionError(name)
		}
		snap = a.Serialize().Sections[name]
		recordID = a.RecordID()
		return nil
	})
	if err != nil {
		return toAppError(err)
	}

	base := s.Form.Name + "-" + name
	if recordID != "" {
		base += "-" + recordID
	}
	payload := export.FromSection(snap, c.Query("file_name", base))

	if c.QueryBool("remote", false) {
		data, contentType, err := fh.h.services.Client().Export(fh.h.backendContext(c, getUser(c)), payload)
		if err != nil {
			fh.h.logger.Warn("remote export failed", zap.String("session", s.ID), zap.Error(err))
			return UpstreamError("Document export failed")
		}
		if contentType == "" {
			contentType = fiber.MIMEOctetStream
		}
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, payload.FileName))
		return c.Send(data)
	}

	data, err := export.Bytes(payload)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	c.Set(fiber.HeaderContentType, export.ContentTypeXLSX)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.XLSXName(payload, base)))
	return c.Send(data)
}

// Import handles POST /api/sessions/:id/sections/:section/import
// The multipart "file" field must hold an xlsx workbook whose header row
// names the section's columns.
func (fh *FileHandler) Import(c *fiber.Ctx) error {
	s, err := fh.h.resolveSession(c)
	if err != nil {
		return err
	}
	name := c.Params("section")

	file, err := c.FormFile("file")
	if err != nil {
		return InvalidPayloadError("Missing file in form data")
	}
	if fh.maxSize > 0 && file.Size > fh.maxSize {
		return NewAppError("FILE_TOO_LARGE", 413, fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, fh.maxSize))
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	var out section.Section
	var snapshot *form.Aggregate
	err = s.Do(func(a *form.Aggregator) error {
		w, err := a.Section(name)
		if err != nil {
			return err
		}
		imported, err := export.ReadSection(src, w.Snapshot())
		if err != nil {
			return InvalidPayloadError(fmt.Sprintf("Cannot read workbook: %v", err))
		}
		if err := a.ReplaceSection(name, imported); err != nil {
			return err
		}
		snapshot = a.Serialize()
		out = snapshot.Sections[name]
		return nil
	})
	if err != nil {
		return toAppError(err)
	}

	fh.h.saveDraft(c.UserContext(), s, snapshot)
	fh.h.logger.Info("section imported",
		zap.String("session", s.ID),
		zap.String("section", name),
		zap.String("file", file.Filename),
		zap.Int("rows", len(out.Data)))
	return c.JSON(fiber.Map{"data": out})
}
