package client

import (
	"context"
	"net/http"

	"lims-forms/internal/export"
)

// Export posts a table payload to the document-export endpoint and returns
// the rendered file with its content type.
func (c *Client) Export(ctx context.Context, p export.Payload) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.exportPath, nil, p)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "*/*")
	data, hdr, err := c.send(req)
	if err != nil {
		return nil, "", err
	}
	return data, hdr.Get("Content-Type"), nil
}
