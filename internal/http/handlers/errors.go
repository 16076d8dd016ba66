package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/betlinkr/betlinkr-api/internal/service"
)

// mapServiceError translates service-layer errors to Huma status errors.
// Unknown errors become opaque 500s; their detail goes to the log, not the
// client.
func mapServiceError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, service.ErrNameTaken):
		return huma.Error409Conflict("name already in use")
	case errors.Is(err, service.ErrLinkInactive):
		return huma.Error409Conflict("link is not active")
	case service.IsMalformed(err):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("failed to " + action)
	}
}
