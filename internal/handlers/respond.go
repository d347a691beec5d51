package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/devitachiui22/aotravel-sub002/internal/apperrors"
	"github.com/devitachiui22/aotravel-sub002/internal/engine"
)

// fail writes a typed engine failure: stable machine-readable kind plus
// a human-readable message.
func fail(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{
		"kind":  apperrors.KindOf(err),
		"error": apperrors.MessageOf(err),
	})
}

// actorFrom builds the verified actor identity set by the auth middleware.
func actorFrom(c *gin.Context) engine.Actor {
	return engine.Actor{
		ID:   c.GetUint("userId"),
		Role: c.GetString("userType"),
	}
}
