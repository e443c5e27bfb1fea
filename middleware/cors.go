package middleware

import (
	"strings"

	"github.com/mikeydub/go-union/env"
	"github.com/mikeydub/go-union/util"
)

func IsOriginAllowed(requestOrigin string) bool {
	if env.GetString("ENV") == "local" {
		return true
	}
	allowedOrigins := strings.Split(env.GetString("ALLOWED_ORIGINS"), ",")
	return util.ContainsString(allowedOrigins, requestOrigin) || util.ContainsString(allowedOrigins, "*")
}
