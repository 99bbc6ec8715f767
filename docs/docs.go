// Package docs содержит OpenAPI-описание HTTP API.
package docs

import _ "embed"

//go:embed swagger.json
var SwaggerJSON []byte
