//go:build swagger

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerEnabled reports whether /swagger/* is served by this build.
const SwaggerEnabled = true

// SwaggerInfo describes the API. `swag init -g cmd/llmd/docs.go` regenerates a
// full document from the handler annotations; this one covers the routes.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "llmd API",
	Description:      "OpenAI-compatible local model inference server.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/v1/embeddings": {"post": {"tags": ["openai"], "summary": "Create embeddings", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}}},
        "/v1/rerank": {"post": {"tags": ["openai"], "summary": "Rerank documents against a query", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}}},
        "/v1/chat/completions": {"post": {"tags": ["openai"], "summary": "Create a chat completion", "consumes": ["application/json"], "produces": ["application/json", "text/event-stream"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "429": {"description": "Too Many Requests"}, "500": {"description": "Internal Server Error"}}}},
        "/v1/models": {"get": {"tags": ["models"], "summary": "List model artifacts", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/v1/models/load": {"post": {"tags": ["models"], "summary": "Load a model into the cache", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}, "500": {"description": "Internal Server Error"}}}},
        "/v1/models/unload": {"post": {"tags": ["models"], "summary": "Unload a cached model", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}},
        "/v1/sessions/{id}": {"delete": {"tags": ["sessions"], "summary": "Release a chat session", "produces": ["application/json"], "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/status": {"get": {"tags": ["ops"], "summary": "Cache and session status", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}}
    }
}`
