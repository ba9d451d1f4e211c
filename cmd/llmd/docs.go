package main

// General API documentation for swaggo. Run `swag init -g cmd/llmd/docs.go`
// to regenerate the document served with -tags=swagger.
//
// @title           llmd API
// @version         1.0
// @description     OpenAI-compatible HTTP API for local GGUF chat, embedding and reranker models.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
