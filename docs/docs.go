// Package docs registers the swagger spec for the ops API.
// Regenerate with `swag init -g cmd/api/main.go` after handler changes.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ingest/email": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ingest"],
                "summary": "Ingest an inbound email",
                "responses": {"200": {"description": "Duplicate"}, "201": {"description": "Created"}}
            }
        },
        "/ingest/wire": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["ingest"],
                "summary": "Ingest a wire-service item",
                "responses": {"200": {"description": "Duplicate"}, "201": {"description": "Created"}}
            }
        },
        "/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List workflow runs",
                "parameters": [
                    {"type": "string", "name": "phase", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/drafts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["drafts"],
                "summary": "List drafts by status",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/review/drafts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "List drafts held for review",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/review/drafts/{id}/approve": {
            "post": {
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "Approve a held draft",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/review/drafts/{id}/reject": {
            "post": {
                "produces": ["application/json"],
                "tags": ["review"],
                "summary": "Reject a held draft",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/threads": {
            "get": {
                "produces": ["application/json"],
                "tags": ["threads"],
                "summary": "List story threads",
                "parameters": [
                    {"type": "string", "name": "community_id", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/threads/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["threads"],
                "summary": "Get thread detail",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/threads/{id}/resolve": {
            "post": {
                "produces": ["application/json"],
                "tags": ["threads"],
                "summary": "Resolve a thread",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/moderation/{kind}/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["moderation"],
                "summary": "Moderation history for one piece of content",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Town Desk API",
	Description:      "Ops API for the local news content pipeline",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
