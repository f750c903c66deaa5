package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "imgdrop API",
        "description": "Anonymous ephemeral image hosting",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Uploads", "description": "Anonymous image ingestion"},
        {"name": "Posts", "description": "Viewing shared images"},
        {"name": "Raw", "description": "Signed image bytes"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A backend is unreachable"}
                }
            }
        },
        "/api/v1/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload images",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "image", "in": "formData", "required": true, "type": "file", "description": "Image, repeat for up to 20 files"},
                    {"name": "make_one_post", "in": "formData", "type": "boolean"},
                    {"name": "overview", "in": "formData", "type": "string", "maxLength": 1000},
                    {"name": "password", "in": "formData", "type": "string", "minLength": 6},
                    {"name": "selfdestruct", "in": "formData", "type": "integer", "minimum": 1, "maximum": 100},
                    {"name": "resize", "in": "formData", "type": "boolean"},
                    {"name": "resize_width", "in": "formData", "type": "integer", "minimum": 400, "maximum": 3000},
                    {"name": "resize_height", "in": "formData", "type": "integer", "minimum": 400, "maximum": 3000},
                    {"name": "output_format", "in": "formData", "type": "string", "enum": ["jpg", "jpeg", "png", "webp"]},
                    {"name": "bot_token", "in": "formData", "type": "string"},
                    {"name": "contact", "in": "formData", "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No files could be stored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too many uploads", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/posts/{sid}": {
            "get": {
                "tags": ["Posts"],
                "summary": "View a post",
                "parameters": [
                    {"name": "sid", "in": "path", "required": true, "type": "string"},
                    {"name": "X-Post-Password", "in": "header", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Password required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not available", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Posts"],
                "summary": "View a protected post with a password",
                "parameters": [
                    {"name": "sid", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Password required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not available", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/posts/{sid}/unlock": {
            "post": {
                "tags": ["Posts"],
                "summary": "Unlock a protected post for this browser",
                "parameters": [
                    {"name": "sid", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "Unlock cookie set", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Password required", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/raw/{id}": {
            "get": {
                "tags": ["Raw"],
                "summary": "Fetch image bytes via a signed link",
                "produces": ["image/jpeg", "image/png", "image/gif", "image/bmp", "image/webp"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Image bytes"},
                    "404": {"description": "Not available", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "PasswordRequest": {
            "type": "object",
            "properties": {
                "password": {"type": "string"}
            },
            "required": ["password"]
        },
        "FileFailure": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "name": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "UploadResponse": {
            "type": "object",
            "properties": {
                "shareId": {"type": "string"},
                "isGroup": {"type": "boolean"},
                "artifactIds": {"type": "array", "items": {"type": "string"}},
                "failures": {"type": "array", "items": {"$ref": "#/definitions/FileFailure"}},
                "url": {"type": "string"}
            }
        },
        "ResolvedArtifact": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "contentType": {"type": "string"},
                "url": {"type": "string"},
                "linkExpiresAt": {"type": "string", "format": "date-time"}
            }
        },
        "ResolveResult": {
            "type": "object",
            "properties": {
                "shareId": {"type": "string"},
                "isGroup": {"type": "boolean"},
                "description": {"type": "string"},
                "artifacts": {"type": "array", "items": {"$ref": "#/definitions/ResolvedArtifact"}},
                "remainingViews": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
