package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University Timetable API",
        "description": "Timetable optimization service: runs, leaderboard, publication",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Optimizer", "description": "Optimization run lifecycle"},
        {"name": "Scorer", "description": "Run leaderboard and algorithm selection"},
        {"name": "Publish", "description": "Timetable publication"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Login with email and password",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/runs": {
            "post": {
                "tags": ["Optimizer"],
                "summary": "Launch optimization runs for a semester",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartRunRequest"}}
                ],
                "responses": {
                    "202": {"description": "Runs accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid request or dataset", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Optimizer"],
                "summary": "List optimization runs",
                "parameters": [
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "algorithm", "in": "query", "type": "string", "enum": ["genetic", "constraint", "reinforcement"]},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Runs", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/runs/{id}": {
            "get": {
                "tags": ["Optimizer"],
                "summary": "Get one optimization run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/runs/{id}/events": {
            "get": {
                "tags": ["Optimizer"],
                "summary": "Stream run progress as server-sent events",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Ordered progress events ending with a terminal event"}
                }
            }
        },
        "/optimizer/runs/{id}/cancel": {
            "post": {
                "tags": ["Optimizer"],
                "summary": "Request cooperative cancellation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "202": {"description": "Cancellation requested", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run already terminal", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/runs/{id}/result": {
            "get": {
                "tags": ["Optimizer"],
                "summary": "Get a terminal run's best timetable",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not terminal yet", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Run failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/leaderboard": {
            "get": {
                "tags": ["Scorer"],
                "summary": "Ranked comparison of a semester's terminal runs",
                "parameters": [
                    {"name": "semesterId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Leaderboard", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/semesters/{semester}/selection": {
            "get": {
                "tags": ["Scorer"],
                "summary": "Current algorithm selection",
                "parameters": [
                    {"name": "semester", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Selection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Nothing selected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Scorer"],
                "summary": "Select a run's algorithm for the semester",
                "parameters": [
                    {"name": "semester", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SelectAlgorithmRequest"}}
                ],
                "responses": {
                    "200": {"description": "Selection recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not selectable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/semesters/{semester}/publish": {
            "post": {
                "tags": ["Publish"],
                "summary": "Publish the selected run's timetable",
                "parameters": [
                    {"name": "semester", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No selection or run not publishable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/semesters/{semester}/published": {
            "get": {
                "tags": ["Publish"],
                "summary": "Current published timetable",
                "parameters": [
                    {"name": "semester", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Published schedule", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Nothing published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/optimizer/semesters/{semester}/published/export.csv": {
            "get": {
                "tags": ["Publish"],
                "summary": "Download the published timetable as CSV",
                "produces": ["text/csv"],
                "parameters": [
                    {"name": "semester", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "CSV attachment"},
                    "404": {"description": "Nothing published", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "StartRunRequest": {
            "type": "object",
            "required": ["semesterId"],
            "properties": {
                "semesterId": {"type": "string"},
                "algorithms": {
                    "type": "array",
                    "items": {"type": "string", "enum": ["genetic", "constraint", "reinforcement"]}
                },
                "params": {"type": "object"}
            }
        },
        "SelectAlgorithmRequest": {
            "type": "object",
            "required": ["runId"],
            "properties": {
                "semesterId": {"type": "string"},
                "runId": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "total": {"type": "integer"}
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
