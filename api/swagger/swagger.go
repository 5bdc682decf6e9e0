package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Pulse Metrics API",
        "description": "Analytics aggregation and compliance engine",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Analytics", "description": "Scoped metric reads"},
        {"name": "Operations", "description": "Backfill and instrumentation"}
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
                    "503": {"description": "A dependency is unavailable"}
                }
            }
        },
        "/analytics/pulse": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Bucketed mood average series",
                "parameters": [
                    {"name": "scope", "in": "query", "type": "string", "enum": ["organization", "team", "user"]},
                    {"name": "id", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "string", "enum": ["day", "week", "month", "quarter", "year"]},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "X-Read-Strategy", "in": "header", "type": "string", "enum": ["live_only", "aggregate_fallback", "shadow_compare"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid scope, period or range"}
                }
            }
        },
        "/analytics/shoutouts": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Bucketed shoutout counts",
                "parameters": [
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "id", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "string"},
                    {"name": "direction", "in": "query", "type": "string", "enum": ["given", "received", "all"]},
                    {"name": "visibility", "in": "query", "type": "string", "enum": ["public", "private", "all"]},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/compliance": {
            "get": {
                "tags": ["Analytics"],
                "summary": "On-time compliance series",
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string", "enum": ["compliance_checkin", "compliance_review"]},
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "id", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/leaderboard": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Ranked users over the range",
                "parameters": [
                    {"name": "metric", "in": "query", "type": "string", "enum": ["shoutouts_received", "shoutouts_given", "pulse_avg"]},
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "id", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/overview": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Composite organization dashboard",
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/analytics/export": {
            "get": {
                "tags": ["Analytics"],
                "summary": "Download a metric series as CSV or PDF",
                "parameters": [
                    {"name": "metric", "in": "query", "type": "string", "required": true, "enum": ["pulse", "compliance"]},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "scope", "in": "query", "type": "string"},
                    {"name": "id", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rendered document"},
                    "403": {"description": "Exports disabled"}
                }
            }
        },
        "/analytics/system": {
            "get": {
                "tags": ["Operations"],
                "summary": "Engine instrumentation snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/backfill": {
            "post": {
                "tags": ["Operations"],
                "summary": "Recompute stored aggregates for a range",
                "parameters": [
                    {"name": "X-Ops-Token", "in": "header", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BackfillRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid or oversized range"}
                }
            }
        }
    },
    "definitions": {
        "BackfillRequest": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {
                "from": {"type": "string"},
                "to": {"type": "string"}
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
