package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CityWatch Dispatch API",
        "description": "Case assignment and backup dispatch for the CityWatch crime reporting platform",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and officer onboarding"},
        {"name": "Assignments", "description": "Report-to-officer assignment lifecycle"},
        {"name": "Backup", "description": "Backup requests and nearby officer dispatch"},
        {"name": "Presence", "description": "Officer duty status and location"},
        {"name": "Notifications", "description": "In-app notification feed"},
        {"name": "Realtime", "description": "Live dispatch event stream"}
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "Tokens rotated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/officers": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register officer",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Officer created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate email", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Assignment page", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Assign officer to report",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Assignment created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Active assignment exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/{id}/status": {
            "patch": {
                "tags": ["Assignments"],
                "summary": "Update assignment status",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Assignment updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Illegal transition or lost race", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments/export": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Export assignments as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Rendered file"}
                }
            }
        },
        "/reports/{reportId}/assignment": {
            "delete": {
                "tags": ["Assignments"],
                "summary": "Unassign report",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Assignment cancelled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "204": {"description": "Nothing to cancel"}
                }
            }
        },
        "/backup/requests": {
            "post": {
                "tags": ["Backup"],
                "summary": "Request backup",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Request dispatched", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Open request exists", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Backup"],
                "summary": "Cancel pending backup request",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Cancelled or nothing pending"}
                }
            }
        },
        "/backup/requests/{id}/ack": {
            "post": {
                "tags": ["Backup"],
                "summary": "Acknowledge backup request",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Request acknowledged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/backup/requests/{id}/resolve": {
            "post": {
                "tags": ["Backup"],
                "summary": "Resolve backup request",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Request resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/presence": {
            "get": {
                "tags": ["Presence"],
                "summary": "List on-duty officers",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "On-duty officers", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/presence/location": {
            "put": {
                "tags": ["Presence"],
                "summary": "Update own location",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Ping accepted"}
                }
            }
        },
        "/presence/duty": {
            "put": {
                "tags": ["Presence"],
                "summary": "Update own duty status",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "204": {"description": "Duty status recorded"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List unread notifications",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Unread page", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/unread-count": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Unread badge count",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Count", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/ws": {
            "get": {
                "tags": ["Realtime"],
                "summary": "Upgrade to live dispatch stream",
                "responses": {
                    "101": {"description": "Switching protocols"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
