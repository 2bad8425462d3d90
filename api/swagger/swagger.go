package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FormaCore Progression API",
        "description": "Progress aggregation, attendance, dropout-risk scoring and alternance scheduling",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Events", "description": "Completion and coordination event ingestion"},
        {"name": "Progress", "description": "Materialized progress read model"},
        {"name": "Attendance", "description": "Session attendance tracking"},
        {"name": "Risk", "description": "Dropout-risk scoring and alerts"},
        {"name": "Alternance", "description": "Contract lifecycle and weekly calendars"},
        {"name": "Content", "description": "Formation content-tree registry"}
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
                    "200": {"description": "Ready"}
                }
            }
        },
        "/events/completions": {
            "post": {
                "tags": ["Events"],
                "summary": "Submit a completion event",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitCompletionRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/coordination": {
            "post": {
                "tags": ["Events"],
                "summary": "Record a coordination event",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordCoordinationRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/formations/{formationId}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Get a student's progress in a formation",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/formations/{formationId}/progress/rebuild": {
            "post": {
                "tags": ["Progress"],
                "summary": "Replay the event log and rebuild the progress state",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance for a session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordAttendanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate (student, session) record"}
                }
            }
        },
        "/students/{studentId}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Get a student's attendance summary",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/risk/alerts": {
            "get": {
                "tags": ["Risk"],
                "summary": "List students at risk of dropout",
                "parameters": [
                    {"name": "threshold", "in": "query", "type": "number"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/risk/batch": {
            "post": {
                "tags": ["Risk"],
                "summary": "Trigger the full risk sweep",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/formations/{formationId}/risk": {
            "get": {
                "tags": ["Risk"],
                "summary": "Compute a student's risk without persisting it",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/formations/{formationId}/risk/recompute": {
            "post": {
                "tags": ["Risk"],
                "summary": "Recompute and persist a student's risk",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/contracts": {
            "post": {
                "tags": ["Alternance"],
                "summary": "Create a draft alternance contract",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateContractRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/contracts/{id}/validate": {
            "post": {
                "tags": ["Alternance"],
                "summary": "Validate a draft contract and generate its calendar",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Inconsistent percentage split"}
                }
            }
        },
        "/contracts/{id}/transition": {
            "post": {
                "tags": ["Alternance"],
                "summary": "Move a contract to its next lifecycle status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionContractRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed"}
                }
            }
        },
        "/contracts/{id}/amend": {
            "post": {
                "tags": ["Alternance"],
                "summary": "Amend a contract and regenerate future weeks",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AmendContractRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/calendar": {
            "get": {
                "tags": ["Alternance"],
                "summary": "Get a student's alternance calendar",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendar/entries/{id}/confirm": {
            "post": {
                "tags": ["Alternance"],
                "summary": "Confirm one calendar week",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConfirmEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Entry already confirmed"}
                }
            }
        },
        "/formations/{formationId}/structure-changed": {
            "post": {
                "tags": ["Content"],
                "summary": "Signal that a formation's structure changed",
                "parameters": [
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Structural validation failed"}
                }
            }
        },
        "/formations/{formationId}/summary": {
            "get": {
                "tags": ["Content"],
                "summary": "Get a formation's tree summary and leaf weights",
                "parameters": [
                    {"name": "formationId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubmitCompletionRequest": {
            "type": "object",
            "properties": {
                "eventId": {"type": "string"},
                "studentId": {"type": "string"},
                "formationId": {"type": "string"},
                "leafId": {"type": "string"},
                "kind": {"type": "string", "enum": ["EXERCISE_SUBMITTED", "QCM_ATTEMPTED", "CHAPTER_VIEWED"]},
                "score": {"type": "number"},
                "maxScore": {"type": "number"},
                "passed": {"type": "boolean"},
                "occurredAt": {"type": "string"}
            },
            "required": ["studentId", "formationId", "leafId", "kind", "occurredAt"]
        },
        "RecordCoordinationRequest": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "formationId": {"type": "string"},
                "kind": {"type": "string", "enum": ["COORDINATION_MEETING", "COMPANY_VISIT", "SKILLS_ASSESSMENT", "PROGRESS_ASSESSMENT"]},
                "rating": {"type": "number"},
                "completionDelta": {"type": "number"},
                "flaggedDifficulty": {"type": "boolean"},
                "notes": {"type": "string"},
                "occurredAt": {"type": "string"}
            },
            "required": ["studentId", "formationId", "kind", "occurredAt"]
        },
        "RecordAttendanceRequest": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "sessionId": {"type": "string"},
                "status": {"type": "string", "enum": ["PRESENT", "ABSENT", "LATE", "EXCUSED"]},
                "minutesLate": {"type": "integer"},
                "supersedesId": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["studentId", "sessionId", "status"]
        },
        "CreateContractRequest": {
            "type": "object",
            "properties": {
                "studentId": {"type": "string"},
                "sessionId": {"type": "string"},
                "centerPercentage": {"type": "number"},
                "companyPercentage": {"type": "number"},
                "weeklyCenterHours": {"type": "number"},
                "weeklyCompanyHours": {"type": "number"},
                "rhythm": {"type": "string"},
                "startDate": {"type": "string"},
                "endDate": {"type": "string"}
            },
            "required": ["studentId", "sessionId", "startDate", "endDate"]
        },
        "AmendContractRequest": {
            "type": "object",
            "properties": {
                "endDate": {"type": "string"},
                "centerPercentage": {"type": "number"},
                "companyPercentage": {"type": "number"},
                "rhythm": {"type": "string"}
            }
        },
        "TransitionContractRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["ACTIVE", "COMPLETED", "TERMINATED"]}
            },
            "required": ["status"]
        },
        "ConfirmEntryRequest": {
            "type": "object",
            "properties": {
                "confirmedBy": {"type": "string"}
            },
            "required": ["confirmedBy"]
        },
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
