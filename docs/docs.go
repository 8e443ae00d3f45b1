// Package docs registers the OpenAPI description of the arcade API with swag
// so gin-swagger can serve it under /swagger. Keep it in step with the
// routes listed on router.NewEngine.
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "openapi": "3.1.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "servers": [{"url": "{{.BasePath}}"}],
    "components": {
        "securitySchemes": {
            "ApiKey": {"type": "apiKey", "in": "header", "name": "X-API-Key"},
            "Bearer": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
            "GatewaySignature": {"type": "apiKey", "in": "header", "name": "X-Signature"}
        },
        "schemas": {
            "ErrorInfo": {
                "type": "object",
                "required": ["code", "message"],
                "properties": {
                    "code": {"type": "string", "examples": ["INSUFFICIENT_BALANCE"]},
                    "message": {"type": "string"},
                    "details": {"type": "object"},
                    "request_id": {"type": "string"}
                }
            },
            "ErrorResponse": {
                "type": "object",
                "properties": {
                    "success": {"type": "boolean", "const": false},
                    "error": {"$ref": "#/components/schemas/ErrorInfo"}
                }
            },
            "AuthorizeSessionRequest": {
                "type": "object",
                "required": ["session_id", "app_code", "site_id", "player_count"],
                "properties": {
                    "session_id": {"type": "string", "examples": ["op1_1700000000000_abcd1234efgh5678"]},
                    "app_code": {"type": "string"},
                    "site_id": {"type": "string"},
                    "player_count": {"type": "integer", "minimum": 1}
                }
            },
            "SessionResponse": {
                "type": "object",
                "properties": {
                    "session_id": {"type": "string"},
                    "unit_price": {"type": "string", "examples": ["10.00"]},
                    "player_count": {"type": "integer"},
                    "total_cost": {"type": "string", "examples": ["50.00"]},
                    "balance_after": {"type": "string", "examples": ["400.00"]},
                    "authorized_at": {"type": "string", "format": "date-time"}
                }
            },
            "CreateRechargeOrderRequest": {
                "type": "object",
                "required": ["amount", "gateway"],
                "properties": {
                    "amount": {"type": "string", "examples": ["100.00"]},
                    "gateway": {"type": "string", "enum": ["WECHAT", "ALIPAY"]}
                }
            },
            "RechargeOrderResponse": {
                "type": "object",
                "properties": {
                    "order_no": {"type": "string"},
                    "amount": {"type": "string"},
                    "status": {"type": "string", "enum": ["PENDING", "PROCESSING", "SUCCESS", "FAILED", "EXPIRED", "ANOMALY"]},
                    "gateway": {"type": "string"},
                    "payment_url": {"type": "string"},
                    "qr_code_data": {"type": "string"},
                    "expires_at": {"type": "string", "format": "date-time"},
                    "paid_at": {"type": "string", "format": "date-time"}
                }
            },
            "PaymentCallbackRequest": {
                "type": "object",
                "required": ["order_id", "status", "paid_amount", "gateway_transaction_id"],
                "properties": {
                    "order_id": {"type": "string"},
                    "status": {"type": "string", "enum": ["success", "failed"]},
                    "paid_amount": {"type": "string"},
                    "gateway_transaction_id": {"type": "string"},
                    "paid_at": {"type": "string", "format": "date-time"},
                    "error_code": {"type": "string"},
                    "error_message": {"type": "string"}
                }
            },
            "PaymentCallbackResponse": {
                "type": "object",
                "properties": {
                    "success": {"type": "boolean"},
                    "message": {"type": "string"},
                    "code": {"type": "string"}
                }
            },
            "TokenResponse": {
                "type": "object",
                "properties": {
                    "token": {"type": "string"},
                    "token_type": {"type": "string", "const": "Bearer"},
                    "expires_at": {"type": "string", "format": "date-time"}
                }
            },
            "RevokeTokenRequest": {
                "type": "object",
                "properties": {
                    "token": {"type": "string", "description": "Omit to revoke every token issued so far"}
                }
            }
        },
        "responses": {
            "Error": {
                "description": "Failure envelope",
                "content": {"application/json": {"schema": {"$ref": "#/components/schemas/ErrorResponse"}}}
            }
        }
    },
    "paths": {
        "/sessions/authorize": {
            "post": {
                "tags": ["sessions"],
                "summary": "Authorize and bill a play session",
                "description": "Replaying a committed session id returns the original result unchanged.",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "X-Timestamp", "in": "header", "description": "Unix seconds, required with X-API-Key", "schema": {"type": "integer"}}
                ],
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/AuthorizeSessionRequest"}}}
                },
                "responses": {
                    "200": {
                        "description": "Session billed or replayed",
                        "content": {"application/json": {"schema": {"type": "object", "properties": {
                            "success": {"type": "boolean", "const": true},
                            "data": {"$ref": "#/components/schemas/SessionResponse"}
                        }}}}
                    },
                    "400": {"$ref": "#/components/responses/Error"},
                    "401": {"$ref": "#/components/responses/Error"},
                    "402": {"$ref": "#/components/responses/Error"},
                    "403": {"$ref": "#/components/responses/Error"},
                    "404": {"$ref": "#/components/responses/Error"},
                    "413": {"$ref": "#/components/responses/Error"},
                    "429": {"$ref": "#/components/responses/Error"},
                    "503": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/sessions/{session_id}": {
            "get": {
                "tags": ["sessions"],
                "summary": "Look up a committed session",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "session_id", "in": "path", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {
                        "description": "Committed session",
                        "content": {"application/json": {"schema": {"type": "object", "properties": {
                            "success": {"type": "boolean"},
                            "data": {"$ref": "#/components/schemas/SessionResponse"}
                        }}}}
                    },
                    "401": {"$ref": "#/components/responses/Error"},
                    "404": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/recharge-orders": {
            "post": {
                "tags": ["recharge"],
                "summary": "Create a recharge order and request payment from the gateway",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/CreateRechargeOrderRequest"}}}
                },
                "responses": {
                    "201": {
                        "description": "Order created",
                        "content": {"application/json": {"schema": {"type": "object", "properties": {
                            "success": {"type": "boolean"},
                            "data": {"$ref": "#/components/schemas/RechargeOrderResponse"}
                        }}}}
                    },
                    "400": {"$ref": "#/components/responses/Error"},
                    "401": {"$ref": "#/components/responses/Error"},
                    "500": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/recharge-orders/{order_no}": {
            "get": {
                "tags": ["recharge"],
                "summary": "Get one of the caller's recharge orders",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "parameters": [
                    {"name": "order_no", "in": "path", "required": true, "schema": {"type": "string"}}
                ],
                "responses": {
                    "200": {
                        "description": "Order",
                        "content": {"application/json": {"schema": {"type": "object", "properties": {
                            "success": {"type": "boolean"},
                            "data": {"$ref": "#/components/schemas/RechargeOrderResponse"}
                        }}}}
                    },
                    "404": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/payment/callback/{gateway}": {
            "post": {
                "tags": ["payment"],
                "summary": "Payment gateway settlement callback",
                "description": "The signature is HMAC-SHA256 of the raw body. Callbacks for terminal orders are acknowledged without effect.",
                "security": [{"GatewaySignature": []}],
                "parameters": [
                    {"name": "gateway", "in": "path", "required": true, "schema": {"type": "string", "enum": ["wechat", "alipay"]}}
                ],
                "requestBody": {
                    "required": true,
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/PaymentCallbackRequest"}}}
                },
                "responses": {
                    "200": {"description": "Processed", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/PaymentCallbackResponse"}}}},
                    "400": {"description": "Rejected", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/PaymentCallbackResponse"}}}},
                    "401": {"description": "Bad signature", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/PaymentCallbackResponse"}}}}
                }
            }
        },
        "/auth/token": {
            "post": {
                "tags": ["auth"],
                "summary": "Issue a bearer token for the calling operator",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "responses": {
                    "201": {
                        "description": "Token issued",
                        "content": {"application/json": {"schema": {"type": "object", "properties": {
                            "success": {"type": "boolean"},
                            "data": {"$ref": "#/components/schemas/TokenResponse"}
                        }}}}
                    },
                    "401": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/auth/revoke": {
            "post": {
                "tags": ["auth"],
                "summary": "Revoke one token or every token of the calling operator",
                "security": [{"ApiKey": []}, {"Bearer": []}],
                "requestBody": {
                    "content": {"application/json": {"schema": {"$ref": "#/components/schemas/RevokeTokenRequest"}}}
                },
                "responses": {
                    "204": {"description": "Revoked"},
                    "400": {"$ref": "#/components/responses/Error"},
                    "401": {"$ref": "#/components/responses/Error"}
                }
            }
        },
        "/system/info": {
            "get": {
                "tags": ["system"],
                "summary": "Build and uptime information",
                "responses": {"200": {"description": "System information"}}
            }
        }
    }
}`

// SwaggerInfo holds the exported document metadata; callers may adjust it
// before the first request.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Arcade Authorization & Billing API",
	Description:      "Session authorization, real-time billing and recharge settlement for VR/MR arcade operators.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
