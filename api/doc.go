// Package api provides OpenAPI/Swagger documentation for the ImageFlow API.
//
// This package contains the request/response types and related documentation
// for the ImageFlow HTTP API.
//
// # API Overview
//
// ImageFlow provides a RESTful API for:
//   - Image generation with multi-provider adapters and key rotation
//   - API key pool status
//   - Provider listing
//   - Configuration hot reload
//   - Health monitoring and metrics
//
// # Authentication
//
// Admin endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/imageflow/main.go -o api --parseDependency --parseInternal
package api
