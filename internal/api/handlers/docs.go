package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// swaggerSpec is a hand-maintained OpenAPI document for the Control API.
// The teacher generates this file with swag init against handler
// annotations; without running that generator here, the same document is
// kept as a static literal instead, wired into the same gin-swagger UI.
const swaggerSpec = `{
  "swagger": "2.0",
  "info": {
    "title": "Task Queue Engine API",
    "description": "Scheduler and persistence control API for agent task queues",
    "version": "1.0.0"
  },
  "basePath": "/",
  "paths": {
    "/health": {"get": {"tags": ["Health"], "summary": "Health check", "responses": {"200": {"description": "Service is healthy"}}}},
    "/ready": {"get": {"tags": ["Health"], "summary": "Readiness check", "responses": {"200": {"description": "Service is ready"}, "503": {"description": "Service is not ready"}}}},
    "/health/store": {"get": {"tags": ["Health"], "summary": "Queue Store backend status", "responses": {"200": {"description": "Store is reachable"}, "503": {"description": "Store is unavailable"}}}},
    "/api/queue": {"post": {"tags": ["Queue"], "summary": "Create a queue", "responses": {"201": {"description": "Created"}, "400": {"description": "Invalid request"}}}},
    "/api/queues": {"get": {"tags": ["Queue"], "summary": "List queues", "responses": {"200": {"description": "Queue summaries"}}}},
    "/api/queue/{id}": {
      "get": {"tags": ["Queue"], "summary": "Get a queue", "responses": {"200": {"description": "Queue"}, "404": {"description": "Not found"}}},
      "delete": {"tags": ["Queue"], "summary": "Delete a queue", "responses": {"200": {"description": "Deleted"}, "400": {"description": "Running, not forced"}, "404": {"description": "Not found"}}}
    },
    "/api/queue/{id}/start": {"post": {"tags": ["Queue"], "summary": "Start dispatching a queue", "responses": {"200": {"description": "Started"}, "400": {"description": "Already running"}, "404": {"description": "Not found"}}}},
    "/api/queue/{id}/pause": {"post": {"tags": ["Queue"], "summary": "Pause a queue", "responses": {"200": {"description": "Paused"}, "404": {"description": "Not found"}}}},
    "/api/queue/{id}/resume": {"post": {"tags": ["Queue"], "summary": "Resume a queue", "responses": {"200": {"description": "Resumed"}, "404": {"description": "Not found"}}}},
    "/api/queue/{id}/abort": {"post": {"tags": ["Queue"], "summary": "Force-stop a queue", "responses": {"200": {"description": "Aborted"}, "400": {"description": "No active scheduler"}, "404": {"description": "Not found"}}}},
    "/api/queue/{id}/tasks/{taskId}/retry": {"post": {"tags": ["Queue"], "summary": "Retry a task", "responses": {"200": {"description": "Task reset"}, "404": {"description": "Not found"}}}},
    "/api/queue/{id}/dead-letter": {"get": {"tags": ["Queue"], "summary": "List exhausted-retry tasks", "responses": {"200": {"description": "Dead-letter view"}}}},
    "/api/queue/{id}/metrics": {"get": {"tags": ["Queue"], "summary": "Queue and live scheduler metrics", "responses": {"200": {"description": "Metrics"}}}},
    "/api/queue/busy-agents": {"get": {"tags": ["Queue"], "summary": "List currently busy agent ids", "responses": {"200": {"description": "Busy agents"}}}},
    "/api/queue/stream/{id}": {"get": {"tags": ["Queue"], "summary": "Subscribe to queue lifecycle events", "produces": ["text/event-stream"], "responses": {"200": {"description": "Event stream"}, "404": {"description": "Not found"}}}}
  }
}`

// DocsHandler serves API documentation endpoints.
type DocsHandler struct{}

func NewDocsHandler() *DocsHandler {
	return &DocsHandler{}
}

// GetSwaggerJSON serves the OpenAPI specification in JSON format.
func (h *DocsHandler) GetSwaggerJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(swaggerSpec))
}

// GetSwaggerYAML is unavailable without the generated swag artifacts; it
// redirects callers to the JSON document instead of serving a 404.
func (h *DocsHandler) GetSwaggerYAML(c *gin.Context) {
	c.Redirect(http.StatusFound, "/swagger.json")
}

// RedirectToSwaggerUI redirects to Swagger UI.
func (h *DocsHandler) RedirectToSwaggerUI(c *gin.Context) {
	c.Redirect(http.StatusFound, "/docs/")
}

// GetSwaggerUI returns the Swagger UI handler.
func (h *DocsHandler) GetSwaggerUI() gin.HandlerFunc {
	return ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger.json"))
}

// GetAPIIndex serves a simple API documentation index.
func (h *DocsHandler) GetAPIIndex(c *gin.Context) {
	html := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Task Queue Engine API Documentation</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 800px; margin: 0 auto; padding: 2rem; line-height: 1.6; color: #333; }
        .header { text-align: center; margin-bottom: 3rem; padding-bottom: 2rem; border-bottom: 2px solid #e1e5e9; }
        .links { display: grid; grid-template-columns: repeat(auto-fit, minmax(250px, 1fr)); gap: 1.5rem; margin-bottom: 3rem; }
        .link-card { background: #f8f9fa; border: 1px solid #e1e5e9; border-radius: 8px; padding: 1.5rem; text-decoration: none; color: inherit; }
        .endpoints { background: #f8f9fa; border-radius: 8px; padding: 1.5rem; }
        .endpoint-list { list-style: none; padding: 0; }
        .endpoint-list li { margin-bottom: 0.5rem; padding: 0.5rem; background: white; border-radius: 4px; font-family: 'Monaco', 'Menlo', monospace; font-size: 0.9rem; }
        .method { display: inline-block; padding: 0.2rem 0.5rem; border-radius: 3px; color: white; font-weight: bold; margin-right: 0.5rem; min-width: 60px; text-align: center; }
        .get { background: #28a745; } .post { background: #007bff; } .delete { background: #dc3545; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Task Queue Engine API</h1>
        <p>Scheduler and persistence control API for agent task queues</p>
    </div>
    <div class="links">
        <a href="/docs/" class="link-card"><h3>Interactive Documentation</h3><p>Swagger UI</p></a>
        <a href="/swagger.json" class="link-card"><h3>OpenAPI JSON</h3><p>Raw OpenAPI specification</p></a>
        <a href="/health" class="link-card"><h3>Health Check</h3><p>Check API service health and status</p></a>
    </div>
    <div class="endpoints">
        <h3>Quick Reference</h3>
        <ul class="endpoint-list">
            <li><span class="method get">GET</span> /health - Health check</li>
            <li><span class="method get">GET</span> /ready - Readiness check</li>
            <li><span class="method get">GET</span> /health/store - Queue Store backend status</li>
            <li><span class="method post">POST</span> /api/queue - Create queue</li>
            <li><span class="method get">GET</span> /api/queues - List queues</li>
            <li><span class="method get">GET</span> /api/queue/{id} - Get queue</li>
            <li><span class="method delete">DELETE</span> /api/queue/{id} - Delete queue</li>
            <li><span class="method post">POST</span> /api/queue/{id}/start - Start dispatching</li>
            <li><span class="method post">POST</span> /api/queue/{id}/pause - Pause</li>
            <li><span class="method post">POST</span> /api/queue/{id}/resume - Resume</li>
            <li><span class="method post">POST</span> /api/queue/{id}/abort - Force-stop</li>
            <li><span class="method post">POST</span> /api/queue/{id}/tasks/{taskId}/retry - Retry task</li>
            <li><span class="method get">GET</span> /api/queue/{id}/dead-letter - Dead-letter tasks</li>
            <li><span class="method get">GET</span> /api/queue/{id}/metrics - Queue metrics</li>
            <li><span class="method get">GET</span> /api/queue/busy-agents - Busy agents</li>
            <li><span class="method get">GET</span> /api/queue/stream/{id} - Event stream (SSE)</li>
        </ul>
    </div>
</body>
</html>`

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
