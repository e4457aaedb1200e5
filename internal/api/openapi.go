package api

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/gaspardpetit/imgrelay/internal/logx"
)

var openapiJSON = mustOpenAPISchema()

// Document returns the OpenAPI description of the relay endpoints.
func Document() *openapi3.T {
	failure := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("error", openapi3.NewStringSchema())

	generateReq := openapi3.NewObjectSchema().
		WithProperty("model", openapi3.NewStringSchema().WithNullable()).
		WithProperty("lora", openapi3.NewStringSchema().WithNullable()).
		WithProperty("prompt", openapi3.NewStringSchema().WithNullable()).
		WithProperty("seed", openapi3.NewIntegerSchema().WithNullable())
	generateRes := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("image", openapi3.NewStringSchema().WithNullable()).
		WithProperty("seed", openapi3.NewIntegerSchema().WithNullable())

	health := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum("healthy")).
		WithProperty("backend_connected", openapi3.NewBoolSchema()).
		WithProperty("backend_url", openapi3.NewStringSchema()).
		WithProperty("backend_info", openapi3.NewObjectSchema().WithNullable())

	updateReq := openapi3.NewObjectSchema().
		WithProperty("url", openapi3.NewStringSchema())
	updateReq.Required = []string{"url"}
	updateRes := openapi3.NewObjectSchema().
		WithProperty("success", openapi3.NewBoolSchema()).
		WithProperty("backend_url", openapi3.NewStringSchema())

	jsonResp := func(desc string, s *openapi3.Schema) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(s)}
	}

	generate := openapi3.NewOperation()
	generate.OperationID = "generate"
	generate.Summary = "Generate an image on the backend"
	generate.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchema(generateReq).WithRequired(true)}
	generate.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResp("Generated image", generateRes)),
		openapi3.WithStatus(http.StatusInternalServerError, jsonResp("Backend or relay error", failure)),
		openapi3.WithStatus(http.StatusServiceUnavailable, jsonResp("Backend unreachable", failure)),
		openapi3.WithStatus(http.StatusGatewayTimeout, jsonResp("Backend timed out", failure)),
	)

	checkHealth := openapi3.NewOperation()
	checkHealth.OperationID = "health"
	checkHealth.Summary = "Probe the backend"
	checkHealth.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResp("Relay and backend status", health)),
	)

	update := openapi3.NewOperation()
	update.OperationID = "updateBackendUrl"
	update.Summary = "Replace the backend base URL"
	update.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().WithJSONSchema(updateReq).WithRequired(true)}
	update.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, jsonResp("URL stored", updateRes)),
		openapi3.WithStatus(http.StatusBadRequest, jsonResp("URL missing", failure)),
		openapi3.WithStatus(http.StatusUnauthorized, jsonResp("Admin key required", failure)),
	)

	landing := openapi3.NewOperation()
	landing.OperationID = "landing"
	landing.Summary = "Landing page"
	landing.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("HTML page")}),
	)

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "imgrelay API",
			Version: "1.0.0",
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath("/", &openapi3.PathItem{Get: landing}),
			openapi3.WithPath("/generate", &openapi3.PathItem{Post: generate}),
			openapi3.WithPath("/health", &openapi3.PathItem{Get: checkHealth}),
			openapi3.WithPath("/update-backend-url", &openapi3.PathItem{Post: update}),
		),
	}
}

func mustOpenAPISchema() []byte {
	b, err := json.Marshal(Document())
	if err != nil {
		panic(err)
	}
	return b
}

// OpenAPIHandler serves the OpenAPI document.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(openapiJSON); err != nil {
			logx.Log.Error().Err(err).Msg("write openapi")
		}
	}
}
