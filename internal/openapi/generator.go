// Package openapi describes the gateway's HTTP surface as an OpenAPI 3.1
// document.
package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

const refPrefix = "#/components/schemas/"

// route is one documented operation.
type route struct {
	method      string
	path        string
	tag         string
	id          string
	summary     string
	public      bool
	params      openapi3.Parameters
	request     string // component schema name of the JSON body, if any
	status      string
	response    string // component schema name of the success body
	errorStatus []string
}

func routes() []route {
	deviceParam := pathParam("deviceId", "External device identifier, e.g. ESP32_LIVING_ROOM.")

	return []route{
		{http.MethodPost, "/api/auth/generate-key/{deviceId}", "auth", "generateApiKey",
			"Issue a new API key for a device, replacing any previous key",
			true, openapi3.Parameters{deviceParam}, "", "200", "APIKeyIssue", []string{"400", "404", "429"}},
		{http.MethodPost, "/api/auth/login", "auth", "login",
			"Exchange a device API key for a session token",
			true, nil, "LoginRequest", "200", "Session", []string{"400", "401", "429"}},
		{http.MethodDelete, "/api/auth/revoke/{deviceId}", "auth", "revokeApiKey",
			"Revoke a device's API key",
			true, openapi3.Parameters{deviceParam}, "", "200", "MessageResponse", []string{"429"}},
		{http.MethodGet, "/api/auth/health", "health", "authHealth",
			"Authentication liveness", true, nil, "", "200", "Health", nil},

		{http.MethodPost, "/api/device/register", "device", "registerDevice",
			"Register a device; returns the existing record for a known ID",
			false, nil, "RegisterDeviceRequest", "201", "Device", []string{"400", "401", "429"}},
		{http.MethodGet, "/api/device/active", "device", "listActiveDevices",
			"List active devices", false, nil, "", "200", "DeviceList", []string{"401", "429"}},
		{http.MethodGet, "/api/device/all", "device", "listDevices",
			"List all devices", false, nil, "", "200", "DeviceList", []string{"401", "429"}},
		{http.MethodGet, "/api/device/{deviceId}", "device", "getDevice",
			"Get a device", false, openapi3.Parameters{deviceParam}, "", "200", "Device", []string{"401", "404", "429"}},
		{http.MethodPut, "/api/device/{deviceId}", "device", "updateDevice",
			"Update a device's name and location", false, openapi3.Parameters{deviceParam},
			"UpdateDeviceRequest", "200", "Device", []string{"400", "401", "404", "429"}},
		{http.MethodDelete, "/api/device/{deviceId}", "device", "deactivateDevice",
			"Deactivate a device", false, openapi3.Parameters{deviceParam}, "", "200", "MessageResponse", []string{"401", "404", "429"}},

		{http.MethodPost, "/api/cough/event", "cough", "createCoughEvent",
			"Report a cough detection for the authenticated device",
			false, nil, "CoughEventRequest", "201", "CoughEvent", []string{"400", "401", "403", "429"}},
		{http.MethodGet, "/api/cough/device/{deviceId}", "cough", "listCoughEvents",
			"List a device's detections, newest first",
			false, openapi3.Parameters{
				deviceParam,
				queryParam("start", "Inclusive lower bound, Unix milliseconds.", "int64"),
				queryParam("end", "Inclusive upper bound, Unix milliseconds.", "int64"),
			}, "", "200", "CoughEventList", []string{"400", "401", "429"}},
		{http.MethodGet, "/api/cough/health", "health", "coughHealth",
			"Cough detection liveness", true, nil, "", "200", "Health", nil},
	}
}

// Generate builds the document for a gateway reachable at baseURL.
func Generate(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "airea device gateway",
			Description: "Device credential lifecycle and cough event ingestion for headless sensors.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = schemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
				Description:  "Session token from POST /api/auth/login.",
			},
		},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{{"bearerAuth": {}}}
	doc.Paths = openapi3.NewPaths()

	for _, rt := range routes() {
		item := doc.Paths.Value(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, operation(rt))
	}
	return doc
}

func operation(rt route) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{rt.tag},
		Summary:     rt.summary,
		OperationID: rt.id,
		Parameters:  rt.params,
		Responses:   newResponses(rt.status, rt.response, rt.errorStatus),
	}
	if rt.public {
		op.Security = &openapi3.SecurityRequirements{}
	}
	if rt.request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithJSONSchemaRef(ref(rt.request)),
			},
		}
	}
	return op
}

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Unauthorized",
	"403": "Forbidden",
	"404": "Not found",
	"429": "Too many requests",
	"500": "Internal server error",
}

func newResponses(status, schema string, errorStatus []string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	desc := "Success"
	responses.Set(status, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref(schema)),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, code := range append(errorStatus, "500") {
		d := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &d,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(refPrefix+name, nil)
}

func pathParam(name, desc string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          openapi3.ParameterInPath,
			Description: desc,
			Required:    true,
			Schema:      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		},
	}
}

func queryParam(name, desc, format string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          openapi3.ParameterInQuery,
			Description: desc,
			Schema:      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: format}},
		},
	}
}
