package openapi

import "github.com/getkin/kin-openapi/openapi3"

func prop(typ, format, desc string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{typ},
			Format:      format,
			Description: desc,
		},
	}
}

func object(required []string, props openapi3.Schemas) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Required:   required,
			Properties: props,
		},
	}
}

func listOf(item string) *openapi3.SchemaRef {
	return object([]string{"resource"}, openapi3.Schemas{
		"resource": &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: ref(item),
			},
		},
		"meta": object(nil, openapi3.Schemas{
			"count": prop("integer", "int32", "Number of items returned."),
		}),
	})
}

func coughTypeProp() *openapi3.SchemaRef {
	s := prop("string", "", "Classification reported by the on-device model.")
	s.Value.Enum = []interface{}{"dry", "wet", "unknown"}
	return s
}

func confidenceProp() *openapi3.SchemaRef {
	s := prop("number", "double", "Model confidence in [0, 1].")
	min, max := 0.0, 1.0
	s.Value.Min = &min
	s.Value.Max = &max
	return s
}

func eventTimeProp() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Description: "Detection time as Unix milliseconds or an RFC 3339 string; defaults to receipt time.",
		OneOf: openapi3.SchemaRefs{
			prop("integer", "int64", ""),
			prop("string", "date-time", ""),
		},
	}}
}

func schemas() openapi3.Schemas {
	return openapi3.Schemas{
		"ErrorResponse": object([]string{"error"}, openapi3.Schemas{
			"error": object([]string{"code", "message"}, openapi3.Schemas{
				"code":    prop("integer", "int32", ""),
				"message": prop("string", "", ""),
				"context": prop("object", "", ""),
			}),
		}),
		"Device": object([]string{"id", "deviceId", "isActive"}, openapi3.Schemas{
			"id":             prop("string", "uuid", ""),
			"deviceId":       prop("string", "", "External identifier."),
			"deviceName":     prop("string", "", ""),
			"location":       prop("string", "", ""),
			"isActive":       prop("boolean", "", ""),
			"apiKeyIssuedAt": prop("string", "date-time", "Present while a key is issued."),
			"createdAt":      prop("string", "date-time", ""),
			"updatedAt":      prop("string", "date-time", ""),
		}),
		"DeviceList": listOf("Device"),
		"RegisterDeviceRequest": object([]string{"deviceId"}, openapi3.Schemas{
			"deviceId":   prop("string", "", ""),
			"deviceName": prop("string", "", ""),
			"location":   prop("string", "", ""),
		}),
		"UpdateDeviceRequest": object(nil, openapi3.Schemas{
			"deviceName": prop("string", "", "Omit to keep the current value."),
			"location":   prop("string", "", "Omit to keep the current value."),
		}),
		"APIKeyIssue": object([]string{"deviceId", "apiKey", "message"}, openapi3.Schemas{
			"deviceId": prop("string", "", ""),
			"apiKey":   prop("string", "", "Shown once. Only a digest is stored."),
			"message":  prop("string", "", ""),
		}),
		"LoginRequest": object([]string{"deviceId", "apiKey"}, openapi3.Schemas{
			"deviceId": prop("string", "", ""),
			"apiKey":   prop("string", "", ""),
		}),
		"Session": object([]string{"token", "deviceId", "tokenType", "expiresIn"}, openapi3.Schemas{
			"token":     prop("string", "", "Bearer token for authenticated routes."),
			"deviceId":  prop("string", "", ""),
			"tokenType": prop("string", "", "Always Bearer."),
			"expiresIn": prop("integer", "int64", "Lifetime in seconds."),
		}),
		"MessageResponse": object([]string{"message", "deviceId"}, openapi3.Schemas{
			"message":  prop("string", "", ""),
			"deviceId": prop("string", "", ""),
		}),
		"Health": object([]string{"status", "service"}, openapi3.Schemas{
			"status":  prop("string", "", ""),
			"service": prop("string", "", ""),
		}),
		"CoughEventRequest": object([]string{"confidence"}, openapi3.Schemas{
			"deviceId":    prop("string", "", "Must match the authenticated device when present."),
			"coughType":   coughTypeProp(),
			"confidence":  confidenceProp(),
			"rawScore":    prop("number", "double", ""),
			"timestamp":   eventTimeProp(),
			"audioVolume": prop("number", "double", ""),
		}),
		"CoughEvent": object([]string{"id", "deviceId", "coughType", "confidence", "timestamp"}, openapi3.Schemas{
			"id":          prop("string", "uuid", ""),
			"deviceId":    prop("string", "", ""),
			"coughType":   coughTypeProp(),
			"confidence":  confidenceProp(),
			"rawScore":    prop("number", "double", ""),
			"timestamp":   prop("string", "date-time", ""),
			"audioVolume": prop("number", "double", ""),
			"createdAt":   prop("string", "date-time", ""),
		}),
		"CoughEventList": listOf("CoughEvent"),
	}
}
