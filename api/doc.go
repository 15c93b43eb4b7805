// Package api documents the CardFlow HTTP API. Handlers live in api/handlers.
//
// # Envelope
//
// Every JSON response uses one envelope:
//
//	{
//	  "success":   true,
//	  "data":      {...},
//	  "servedBy":  {"configId": 1, "configName": "primary", "model": "gpt-4o", "provider": "openai-compatible"},
//	  "errorKind": "RECOVERY_PARSE",
//	  "message":   "...",
//	  "detail":    "...",
//	  "timestamp": "2026-01-01T00:00:00Z",
//	  "requestId": "..."
//	}
//
// servedBy is present only on success. errorKind maps to the HTTP status:
// CONFIGURATION_UNAVAILABLE 503, PROVIDER_* and ASYNC_TASK_FAILED 502,
// ASYNC_TASK_TIMEOUT 504, RECOVERY_PARSE 422, INVALID_REQUEST and
// UNSUPPORTED_* 400, NOT_FOUND 404, CANCELLED 408, RATE_LIMITED 429.
//
// # Generation
//
//	POST /api/v1/outline         {configId?, sourceText?, sourceUrl?, title?, pageCount?, style?, language?}
//	POST /api/v1/card-prompts    {configId?, cards[], styles[]?}
//	POST /api/v1/quick-prompts   {configId?, topic, count?, styles[]?}
//	POST /api/v1/images          {configId?, prompt, negativePrompt?, size?}
//	POST /api/v1/chat            {configId?, capability?, messages[], maxTokens?, temperature?}
//	POST /api/v1/translate       {configId?, text, targetLanguage?}
//
// chat returns the completion text itself as data:
//
//	{"success": true, "data": "hello", "servedBy": {"model": "gpt-4o", ...}}
//
// card-prompts streams one JSON object per line when the request carries
// Accept: application/x-ndjson; the serving profile is sent in the
// X-Served-By-Config header.
//
// # Profiles
//
//	GET    /api/v1/profiles
//	POST   /api/v1/profiles
//	PUT    /api/v1/profiles/{id}
//	DELETE /api/v1/profiles/{id}
//	POST   /api/v1/profiles/{id}/test
//
// API keys are masked on read. Sending a masked or empty key on update keeps
// the stored one.
//
// # Probes
//
// /health and /healthz report liveness, /ready and /readyz run the database
// check, /version returns build info. Prometheus metrics are served on the
// separate metrics port at /metrics.
package api
