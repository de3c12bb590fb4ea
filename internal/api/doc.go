// Package api exposes the chatbot over a JSON HTTP interface.
//
// Routes:
//
//	POST   /api/chat                    ask a question within a session
//	POST   /api/session                 create a new session
//	GET    /api/sessions                list sessions, most recent first
//	GET    /api/sessions/{id}/history   full conversation history
//	DELETE /api/sessions/{id}           delete a session
//	POST   /api/ingest                  run one ingestion batch
//	GET    /health                      liveness probe
//
// The middleware stack (outermost first) is recovery, request id,
// logging and per-IP rate limiting. Health probes bypass the stack.
package api
