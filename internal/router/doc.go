// Package router sends every chat, generate and embedding request to the
// local backend first and falls back to cloud providers when the backend
// cannot answer. Responses keep the backend's JSON shape and are tagged
// with the source that served them.
package router
