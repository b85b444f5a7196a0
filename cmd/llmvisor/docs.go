package main

// General API documentation for swaggo. Build with -tags=swagger to serve the
// UI at /swagger/.
//
// @title           llmvisor API
// @version         1.0
// @description     Local LLM runtime supervisor: model scheduling, service graph and Ollama-compatible proxy.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
