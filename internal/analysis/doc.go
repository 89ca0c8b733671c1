// Package analysis implements the analysis invoker. Each submission of a
// stored image reference is bounded by a timeout (60 seconds by default);
// a timeout is retried once automatically and then surfaces as
// *TimeoutError. Backends that cannot run return *ServiceError, which is
// never retried here. A successful empty annotation set is a valid result.
//
// Backends live under internal/services: vision (Google Cloud Vision),
// gemini (Gemini multimodal), and analyzer (generic HTTP).
package analysis
