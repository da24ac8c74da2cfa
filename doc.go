// Package main provides the HTTP server of LoRAIro.
//
// LoRAIro manages an image dataset for training: images are imported into a
// project directory, annotated with tags, captions, scores and ratings by
// tagging models or by hand, and searched by any combination of those.
//
// # Application Lifecycle
//
//  1. Configuration Loading: lorairo.yaml and LORAIRO_* environment variables
//  2. Project Opening: creates the dataset layout and the project database
//  3. Tag Dictionary: opens the shared tag database
//  4. Component Wiring: search processor, thumbnail renderer, page
//     navigator, annotation service and metrics collector
//  5. HTTP Server Setup: routes, access log and request metrics
//  6. Graceful Shutdown: SIGINT and SIGTERM stop the server, the collector
//     and close both databases
//
// # HTTP API
//
//   - GET  /api/images            search by query parameters
//   - POST /api/images/search     search by JSON conditions
//   - GET  /api/images/{id}       image with all annotations
//   - GET  /api/images/{id}/thumbnail
//   - PUT  /api/images/{id}/tags, /score, /rating
//   - POST /api/images/{id}/captions
//   - POST /api/annotations       write back annotation results
//   - POST /api/pages             start a paged search
//   - GET  /api/pages/{n}, /api/pages/state
//   - POST /api/pages/{first|previous|next|last}
//   - POST /api/tags/resolve
//   - GET  /health, /livez, /readyz, /version, /metrics
//
// # Environment Variables
//
//   - LORAIRO_PROJECT_DIR: project directory (default: lorairo_data/main_dataset)
//   - LORAIRO_TAG_DB_PATH: tag dictionary database
//   - LORAIRO_PORT: HTTP port (default: 8080)
//   - LORAIRO_METRICS_ENABLED: expose /metrics (default: true)
//   - LORAIRO_PAGE_SIZE: thumbnails per page (default: 100)
//   - LORAIRO_PAGE_CACHE_MAX_PAGES: cached result pages (default: 5)
//   - LORAIRO_LOG_LEVEL: debug, info, warn or error
//
// The command line tool in cmd/lorairo works on the same project without
// the server.
package main
