package httpserver

import "time"

// ShutdownTimeout bounds how long the ops server and in-flight update
// handlers get to finish after a stop signal.
var ShutdownTimeout = 30 * time.Second
