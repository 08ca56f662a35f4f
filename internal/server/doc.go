/*
Package server manages the HTTP server lifecycle: non-blocking start,
graceful shutdown, and signal handling.

# Overview

Manager wraps net/http.Server and owns listening, serving, shutdown, and
error propagation. It handles SIGINT/SIGTERM for graceful stops. The
bridge terminates TLS out of band (it runs next to the browser it
drives), so the manager serves plain HTTP only.

# Core types

  - Manager: holds the http.Server, net.Listener, and an asynchronous
    error channel, with Start/Shutdown/WaitForShutdown lifecycle methods.
  - Config: listen address, read/write/idle timeouts, header size cap,
    and the graceful shutdown timeout.
*/
package server
