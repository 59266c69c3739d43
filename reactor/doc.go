// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness-notification set used by the server's
// reactor loop: an epoll(7) implementation of api.Poller on Linux and a stub
// elsewhere. Connection sockets are registered edge-triggered and oneshot, so a
// ready socket is reported once and stays silent until it is re-armed.
package reactor
