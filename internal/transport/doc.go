// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening socket for the reactor: a non-blocking, close-on-exec TCP
// socket accepted from with accept4 so every connection descriptor is
// non-blocking from birth. Platform code is separated by build tags.

package transport
