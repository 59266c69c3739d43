// File: internal/httpconn/response.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpconn

import "strconv"

type cannedResponse struct {
	code  int
	title string
	body  string
}

var canned = map[Outcome]cannedResponse{
	BadRequest:    {400, "Bad Request", "Your request has bad syntax or is inherently impossible to satisfy.\n"},
	Forbidden:     {403, "Forbidden", "You do not have permission to get file from this server.\n"},
	NotFound:      {404, "Not Found", "The requested file was not found on this server.\n"},
	InternalError: {500, "Internal Error", "There was an unusual problem serving the requested file.\n"},
}

// processWrite assembles the response for o into the write buffer and
// positions the iovecs. It returns false when nothing can be sent.
func (c *Conn) processWrite(o Outcome) bool {
	switch o {
	case Ok:
		body := c.file.Bytes()
		if !c.addStatusLine(200, "OK") || !c.addHeaders(len(body)) {
			return false
		}
		c.iov[0] = c.writeBuf[:c.writeLen]
		c.iov[1] = body
		c.iovCount = 2
		c.bytesToSend = c.writeLen + len(body)
		return true
	case BadRequest, Forbidden, NotFound, InternalError:
		r := canned[o]
		if o == BadRequest || o == InternalError {
			c.keepAlive = false
		}
		if !c.addStatusLine(r.code, r.title) || !c.addHeaders(len(r.body)) || !c.appendString(r.body) {
			return false
		}
		c.iov[0] = c.writeBuf[:c.writeLen]
		c.iov[1] = nil
		c.iovCount = 1
		c.bytesToSend = c.writeLen
		return true
	default:
		return false
	}
}

func (c *Conn) appendString(s string) bool {
	if c.writeLen+len(s) > len(c.writeBuf) {
		return false
	}
	c.writeLen += copy(c.writeBuf[c.writeLen:], s)
	return true
}

func (c *Conn) appendInt(n int) bool {
	var tmp [20]byte
	b := strconv.AppendInt(tmp[:0], int64(n), 10)
	if c.writeLen+len(b) > len(c.writeBuf) {
		return false
	}
	c.writeLen += copy(c.writeBuf[c.writeLen:], b)
	return true
}

func (c *Conn) addStatusLine(code int, title string) bool {
	return c.appendString("HTTP/1.1 ") && c.appendInt(code) &&
		c.appendString(" ") && c.appendString(title) && c.appendString("\r\n")
}

func (c *Conn) addHeaders(contentLen int) bool {
	return c.appendString("Content-Length: ") && c.appendInt(contentLen) && c.appendString("\r\n") &&
		c.appendString("Content-Type: text/html\r\n") &&
		c.addLinger() &&
		c.appendString("\r\n")
}

func (c *Conn) addLinger() bool {
	if c.keepAlive {
		return c.appendString("Connection: keep-alive\r\n")
	}
	return c.appendString("Connection: close\r\n")
}

// advance consumes n written bytes from the front of the iovecs.
func (c *Conn) advance(n int) {
	for c.iovCount > 0 {
		if n < len(c.iov[0]) {
			c.iov[0] = c.iov[0][n:]
			return
		}
		n -= len(c.iov[0])
		c.iov[0], c.iov[1] = c.iov[1], nil
		c.iovCount--
	}
}
