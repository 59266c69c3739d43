// File: internal/httpconn/parser.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package httpconn

import (
	"bytes"
	"errors"

	"github.com/momentics/hioload-httpd/api"
	"go.uber.org/zap"
)

type parseState uint8

const (
	stateRequestLine parseState = iota
	stateHeader
	stateContent
)

type lineState uint8

const (
	lineOK lineState = iota
	lineBad
	lineOpen
)

// span is an offset range into the read buffer. Spans are only valid until
// the next reset of the connection.
type span struct {
	off, n int
}

func (s span) empty() bool { return s.n == 0 }

var (
	methodGet    = []byte("GET")
	versionHTTP1 = []byte("HTTP/1.1")
	schemeHTTP   = []byte("http://")

	hdrConnection    = []byte("Connection:")
	hdrContentLength = []byte("Content-Length:")
	hdrHost          = []byte("Host:")
	valKeepAlive     = []byte("keep-alive")
)

// bytesOf resolves s against the read buffer.
func (c *Conn) bytesOf(s span) []byte {
	if s.off < 0 || s.n < 0 || s.off+s.n > c.readLen {
		return nil
	}
	return c.readBuf[s.off : s.off+s.n]
}

// processRead advances the parser over the bytes received so far.
func (c *Conn) processRead() Outcome {
	for {
		if c.state == stateContent {
			if c.readLen-c.checkedIdx < c.contentLength {
				return Incomplete
			}
			c.body = span{c.checkedIdx, c.contentLength}
			c.checkedIdx += c.contentLength
			c.startLine = c.checkedIdx
			return c.doRequest()
		}

		switch c.scanLine() {
		case lineOpen:
			return Incomplete
		case lineBad:
			return BadRequest
		}
		line := span{c.startLine, c.lineEnd - c.startLine}
		c.startLine = c.checkedIdx

		switch c.state {
		case stateRequestLine:
			if !c.parseRequestLine(line) {
				return BadRequest
			}
		case stateHeader:
			done, ok := c.parseHeader(line)
			if !ok {
				return BadRequest
			}
			if done {
				return c.doRequest()
			}
		default:
			return InternalError
		}
	}
}

// scanLine looks for the end of the current line starting at checkedIdx.
// Terminator bytes are overwritten with zero.
func (c *Conn) scanLine() lineState {
	for ; c.checkedIdx < c.readLen; c.checkedIdx++ {
		switch c.readBuf[c.checkedIdx] {
		case '\r':
			if c.checkedIdx+1 == c.readLen {
				return lineOpen
			}
			if c.readBuf[c.checkedIdx+1] != '\n' {
				return lineBad
			}
			c.lineEnd = c.checkedIdx
			c.readBuf[c.checkedIdx] = 0
			c.readBuf[c.checkedIdx+1] = 0
			c.checkedIdx += 2
			return lineOK
		case '\n':
			if c.checkedIdx > c.startLine && c.readBuf[c.checkedIdx-1] == '\r' {
				c.lineEnd = c.checkedIdx - 1
				c.readBuf[c.checkedIdx-1] = 0
				c.readBuf[c.checkedIdx] = 0
				c.checkedIdx++
				return lineOK
			}
			return lineBad
		}
	}
	return lineOpen
}

func (c *Conn) parseRequestLine(line span) bool {
	text := c.bytesOf(line)
	i := bytes.IndexAny(text, " \t")
	if i < 0 || !bytes.EqualFold(text[:i], methodGet) {
		return false
	}
	c.method = span{line.off, i}

	rest := text[i+1:]
	j := bytes.IndexAny(rest, " \t")
	if j < 0 {
		return false
	}
	target := rest[:j]
	if !bytes.EqualFold(rest[j+1:], versionHTTP1) {
		return false
	}

	off := line.off + i + 1
	if len(target) >= len(schemeHTTP) && bytes.EqualFold(target[:len(schemeHTTP)], schemeHTTP) {
		k := bytes.IndexByte(target[len(schemeHTTP):], '/')
		if k < 0 {
			return false
		}
		skip := len(schemeHTTP) + k
		target = target[skip:]
		off += skip
	}
	if len(target) == 0 || target[0] != '/' {
		return false
	}
	c.url = span{off, len(target)}
	c.state = stateHeader
	return true
}

// parseHeader consumes one header line. done reports the end of the header
// block with no body to wait for.
func (c *Conn) parseHeader(line span) (done, ok bool) {
	text := c.bytesOf(line)
	if len(text) == 0 {
		if c.contentLength == 0 {
			return true, true
		}
		if c.checkedIdx+c.contentLength > len(c.readBuf) {
			return false, false
		}
		c.state = stateContent
		return false, true
	}

	switch {
	case hasPrefixFold(text, hdrConnection):
		v := trimOWS(text[len(hdrConnection):])
		if bytes.EqualFold(v, valKeepAlive) {
			c.keepAlive = true
		}
	case hasPrefixFold(text, hdrContentLength):
		n, ok := parseDecimal(trimOWS(text[len(hdrContentLength):]))
		if !ok || n > c.maxContentLength() {
			return false, false
		}
		c.contentLength = n
	case hasPrefixFold(text, hdrHost):
		v := trimOWS(text[len(hdrHost):])
		start := line.off + len(text) - len(bytes.TrimLeft(text[len(hdrHost):], " \t"))
		c.host = span{start, len(v)}
	}
	return false, true
}

// doRequest resolves the parsed target against the document root.
func (c *Conn) doRequest() Outcome {
	c.resolved = true
	target := c.bytesOf(c.url)
	if k := bytes.IndexAny(target, "?#"); k >= 0 {
		target = target[:k]
	}
	if hasDotDot(target) {
		return BadRequest
	}
	if len(c.env.DocRoot)+len(target) > cap(c.path) {
		return BadRequest
	}
	c.path = append(c.path[:0], c.env.DocRoot...)
	c.path = append(c.path, target...)
	path := string(c.path)

	st, err := c.env.Files.Stat(path)
	if err != nil {
		if !c.env.NotFoundResponses {
			return Incomplete
		}
		if errors.Is(err, api.ErrNotExist) {
			return NotFound
		}
		c.env.logger().Warn("stat failed", zap.String("path", path), zap.Error(err))
		return InternalError
	}
	if !st.OtherReadable {
		return Forbidden
	}
	if st.IsDir {
		return BadRequest
	}
	m, err := c.env.Files.Map(path, st.Size)
	if err != nil {
		c.env.logger().Warn("map failed", zap.String("path", path), zap.Error(err))
		return InternalError
	}
	c.stat = st
	c.file = m
	return Ok
}

func (c *Conn) maxContentLength() int {
	return orDefault(c.env.MaxContentLength, len(c.readBuf))
}

func hasPrefixFold(s, prefix []byte) bool {
	return len(s) >= len(prefix) && bytes.EqualFold(s[:len(prefix)], prefix)
}

func trimOWS(b []byte) []byte {
	return bytes.Trim(b, " \t")
}

// parseDecimal parses a non-negative decimal without allocating.
func parseDecimal(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 18 {
		return 0, false
	}
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

func hasDotDot(p []byte) bool {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '/')
		seg := p
		if i >= 0 {
			seg, p = p[:i], p[i+1:]
		} else {
			p = nil
		}
		if len(seg) == 2 && seg[0] == '.' && seg[1] == '.' {
			return true
		}
	}
	return false
}
