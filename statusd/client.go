// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package statusd

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-lpc/comedi/runlog"
	"github.com/imroc/req"
)

// Client queries a remote status server.
type Client struct {
	prefix string
}

// NewClient returns a client of the status server at addr
// (host:port or a http:// URL).
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{prefix: strings.TrimRight(addr, "/") + "/api"}
}

func (c *Client) url(path string) string {
	return c.prefix + "/" + path
}

// Status returns the current snapshot of the remote acquisition.
func (c *Client) Status() (Snapshot, error) {
	var snap Snapshot
	err := c.get("status", &snap)
	return snap, err
}

// BufInfo returns the ring buffer state of the remote acquisition.
func (c *Client) BufInfo() (Buffer, error) {
	var buf Buffer
	err := c.get("bufinfo", &buf)
	return buf, err
}

// Runs returns the n most recent runs of the remote run log.
func (c *Client) Runs(n int) ([]runlog.Record, error) {
	var recs []runlog.Record
	err := c.get("runs", &recs, req.Param{"n": n})
	return recs, err
}

// Cancel requests the cancellation of the remote acquisition.
func (c *Client) Cancel() error {
	r, err := req.Post(c.url("cancel"))
	if err != nil {
		return fmt.Errorf("statusd: could not send cancel request: %w", err)
	}
	if code := r.Response().StatusCode; code != http.StatusAccepted {
		return fmt.Errorf("statusd: cancel request failed: %s", r.Response().Status)
	}
	return nil
}

func (c *Client) get(path string, v interface{}, args ...interface{}) error {
	r, err := req.Get(c.url(path), args...)
	if err != nil {
		return fmt.Errorf("statusd: could not send %s request: %w", path, err)
	}
	if code := r.Response().StatusCode; code != http.StatusOK {
		return fmt.Errorf("statusd: %s request failed: %s", path, r.Response().Status)
	}
	err = r.ToJSON(v)
	if err != nil {
		return fmt.Errorf("statusd: could not decode %s reply: %w", path, err)
	}
	return nil
}
