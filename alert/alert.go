// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends mail alerts when an acquisition fails.
package alert // import "github.com/go-lpc/comedi/alert"

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	mail "gopkg.in/gomail.v2"
)

// ErrNoCredentials is returned when the mail server or the credentials are
// not configured.
var ErrNoCredentials = errors.New("alert: missing mail credentials")

// Config describes the mail server and the recipients of alerts.
type Config struct {
	Server   string
	Port     int
	Username string
	Password string
	Targets  []string
}

// ConfigFromEnv reads the mail configuration from the MAIL_SERVER,
// MAIL_PORT, MAIL_USERNAME, MAIL_PASSWORD and MAIL_TGTS (comma separated)
// environment variables.
func ConfigFromEnv() Config {
	cfg := Config{
		Server:   os.Getenv("MAIL_SERVER"),
		Port:     atoi(os.Getenv("MAIL_PORT")),
		Username: os.Getenv("MAIL_USERNAME"),
		Password: os.Getenv("MAIL_PASSWORD"),
	}
	for _, v := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			cfg.Targets = append(cfg.Targets, v)
		}
	}
	return cfg
}

func (cfg Config) valid() bool {
	return cfg.Server != "" && cfg.Port != 0 &&
		cfg.Username != "" && cfg.Password != "" &&
		len(cfg.Targets) != 0
}

// Mailer sends at most a fixed number of alerts per key.
// It is safe for concurrent use.
type Mailer struct {
	cfg     Config
	msg     *log.Logger
	subject string
	max     int

	mu     sync.Mutex
	alerts map[string]int // number of alerts per key

	send func(m *mail.Message) error
}

// New returns a mailer sending alerts with the provided configuration.
func New(cfg Config, opts ...Option) *Mailer {
	oc := newConfig()
	for _, opt := range opts {
		opt(&oc)
	}

	m := &Mailer{
		cfg:     cfg,
		msg:     oc.msg,
		subject: oc.subject,
		max:     oc.max,
		alerts:  make(map[string]int),
	}
	m.send = m.dialAndSend
	return m
}

// Alert sends an alert about key.
// Alerts about a key are muted once the maximum number of alerts for that
// key has been reached: Alert then returns false and a nil error.
func (m *Mailer) Alert(key, body string) (bool, error) {
	m.mu.Lock()
	m.alerts[key]++
	n := m.alerts[key]
	m.mu.Unlock()

	if n > m.max {
		return false, nil
	}
	if !m.cfg.valid() {
		return false, ErrNoCredentials
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.Username)
	msg.SetHeader("Bcc", m.cfg.Targets...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] alert: %s", m.subject, key))
	msg.SetBody("text/plain", body)

	err := m.send(msg)
	if err != nil {
		return false, fmt.Errorf("alert: could not send mail alert: %w", err)
	}
	m.msg.Printf("sent alert %q (%d/%d)", key, n, m.max)
	return true, nil
}

// Reset unmutes the alerts about key.
func (m *Mailer) Reset(key string) {
	m.mu.Lock()
	delete(m.alerts, key)
	m.mu.Unlock()
}

func (m *Mailer) dialAndSend(msg *mail.Message) error {
	dial := mail.NewDialer(m.cfg.Server, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	dial.TLSConfig = &tls.Config{
		ServerName: m.cfg.Server,
	}
	return dial.DialAndSend(msg)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
