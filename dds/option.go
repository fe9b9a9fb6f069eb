// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dds

type config struct {
	freq   float64 // waveform frequency, in Hz
	update float64 // update frequency, in Hz
	amp    float64
	offset float64
	max    uint32

	size   int
	nchans int
	ssize  int
	scans  int64
}

func newConfig() config {
	return config{
		freq:   10,
		update: 1000,
		amp:    4000,
		offset: 2048,
		size:   MaxLen,
		nchans: 1,
		ssize:  2,
	}
}

// Option configures a waveform generator.
type Option func(*config)

// WithFrequency sets the waveform and update frequencies, in Hz.
func WithFrequency(wave, update float64) Option {
	return func(cfg *config) {
		cfg.freq = wave
		cfg.update = update
	}
}

// WithAmplitude sets the peak-to-peak amplitude and the offset of the
// waveform, in DAC units.
func WithAmplitude(amp, offset float64) Option {
	return func(cfg *config) {
		cfg.amp = amp
		cfg.offset = offset
	}
}

// WithMaxData clips the generated values to [0, max].
func WithMaxData(max uint32) Option {
	return func(cfg *config) {
		cfg.max = max
	}
}

// WithLen sets the number of entries of the waveform table.
// It is rounded to the nearest power of two.
func WithLen(n int) Option {
	return func(cfg *config) {
		cfg.size = n
	}
}

// WithChannels sets the number of interleaved channels.
func WithChannels(n int) Option {
	return func(cfg *config) {
		cfg.nchans = n
	}
}

// WithSampleSize sets the size in bytes of a sample (2 or 4).
func WithSampleSize(n int) Option {
	return func(cfg *config) {
		cfg.ssize = n
	}
}

// WithScans bounds the number of generated scans.
// The generator is unbounded by default.
func WithScans(n int64) Option {
	return func(cfg *config) {
		cfg.scans = n
	}
}
