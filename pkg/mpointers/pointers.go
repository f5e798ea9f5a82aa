// Package mpointers provides small helpers for taking the address of a
// value literal, used throughout the substrate's config builders and
// optional-field payloads.
package mpointers

import "time"

// String returns a pointer to s.
func String(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }

// Int64 returns a pointer to i.
func Int64(i int64) *int64 { return &i }

// Int returns a pointer to i.
func Int(i int) *int { return &i }
