// Copyright 2025 Peanut Labs
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		instanceID     string
		expectedInstID string
	}{
		{name: "with instance ID set", instanceID: "instance-123", expectedInstID: "instance-123"},
		{name: "without instance ID", instanceID: "", expectedInstID: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				os.Unsetenv("INSTANCE_ID")
			}

			l := New("auth")
			if l.Component != "auth" {
				t.Fatalf("Component = %q, want %q", l.Component, "auth")
			}
			if l.InstanceID != tt.expectedInstID {
				t.Fatalf("InstanceID = %q, want %q", l.InstanceID, tt.expectedInstID)
			}
			if l.Container == "" {
				t.Fatal("Container must not be empty")
			}
		})
	}
}

func captureLog(f func()) string {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	f()
	return buf.String()
}

func TestLogEmitsValidJSON(t *testing.T) {
	l := New("ratelimit")
	out := captureLog(func() {
		l.Info("req-1", "checked window", map[string]interface{}{"key": "login:1.2.3.4"})
	})

	idx := strings.Index(out, "{")
	if idx < 0 {
		t.Fatalf("no JSON payload found in log line: %q", out)
	}

	var e Entry
	if err := json.Unmarshal([]byte(out[idx:]), &e); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%q)", err, out)
	}
	if e.Level != INFO || e.Component != "ratelimit" || e.RequestID != "req-1" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Fields["key"] != "login:1.2.3.4" {
		t.Fatalf("fields not propagated: %+v", e.Fields)
	}
}

func TestLevelHelpers(t *testing.T) {
	l := New("audit")
	cases := []struct {
		level Level
		fn    func(requestID, message string, fields map[string]interface{})
	}{
		{DEBUG, l.Debug},
		{INFO, l.Info},
		{WARN, l.Warn},
		{ERROR, l.Error},
	}
	for _, c := range cases {
		out := captureLog(func() { c.fn("req", "msg", nil) })
		var e Entry
		idx := strings.Index(out, "{")
		if err := json.Unmarshal([]byte(out[idx:]), &e); err != nil {
			t.Fatalf("invalid JSON for %s: %v", c.level, err)
		}
		if e.Level != c.level {
			t.Fatalf("level = %s, want %s", e.Level, c.level)
		}
	}
}

func TestInfoWithDuration(t *testing.T) {
	l := New("dispatch")
	out := captureLog(func() {
		l.InfoWithDuration("req-2", "dispatch complete", 12.5, nil)
	})
	var e Entry
	idx := strings.Index(out, "{")
	if err := json.Unmarshal([]byte(out[idx:]), &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Fields["duration_ms"].(float64) != 12.5 {
		t.Fatalf("duration_ms = %v, want 12.5", e.Fields["duration_ms"])
	}
}

func TestErrorWithCode(t *testing.T) {
	l := New("vault")
	out := captureLog(func() {
		l.ErrorWithCode("req-3", "completion proxy failed", 502, errUpstream, nil)
	})
	var e Entry
	idx := strings.Index(out, "{")
	if err := json.Unmarshal([]byte(out[idx:]), &e); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if e.Fields["status_code"].(float64) != 502 {
		t.Fatalf("status_code = %v, want 502", e.Fields["status_code"])
	}
	if e.Fields["error"] != errUpstream.Error() {
		t.Fatalf("error field = %v, want %v", e.Fields["error"], errUpstream.Error())
	}
}

var errUpstream = &testError{"upstream unreachable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
