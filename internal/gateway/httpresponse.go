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

package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// errorEnvelope is the {error:{code,message,details?}} shape spec.md §6
// requires at the HTTP boundary.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeError maps any error to its envelope and status via Kind; errors
// that aren't GatewayErrors are treated as internal and their detail is
// never leaked to the client.
func writeError(w http.ResponseWriter, err error) {
	ge := AsGatewayError(err)
	w.Header().Set("Content-Type", "application/json")
	if ge.Kind == KindRateLimited {
		w.Header().Set("Retry-After", strconv.Itoa(ge.RetryAfter))
	}
	w.WriteHeader(HTTPStatus(ge.Kind))
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Code:    string(ge.Kind),
		Message: ge.Message,
		Details: ge.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return ValidationError("malformed JSON body")
	}
	return nil
}
