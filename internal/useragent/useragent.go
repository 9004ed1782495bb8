// Copyright 2019 The Go Cloud Development Kit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package useragent sets the User-Agent for firerest requests.
package useragent // import "firerest.dev/internal/useragent"

import (
	"net/http"

	"google.golang.org/api/option"
)

// UserAgent is appended to the User-Agent of every firerest request.
const UserAgent = "firerest/0.1"

// userAgentTransport wraps an http.RoundTripper, adding a User-Agent header
// to each request.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating it.
	newReq := req.Clone(req.Context())
	ua := UserAgent
	if prev := req.UserAgent(); prev != "" {
		ua = prev + " " + UserAgent
	}
	newReq.Header.Set("User-Agent", ua)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(newReq)
}

// Transport wraps base so that UserAgent is appended to the User-Agent header
// of every request. A nil base means http.DefaultTransport.
func Transport(base http.RoundTripper) http.RoundTripper {
	return &userAgentTransport{base: base}
}

// HTTPClient returns a copy of client whose requests carry UserAgent.
func HTTPClient(client *http.Client) *http.Client {
	c := *client
	c.Transport = Transport(c.Transport)
	return &c
}

// ClientOption returns an option that sets the User-Agent of a generated
// Google API client to UserAgent, tagged with api.
func ClientOption(api string) option.ClientOption {
	return option.WithUserAgent(UserAgent + " " + api)
}
