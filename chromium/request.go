/*
 *
 * xk6-browser - a browser automation extension for k6
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package chromium

import (
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/AppInitio/playwright/common"
)

// Request is the CDP-backed view of one network request, carrying just
// what the frame coordination core needs: identity, the document it
// belongs to, and the eventual response.
type Request struct {
	id         network.RequestID
	documentID string
	url        string
	redirect   bool

	mu       sync.Mutex
	response *Response
}

// Response is the terminal response of a request.
type Response struct {
	URL    string
	Status int64
}

var _ common.RequestData = (*Request)(nil)

// NewRequest builds a request from a requestWillBeSent event. documentID is
// the loader id when this request carries a document load, empty otherwise;
// redirect marks a redirect hop re-using the same request id.
func NewRequest(ev *network.EventRequestWillBeSent, documentID string, redirect bool) *Request {
	return &Request{
		id:         ev.RequestID,
		documentID: documentID,
		url:        ev.Request.URL,
		redirect:   redirect,
	}
}

// ID implements common.RequestData.
func (r *Request) ID() string { return string(r.id) }

// DocumentID implements common.RequestData.
func (r *Request) DocumentID() string { return r.documentID }

// IsRedirect implements common.RequestData.
func (r *Request) IsRedirect() bool { return r.redirect }

// IsFavicon reports whether the request fetches a favicon; these are
// excluded from network-idle bookkeeping.
func (r *Request) IsFavicon() bool {
	return strings.HasSuffix(r.url, "/favicon.ico")
}

// URL returns the request URL.
func (r *Request) URL() string { return r.url }

// Response implements common.RequestData.
func (r *Request) Response() (common.ResponseData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.response == nil {
		return nil, false
	}
	return r.response, true
}

func (r *Request) setResponse(resp *Response) {
	r.mu.Lock()
	r.response = resp
	r.mu.Unlock()
}
