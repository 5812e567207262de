// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
)

func TestGetJSON(t *testing.T) {
	RegisterTestingT(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		user, pass, _ := req.BasicAuth()
		switch {
		case user != "admin" || pass != "secret":
			w.WriteHeader(http.StatusUnauthorized)
		case req.URL.Path == "/fwdsync/last-run":
			w.Write([]byte(`{"topologyVersion": 3}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"Error": "no such thing"}`))
		}
	}))
	defer srv.Close()

	client, err := CreateHTTPClient(strings.TrimPrefix(srv.URL, "http://"), "")
	Expect(err).To(BeNil())
	client.Config.BasicAuth = "admin:secret"

	var report struct {
		TopologyVersion uint64 `json:"topologyVersion"`
	}
	Expect(client.GetJSON("/fwdsync/last-run", &report)).To(Succeed())
	Expect(report.TopologyVersion).To(BeEquivalentTo(3))

	err = client.GetJSON("/unknown", &report)
	Expect(err).To(HaveOccurred())
	Expect(err.Error()).To(ContainSubstring("no such thing"))

	client.Config.BasicAuth = "admin"
	Expect(client.GetJSON("/fwdsync/last-run", &report)).ToNot(Succeed())
}
