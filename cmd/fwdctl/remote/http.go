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
	"encoding/json"
	"io/ioutil"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ligato/cn-infra/config"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// HTTPClient talks to the REST API of a fwdsync agent.
type HTTPClient struct {
	// Config for this client
	Config *HTTPClientConfig

	http   *http.Client
	server string
}

// HTTPClientConfig is configuration for http client
type HTTPClientConfig struct {
	// Basic authorization for client
	BasicAuth string `json:"basic-auth"`
	// If https or http should be used
	UseHTTPS bool `json:"use-https"`
	// Timeout of a single request
	Timeout time.Duration `json:"timeout"`
}

// CreateHTTPClient uses environment variable HTTP_CLIENT_CONFIG or the given
// config file to set up the client for the agent at server (host:port).
func CreateHTTPClient(server, configFile string) (*HTTPClient, error) {
	if configFile == "" {
		configFile = os.Getenv("HTTP_CLIENT_CONFIG")
	}

	cfg := &HTTPClientConfig{Timeout: 10 * time.Second}
	if configFile != "" {
		if err := config.ParseConfigFromYamlFile(configFile, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", configFile)
		}
	}

	return &HTTPClient{
		Config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		server: server,
	}, nil
}

func (client *HTTPClient) createURL(path string) string {
	url := "http://"
	if client.Config.UseHTTPS {
		url = "https://"
	}
	return url + client.server + path
}

func (client *HTTPClient) do(method, path string) ([]byte, error) {
	url := client.createURL(path)
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	if len(client.Config.BasicAuth) > 0 {
		fields := strings.Split(client.Config.BasicAuth, ":")
		if len(fields) != 2 {
			return nil, errors.Errorf("invalid format of basic auth entry '%v' expected 'user:pass'",
				client.Config.BasicAuth)
		}
		req.SetBasicAuth(fields[0], fields[1])
	}

	log.Debugf("%s %s", method, url)
	res, err := client.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, url)
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s: failed to read response", method, url)
	}
	log.WithFields(log.Fields{"status": res.StatusCode, "bytes": len(body)}).Debug("response received")
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var errResp struct{ Error string }
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, errors.Errorf("%s %s: %s (%s)", method, url, errResp.Error, res.Status)
		}
		return nil, errors.Errorf("%s %s: %s", method, url, res.Status)
	}
	return body, nil
}

// GetJSON sends GET request and decodes the JSON response into out.
func (client *HTTPClient) GetJSON(path string, out interface{}) error {
	body, err := client.do(http.MethodGet, path)
	if err != nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(body, out), "failed to decode response")
}

// Post sends POST request without body and returns the response body.
func (client *HTTPClient) Post(path string) ([]byte, error) {
	return client.do(http.MethodPost, path)
}
