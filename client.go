package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const cookieName = "APIC-cookie"

// ControllerTarget identifies one APIC. It is read once from the
// credential source and never modified.
type ControllerTarget struct {
	Address  string
	Username string
	Password string
}

type apiClient struct {
	httpClient *http.Client
	timeout    time.Duration
}

type apiReq struct {
	uri   string
	query []string
}

type apiRes = gjson.Result

func newClient(timeout time.Duration, insecure bool) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: insecure,
	}
	return &apiClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		timeout: timeout,
	}
}

// baseURL accepts both bare hosts and full URLs.
func baseURL(address string) string {
	address = strings.TrimRight(strings.TrimSpace(address), "/")
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}
	return address
}

func newURL(base string, req apiReq) string {
	result := fmt.Sprintf("%s%s.json", base, req.uri)
	if len(req.query) > 0 {
		return fmt.Sprintf("%s?%s", result, strings.Join(req.query, "&"))
	}
	return result
}

func queryParam(key, value string) string {
	return key + "=" + url.QueryEscape(value)
}

// do issues one request and returns the imdata array of the response.
func (api *apiClient) do(ctx context.Context, method, base string, req apiReq, token *string, body []byte) (apiRes, error) {
	if api.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.timeout)
		defer cancel()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, newURL(base, req), reader)
	if err != nil {
		return apiRes{}, errors.Wrapf(ErrUnreachable, "%s %s: %v", method, req.uri, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != nil {
		httpReq.Header.Set("Cookie", cookieName+"="+*token)
	}
	log.WithFields(logrus.Fields{
		"method": method,
		"uri":    req.uri,
	}).Debug("APIC request")
	httpRes, err := api.httpClient.Do(httpReq)
	if err != nil {
		return apiRes{}, errors.Wrapf(ErrUnreachable, "%s %s: %v", method, req.uri, err)
	}
	defer httpRes.Body.Close()
	data, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return apiRes{}, errors.Wrapf(ErrUnreachable, "%s %s: reading body: %v", method, req.uri, err)
	}
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return apiRes{}, &HTTPError{
			Method: method,
			URI:    req.uri,
			Status: httpRes.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	if !gjson.ValidBytes(data) {
		return apiRes{}, errors.Wrapf(ErrDecode, "%s %s: response is not JSON", method, req.uri)
	}
	imdata := gjson.GetBytes(data, "imdata")
	if !imdata.IsArray() {
		return apiRes{}, errors.Wrapf(ErrDecode, "%s %s: response has no imdata", method, req.uri)
	}
	return imdata, nil
}

// Session is an authenticated conversation with one controller. It is
// owned by a single pipeline and never shared between controllers.
type Session struct {
	api    *apiClient
	target ControllerTarget
	base   string
	token  *string
	expiry time.Time
}

// authenticate logs in to the target. Every failure, including an
// unreachable host or a TLS error, is returned as an ErrAuth FabricError.
func authenticate(ctx context.Context, api *apiClient, target ControllerTarget) (*Session, error) {
	s := &Session{
		api:    api,
		target: target,
		base:   baseURL(target.Address),
	}
	if err := s.login(ctx); err != nil {
		return nil, authError(target.Address, err)
	}
	return s, nil
}

func (s *Session) login(ctx context.Context) error {
	data, err := sjson.SetBytes(nil, "aaaUser.attributes.name", s.target.Username)
	if err == nil {
		data, err = sjson.SetBytes(data, "aaaUser.attributes.pwd", s.target.Password)
	}
	if err != nil {
		return errors.Wrap(err, "building login payload")
	}
	s.token = nil
	res, err := s.api.do(ctx, http.MethodPost, s.base, apiReq{uri: "/api/aaaLogin"}, nil, data)
	if err != nil {
		return err
	}
	return s.accept(res, "aaaLogin")
}

// accept stores the token carried by an aaaLogin or aaaRefresh reply.
func (s *Session) accept(res apiRes, class string) error {
	if errText := res.Get("0.error.attributes.text").Str; errText != "" {
		return errors.New(errText)
	}
	attrs := res.Get("0." + class + ".attributes")
	token := attrs.Get("token").Str
	if token == "" {
		return errors.Wrapf(ErrDecode, "%s reply carries no token", class)
	}
	s.token = &token
	s.expiry = time.Time{}
	if secs, err := strconv.Atoi(attrs.Get("refreshTimeoutSeconds").Str); err == nil && secs > 0 {
		s.expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	log.WithField("controller", s.target.Address).Debug("Authentication successful.")
	return nil
}

// Address is the controller address as given in the credential source.
func (s *Session) Address() string {
	return s.target.Address
}

// HasToken reports whether the session holds a credential.
func (s *Session) HasToken() bool {
	return s.token != nil
}

// Expiry is zero when the controller did not announce one.
func (s *Session) Expiry() time.Time {
	return s.expiry
}

func (s *Session) expiresWithin(d time.Duration) bool {
	return !s.expiry.IsZero() && time.Until(s.expiry) < d
}

func (s *Session) request(ctx context.Context, method string, req apiReq, body []byte) (apiRes, error) {
	if s.token == nil {
		return apiRes{}, errors.Wrapf(ErrUnauthorized, "%s %s: no session token", method, req.uri)
	}
	return s.api.do(ctx, method, s.base, req, s.token, body)
}

// Get reads uri (without the .json suffix) and returns its imdata.
func (s *Session) Get(ctx context.Context, uri string, query ...string) (apiRes, error) {
	return s.request(ctx, http.MethodGet, apiReq{uri: uri, query: query}, nil)
}

// Post writes body to uri.
func (s *Session) Post(ctx context.Context, uri string, body []byte) (apiRes, error) {
	return s.request(ctx, http.MethodPost, apiReq{uri: uri}, body)
}

// Reauthenticate logs in again with the original credentials. Callers use
// it at most once after an ErrUnauthorized.
func (s *Session) Reauthenticate(ctx context.Context) error {
	if err := s.login(ctx); err != nil {
		return authError(s.target.Address, err)
	}
	return nil
}

// Refresh extends the current token through aaaRefresh.
func (s *Session) Refresh(ctx context.Context) error {
	res, err := s.Get(ctx, "/api/aaaRefresh")
	if err != nil {
		return err
	}
	return s.accept(res, "aaaRefresh")
}

// ControllerInfo describes the controller a session is connected to.
type ControllerInfo struct {
	Name    string `json:"name,omitempty"`
	Fabric  string `json:"fabric,omitempty"`
	Version string `json:"version,omitempty"`
}

// describe reads the controller's own topSystem record.
func (s *Session) describe(ctx context.Context) (ControllerInfo, error) {
	res, err := s.Get(ctx, "/api/class/topSystem",
		queryParam("query-target-filter", `eq(topSystem.role,"controller")`))
	if err != nil {
		return ControllerInfo{}, err
	}
	records := res.Get("#.topSystem.attributes").Array()
	if len(records) == 0 {
		return ControllerInfo{}, errors.Wrap(ErrDecode, "no controller in topSystem")
	}
	record := records[0]
	return ControllerInfo{
		Name:    record.Get("name").Str,
		Fabric:  record.Get("fabricDomain").Str,
		Version: record.Get("version").Str,
	}, nil
}
