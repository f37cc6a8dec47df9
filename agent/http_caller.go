package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPCaller is the http_caller built-in: any HTTP method, configurable
// retry/backoff over transport errors, and extract/transform/validate
// post-processing, grounded on original_source's api_caller.py. It
// builds requests directly on net/http rather than the teacher's
// graph/tool.HTTPTool, whose GET/POST-only, non-retrying Call contract
// can't carry this agent's method/retry/JSON-decode requirements.
type HTTPCaller struct {
	client *http.Client
}

// NewHTTPCaller builds an HTTPCaller with a client whose timeout is
// set per-call via context.
func NewHTTPCaller() *HTTPCaller {
	return &HTTPCaller{client: &http.Client{}}
}

func (h *HTTPCaller) Execute(ctx context.Context, cfg map[string]interface{}, input map[string]interface{}) (Result, error) {
	started := time.Now()

	urlStr, _ := input["url"].(string)
	if urlStr == "" {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "url is required"}
	}
	method := "GET"
	if m, ok := input["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}

	timeout := durationSeconds(cfg["timeout_seconds"], 30*time.Second)
	retries := intOr(cfg["retries"], 3)
	retryDelay := durationSeconds(cfg["retry_delay_seconds"], 1*time.Second)

	headers, _ := input["headers"].(map[string]interface{})
	params, _ := input["params"].(map[string]interface{})

	reqURL, err := buildURL(urlStr, params)
	if err != nil {
		return Result{}, &Error{Kind: KindInvalidInput, Message: "invalid url or params", Cause: err}
	}

	var body []byte
	if method != "GET" && method != "DELETE" {
		if data, ok := input["data"]; ok && data != nil {
			body, err = json.Marshal(data)
			if err != nil {
				return Result{}, &Error{Kind: KindInvalidInput, Message: "data is not JSON-encodable", Cause: err}
			}
		}
	}

	resp, attemptErr := h.doWithRetries(ctx, method, reqURL, headers, body, timeout, retries, retryDelay)
	if attemptErr != nil {
		return Result{}, attemptErr
	}

	processed := processResponse(resp, input)

	return Result{
		Output: processed,
		Variables: map[string]interface{}{
			"api_response": processed,
			"status_code":  resp.statusCode,
		},
		Metadata: newMetadata(started),
	}, nil
}

type httpResponse struct {
	statusCode int
	data       interface{}
	headers    map[string]interface{}
	elapsed    time.Duration
}

func (h *HTTPCaller) doWithRetries(ctx context.Context, method, reqURL string, headers map[string]interface{}, body []byte, timeout time.Duration, retries int, retryDelay time.Duration) (httpResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, err := h.doOnce(ctx, method, reqURL, headers, body, timeout)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < retries {
			select {
			case <-time.After(retryDelay * time.Duration(1<<uint(attempt))):
			case <-ctx.Done():
				return httpResponse{}, &Error{Kind: KindTimeout, Message: "context cancelled during retry backoff", Cause: ctx.Err()}
			}
		}
	}
	return httpResponse{}, lastErr
}

func (h *HTTPCaller) doOnce(ctx context.Context, method, reqURL string, headers map[string]interface{}, body []byte, timeout time.Duration) (httpResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, reqURL, bodyReader)
	if err != nil {
		return httpResponse{}, &Error{Kind: KindTransportError, Message: "failed to build request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if s, ok := v.(string); ok {
			req.Header.Set(k, s)
		}
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if reqCtx.Err() != nil {
			return httpResponse{}, &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
		}
		return httpResponse{}, &Error{Kind: KindTransportError, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResponse{}, &Error{Kind: KindTransportError, Message: "failed to read response body", Cause: err}
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for k, vs := range resp.Header {
		if len(vs) == 1 {
			respHeaders[k] = vs[0]
		} else {
			respHeaders[k] = vs
		}
	}

	contentType := resp.Header.Get("Content-Type")
	var decoded interface{}
	switch {
	case strings.Contains(contentType, "application/json"):
		if uerr := json.Unmarshal(raw, &decoded); uerr != nil {
			decoded = string(raw)
		}
	case strings.Contains(contentType, "text/"):
		decoded = string(raw)
	default:
		decoded = raw
	}

	// A non-2xx/3xx status is a successful HTTP round-trip carrying an
	// error response, not a transport failure: it's surfaced to the
	// caller as output.success=false (see processResponse), never
	// retried, and never aborts the node. KindHTTPError is reserved for
	// callers that need to distinguish it explicitly via the output.
	return httpResponse{statusCode: resp.StatusCode, data: decoded, headers: respHeaders, elapsed: elapsed}, nil
}

func processResponse(resp httpResponse, input map[string]interface{}) map[string]interface{} {
	result := map[string]interface{}{
		"status_code":   resp.statusCode,
		"success":       resp.statusCode < 400,
		"data":          resp.data,
		"headers":       resp.headers,
		"response_time": resp.elapsed.Seconds(),
	}

	processing, _ := input["processing"].(map[string]interface{})
	if processing == nil {
		return result
	}

	dataMap, isMap := resp.data.(map[string]interface{})

	if fields, ok := processing["extract_fields"].([]interface{}); ok && isMap {
		extracted := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			name, ok := f.(string)
			if !ok {
				continue
			}
			if v, present := dataMap[name]; present {
				extracted[name] = v
			}
		}
		result["extracted"] = extracted
	}

	if transform, ok := processing["transform"].(map[string]interface{}); ok && isMap {
		result["transformed"] = applyTransform(dataMap, transform)
	}

	if validation, ok := processing["validation"].(map[string]interface{}); ok {
		result["validation"] = validateResponse(resp.data, validation)
	}

	return result
}

func applyTransform(data map[string]interface{}, cfg map[string]interface{}) map[string]interface{} {
	transformed := make(map[string]interface{}, len(data))
	for k, v := range data {
		transformed[k] = v
	}

	if mapping, ok := cfg["field_mapping"].(map[string]interface{}); ok {
		for oldField, newFieldRaw := range mapping {
			newField, ok := newFieldRaw.(string)
			if !ok {
				continue
			}
			if v, present := transformed[oldField]; present {
				delete(transformed, oldField)
				transformed[newField] = v
			}
		}
	}

	if valueTransforms, ok := cfg["value_transforms"].(map[string]interface{}); ok {
		for field, specRaw := range valueTransforms {
			spec, ok := specRaw.(map[string]interface{})
			if !ok {
				continue
			}
			v, present := transformed[field]
			if !present {
				continue
			}
			kind, _ := spec["type"].(string)
			switch kind {
			case "uppercase":
				transformed[field] = strings.ToUpper(fmt.Sprint(v))
			case "lowercase":
				transformed[field] = strings.ToLower(fmt.Sprint(v))
			case "format":
				transformed[field] = fmt.Sprint(v)
			}
		}
	}

	return transformed
}

func validateResponse(data interface{}, cfg map[string]interface{}) map[string]interface{} {
	result := map[string]interface{}{"valid": true, "errors": []string{}, "warnings": []string{}}
	if data == nil {
		result["valid"] = false
		result["errors"] = []string{"No data received"}
		return result
	}

	dataMap, isMap := data.(map[string]interface{})
	var errs, warns []string

	if required, ok := cfg["required_fields"].([]interface{}); ok && isMap {
		for _, fRaw := range required {
			f, ok := fRaw.(string)
			if !ok {
				continue
			}
			if _, present := dataMap[f]; !present {
				errs = append(errs, "Required field missing: "+f)
			}
		}
	}

	if typeValidation, ok := cfg["type_validation"].(map[string]interface{}); ok && isMap {
		for field, wantType := range typeValidation {
			if v, present := dataMap[field]; present {
				got := goTypeName(v)
				if got != fmt.Sprint(wantType) {
					warns = append(warns, fmt.Sprintf("Field %s expected %v, got %s", field, wantType, got))
				}
			}
		}
	}

	if rangeValidation, ok := cfg["range_validation"].(map[string]interface{}); ok && isMap {
		for field, rangeCfgRaw := range rangeValidation {
			rangeCfg, ok := rangeCfgRaw.(map[string]interface{})
			if !ok {
				continue
			}
			v, present := dataMap[field]
			f, numeric := toFloat(v)
			if !present || !numeric {
				continue
			}
			if min, ok := toFloat(rangeCfg["min"]); ok && f < min {
				warns = append(warns, fmt.Sprintf("Field %s value %v below minimum %v", field, f, min))
			}
			if max, ok := toFloat(rangeCfg["max"]); ok && f > max {
				warns = append(warns, fmt.Sprintf("Field %s value %v above maximum %v", field, f, max))
			}
		}
	}

	if len(errs) > 0 {
		result["valid"] = false
	}
	result["errors"] = errs
	result["warnings"] = warns
	return result
}

func goTypeName(v interface{}) string {
	switch v.(type) {
	case string:
		return "str"
	case float64, int, int64:
		return "number"
	case bool:
		return "bool"
	case map[string]interface{}:
		return "dict"
	case []interface{}:
		return "list"
	default:
		return "unknown"
	}
}

func buildURL(raw string, params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func durationSeconds(v interface{}, def time.Duration) time.Duration {
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second))
	case int:
		return time.Duration(n) * time.Second
	}
	return def
}

func intOr(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}
