/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging provides a fluent, allocation-light builder for the
// structured fields every component attaches to its log lines, plus a
// handful of per-domain constructors (DatabaseFields, HTTPFields, ...)
// so call sites don't repeat the same field names by hand.
package logging

import "time"

// Fields is a structured log field set. It is a plain map so it can be
// handed to zap.Any, logrus.WithFields, or json.Marshal interchangeably.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component records which subsystem emitted the log line.
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation records the verb being performed.
func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

// Resource records the kind and, if known, the identity of the
// resource being acted on.
func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records an error's message, skipping nil errors entirely so
// callers can unconditionally chain .Error(err).
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// UserID records the acting principal, skipping empty values.
func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

// RequestID records the inbound request correlation id.
func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

// TraceID records a distributed trace id.
func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

// StatusCode records an HTTP status code.
func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

// Method records an HTTP method.
func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

// URL records a request URL.
func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

// Count records an arbitrary integer count.
func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

// Size records a byte size.
func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

// Version records a software version string.
func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

// Custom sets an arbitrary field not covered by a named helper.
func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus returns the fields as a logrus.Fields-compatible map. Kept
// distinct from the map type itself so call sites don't need to import
// logrus just to log with these fields.
func (f Fields) ToLogrus() map[string]interface{} {
	out := make(map[string]interface{}, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DatabaseFields is a shortcut for the field set every repository call
// attaches to its log lines.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is a shortcut for request/response logging.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// WorkflowFields is a shortcut for ingestion-job lifecycle logging.
func WorkflowFields(operation, workflowID string) Fields {
	return NewFields().Component("workflow").Operation(operation).Resource("workflow", workflowID)
}

// KubernetesFields is kept for parity with the teacher's logging
// package; nothing in this repo runs inside Kubernetes, but the helper
// is harmless ambient-stack surface and callers elsewhere in the module
// ecosystem may still import it.
func KubernetesFields(operation, resourceType, resourceName, namespace string) Fields {
	f := NewFields().Component("kubernetes").Operation(operation).Resource(resourceType, resourceName)
	if namespace != "" {
		f["namespace"] = namespace
	}
	return f
}

// AIFields is a shortcut for LLM provider call logging.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields is a shortcut for ad-hoc metric emission logging.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields is a shortcut for auth/authz decision logging.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields is a shortcut for timed-operation logging.
func PerformanceFields(operation string, duration time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(duration).Custom("success", success)
}
