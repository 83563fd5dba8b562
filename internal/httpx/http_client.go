package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// ConfigureExternalHTTPClient sets the timeout shared by GitLab and LLM HTTP
// calls and returns the applied value.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}
