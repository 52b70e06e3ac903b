package agent

import "net/http"

// HTTPClient is the minimal surface the Invoker needs from an HTTP client,
// mirroring net/http.Client.Do so that tests can substitute a fake without
// spinning up a real listener (grounded on the teacher's ContainerClient
// abstraction, which exists for the same reason: swap the side-effecting
// dependency, keep the calling code identical in tests and production).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
