package health

import (
	"context"
	"fmt"
	"net/http"
)

// Endpoint returns a [Checker] that probes an HTTP dependency with a GET
// request. Any response below 500 counts as healthy; the dependency is up
// even if it dislikes the probe path.
func Endpoint(name, url string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= http.StatusInternalServerError {
				return fmt.Errorf("status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

// Static returns a [Checker] whose result is fixed at construction. Used to
// surface startup-time configuration problems on /readyz.
func Static(name string, err error) Checker {
	return Checker{
		Name:  name,
		Check: func(context.Context) error { return err },
	}
}
