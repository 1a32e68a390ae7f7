package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"kitascrape-engine/internal/domain"
)

const maxBody = 1 << 20

// decodeJSON reads one JSON value into v, rejecting unknown fields and
// trailing data. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON: %v", domain.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: invalid JSON: trailing data", domain.ErrValidation)
	}
	return nil
}

// localOnly reports whether the request came from the loopback interface.
func localOnly(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr can sometimes be just a host
		host = r.RemoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
