package exthost

import (
	"net/url"
	"strconv"
	"strings"

	godap "github.com/google/go-dap"

	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/session"
)

// AsDebugSourceURI converts a DAP source to a URI. Sources the adapter has
// to serve become debug: URIs carrying the session and source reference;
// plain sources become file URIs. sess may be nil.
func AsDebugSourceURI(src godap.Source, sess *session.Session) (string, error) {
	if src.SourceReference > 0 {
		var b strings.Builder
		b.WriteString("debug:")
		b.WriteString(encodeComponent(src.Path))
		sep := "?"
		if sess != nil {
			b.WriteString(sep + "session=" + encodeComponent(sess.ID()))
			sep = "&"
		}
		b.WriteString(sep + "ref=" + strconv.Itoa(src.SourceReference))
		return b.String(), nil
	}
	if src.Path != "" {
		return session.PathToURI(src.Path), nil
	}
	return "", errors.InvalidSource()
}

func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
