package receiver

import (
	"mime"
	"strings"
)

// Reassemble joins the segments of one message into a single frame. It
// allocates exactly once and copies the segments in order.
func Reassemble(segments [][]byte) []byte {
	n := 0
	for _, s := range segments {
		n += len(s)
	}
	frame := make([]byte, n)
	off := 0
	for _, s := range segments {
		off += copy(frame[off:], s)
	}
	return frame
}

// matchMediaType reports whether the produced media type satisfies query.
// query may use "*/*" or "type/*"; parameters named in query must be present
// in produced with an equal value.
func matchMediaType(produced, query string) bool {
	pType, pParams, err := mime.ParseMediaType(produced)
	if err != nil {
		return false
	}
	qType, qParams, err := mime.ParseMediaType(query)
	if err != nil {
		return false
	}

	if qType != "*/*" {
		qMajor, qMinor, _ := strings.Cut(qType, "/")
		pMajor, pMinor, _ := strings.Cut(pType, "/")
		if qMajor != pMajor || (qMinor != "*" && qMinor != pMinor) {
			return false
		}
	}
	for k, v := range qParams {
		if pv, ok := pParams[k]; !ok || !strings.EqualFold(pv, v) {
			return false
		}
	}
	return true
}
