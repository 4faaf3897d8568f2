package runtime

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// debugSink receives messages a contract passes to the debug import.
type debugSink func(msg string)

func discardDebug(string) {}

// timestampedWriter writes each message on its own line, prefixed with the
// UTC time it was received.
func timestampedWriter(w io.Writer, mu *sync.Mutex) debugSink {
	return func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "[%s]: %s\n", time.Now().UTC().Format(time.RFC3339Nano), msg)
	}
}

func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
