package control

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// maxMessageBytes bounds the body read for a single HTTP control message.
const maxMessageBytes = 4096

// HTTPHandler returns a handler that treats each request body as one control
// message. The channel index is taken from the "channel" route variable and
// defaults to 0 when the route has none.
//
// Responses:
//   - 204 No Content: message applied, or empty body ignored
//   - 400 Bad Request: bad channel, unreadable body, unknown operation or bad numbers
//   - 404 Not Found: selector names no box
//   - 413 Request Entity Too Large: body over 4 KiB
func HTTPHandler(ctrl *Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := 0
		if raw, ok := mux.Vars(r)["channel"]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				http.Error(w, "invalid channel", http.StatusBadRequest)
				return
			}
			channel = n
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}
		if len(body) > maxMessageBytes {
			http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
			return
		}

		if err := ctrl.Handle(body, channel); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, ErrUnknownTarget) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
