package utils

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackContentType is the media type clients send in Accept to receive
// MessagePack instead of JSON.
const MsgpackContentType = "application/msgpack"

// WantsMsgpack reports whether the request accepts MessagePack.
func WantsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if mt == MsgpackContentType || mt == "application/x-msgpack" {
			return true
		}
	}
	return false
}

// WriteResponse encodes data as MessagePack when the client asks for it and
// as JSON otherwise.
func WriteResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}, log zerolog.Logger) {
	if r != nil && WantsMsgpack(r) {
		body, err := msgpack.Marshal(data)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode msgpack response")
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", MsgpackContentType)
		w.WriteHeader(status)
		if _, err := w.Write(body); err != nil {
			log.Error().Err(err).Msg("Failed to write msgpack response")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error  string `json:"error" msgpack:"error"`
	Status int    `json:"status" msgpack:"status"`
}

// WriteError writes an error response in the negotiated encoding.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string, log zerolog.Logger) {
	WriteResponse(w, r, status, ErrorBody{Error: message, Status: status}, log)
}
