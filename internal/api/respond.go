package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// MIMEApplicationMsgpack is the content type for MessagePack responses.
const MIMEApplicationMsgpack = "application/msgpack"

// wantsMsgpack reports whether the client asked for MessagePack.
func wantsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEApplicationMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// respond writes v as MessagePack when the client asked for it, JSON otherwise.
func respond(c echo.Context, status int, v any) error {
	if !wantsMsgpack(c) {
		return c.JSON(status, v)
	}

	enc, err := msgpackMarshal(v)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, NewInternalError("Failed to encode response", err))
	}
	return c.Blob(status, MIMEApplicationMsgpack, enc)
}

// msgpackMarshal encodes with json struct tags as the fallback so field names match the JSON body.
func msgpackMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
